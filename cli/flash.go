package cli

import (
	"context"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/swobbee-dev/spi-memory/components/board/genericlinux/buses"
	"github.com/swobbee-dev/spi-memory/components/flash/fake"
	"github.com/swobbee-dev/spi-memory/components/flash/series25"
	"github.com/swobbee-dev/spi-memory/components/flash/transport"
	"github.com/swobbee-dev/spi-memory/logging"
)

// fakeChip is the part simulated by --fake. Busy times are short but not zero so the poll loop
// runs.
var fakeChip = fake.Config{
	ProgramPolls:     1,
	SectorErasePolls: 4,
	BlockErasePolls:  8,
	ChipErasePolls:   16,
}

type session struct {
	bus    buses.SPI
	flash  *series25.Flash
	logger logging.Logger
}

func (s *session) Close(ctx context.Context) error {
	// Sync of stdout fails on terminals.
	//nolint:errcheck
	s.logger.Sync()
	return s.bus.Close(ctx)
}

// newLogger builds the tool logger and installs it as the global logger.
func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewLogger("flashtool")
	if c.Bool(debugFlag) {
		logger = logging.NewDebugLogger("flashtool")
	}
	logging.ReplaceGlobal(logger)
	return logger
}

// openFlash connects to the configured device and probes it.
func openFlash(c *cli.Context) (*session, error) {
	logger := newLogger(c)
	conf, err := resolveConfig(c)
	if err != nil {
		return nil, err
	}

	var bus buses.SPI
	if c.Bool(fakeFlag) {
		bus = fake.NewChip(fakeChip)
	} else {
		if bus, err = buses.NewSPIBus(conf.SPI.BusSelect); err != nil {
			return nil, err
		}
	}

	tr := transport.NewSPIDevice(bus, conf.SPI)
	f, err := series25.New(c.Context, tr, transport.ContextDelay{}, conf.Flash, logger.Sublogger("series25"))
	if err != nil {
		return nil, multierr.Combine(err, bus.Close(c.Context))
	}
	return &session{bus: bus, flash: f, logger: logger}, nil
}

// withFlash runs fn against an opened device and closes it afterwards.
func withFlash(c *cli.Context, fn func(ctx context.Context, s *session) error) (err error) {
	s, err := openFlash(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.Close(c.Context))
	}()
	return fn(c.Context, s)
}
