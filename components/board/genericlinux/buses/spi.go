package buses

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

var (
	hostOnce    sync.Once
	hostInitErr error
)

// initHost loads the periph.io host drivers exactly once per process. spireg only knows about
// /dev/spidevB.C ports after this ran.
func initHost() error {
	hostOnce.Do(func() {
		_, hostInitErr = host.Init()
	})
	return hostInitErr
}

// NewSPIBus returns a shareable SPI bus for the Linux spidev bus numbered busSelect.
func NewSPIBus(busSelect string) (SPI, error) {
	if err := initHost(); err != nil {
		return nil, errors.Wrap(err, "error initializing periph host drivers")
	}
	return &spiBus{bus: busSelect}, nil
}

type spiBus struct {
	mu         sync.Mutex
	openHandle *spiHandle
	bus        string
	closed     bool
}

type spiHandle struct {
	bus      *spiBus
	isClosed bool
}

func (sb *spiBus) OpenHandle() (SPIHandle, error) {
	sb.mu.Lock()
	if sb.closed {
		sb.mu.Unlock()
		return nil, errors.Errorf("SPI bus %s is closed", sb.bus)
	}
	sb.openHandle = &spiHandle{bus: sb, isClosed: false}
	return sb.openHandle, nil
}

// Close marks the bus as unusable. It waits for an open handle to be released first.
func (sb *spiBus) Close(ctx context.Context) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.closed = true
	return nil
}

func (sh *spiHandle) Xfer(ctx context.Context, baud uint, chipSelect string, mode uint, tx []byte) (rx []byte, err error) {
	if sh.isClosed {
		return nil, errors.New("can't use Xfer() on an already closed SPIHandle")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := spireg.Open(fmt.Sprintf("SPI%s.%s", sh.bus.bus, chipSelect))
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, port.Close())
	}()
	conn, err := port.Connect(physic.Hertz*physic.Frequency(baud), spi.Mode(mode), 8)
	if err != nil {
		return nil, err
	}
	rx = make([]byte, len(tx))
	return rx, conn.Tx(tx, rx)
}

func (sh *spiHandle) Close() error {
	if sh.isClosed {
		return errors.New("SPIHandle already closed")
	}
	sh.isClosed = true
	sh.bus.openHandle = nil
	sh.bus.mu.Unlock()
	return nil
}
