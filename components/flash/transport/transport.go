// Package transport contains the two capabilities a flash driver consumes: exchanging bytes in one
// chip-select-qualified SPI transaction, and waiting.
package transport

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/swobbee-dev/spi-memory/components/board/genericlinux/buses"
)

// Transport exchanges bytes with one device. Transact is a single full-duplex transaction and
// returns as many bytes as it was given. Implementations serialize transactions with other users
// of the bus but never hold the bus between calls.
type Transport interface {
	Transact(ctx context.Context, tx []byte) ([]byte, error)
}

// Delay waits for a duration. A blocking Delay ignores ctx, a suspending Delay returns ctx.Err()
// when ctx is done first.
type Delay interface {
	Wait(ctx context.Context, d time.Duration) error
}

// SPIDevice addresses one chip select on a shared SPI bus.
type SPIDevice struct {
	Bus        buses.SPI
	ChipSelect string
	Baud       uint
	Mode       uint
}

// NewSPIDevice returns a Transport for the device on chipSelect of bus.
func NewSPIDevice(bus buses.SPI, conf buses.SPIConfig) *SPIDevice {
	return &SPIDevice{
		Bus:        bus,
		ChipSelect: conf.ChipSelect,
		Baud:       conf.Baud(),
		Mode:       conf.Mode,
	}
}

// Transact acquires the bus, runs one transfer and releases the bus again.
func (d *SPIDevice) Transact(ctx context.Context, tx []byte) (rx []byte, err error) {
	handle, err := d.Bus.OpenHandle()
	if err != nil {
		return nil, errors.Wrap(err, "error opening SPI handle")
	}
	defer func() {
		err = multierr.Combine(err, handle.Close())
	}()
	rx, err = handle.Xfer(ctx, d.Baud, d.ChipSelect, d.Mode, tx)
	if err != nil {
		return nil, err
	}
	if len(rx) != len(tx) {
		return rx, errors.Errorf("SPI transfer returned %d bytes, sent %d", len(rx), len(tx))
	}
	return rx, nil
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, tx []byte) ([]byte, error)

// Transact calls f.
func (f Func) Transact(ctx context.Context, tx []byte) ([]byte, error) {
	return f(ctx, tx)
}
