// Package buses offers the shared SPI bus used by flash devices and a periph.io based
// implementation for generic Linux systems.
package buses

import (
	"context"
)

// SPI represents a shareable SPI bus. Several devices, each on its own chip select, may sit on
// the same bus; OpenHandle is what serializes them.
type SPI interface {
	// OpenHandle locks the shared bus and returns a handle interface that MUST be closed when done.
	OpenHandle() (SPIHandle, error)
	Close(ctx context.Context) error
}

// SPIHandle is similar to an io handle. It MUST be closed to release the bus.
type SPIHandle interface {
	// Xfer performs a single SPI transfer, that is, the complete transaction from chipselect
	// enable to chipselect disable. SPI transfers are full duplex: the number of bytes received
	// equals the number of bytes sent. A flash read clocks out the opcode and address followed by
	// as many filler bytes as data is expected, and the data is found at the same offsets of
	// the returned slice.
	Xfer(
		ctx context.Context,
		baud uint,
		chipSelect string,
		mode uint,
		tx []byte,
	) ([]byte, error)

	// Close closes the handle and releases the lock on the bus.
	Close() error
}
