// Package series25 drives "25-series" SPI NOR flash parts: Winbond W25Q, Micron N25Q, Macronix
// MX25 and the many compatible devices.
//
// The driver turns byte-addressed read, write and erase requests into command frames, issues
// write enable before every program or erase, and polls the busy bit until each mutating command
// has completed before returning. It talks to the device only through a transport.Transport,
// which acquires the shared bus per transaction, and waits only through a transport.Delay, so the
// bus is never held across a poll backoff.
//
// A Flash is not safe for concurrent use. Interleaving two mutating operations on one device
// breaks the device's single active command rule, so callers serialize operations themselves or
// go through Async.
package series25

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/swobbee-dev/spi-memory/components/flash/codec"
	"github.com/swobbee-dev/spi-memory/components/flash/transport"
	"github.com/swobbee-dev/spi-memory/logging"
)

// Geometry is the resolved layout of the device.
type Geometry struct {
	Capacity   uint32
	PageSize   uint32
	SectorSize uint32
	BlockSize  uint32
	Width      codec.AddressWidth
}

// Flash is a driver for one flash device.
type Flash struct {
	tr     transport.Transport
	delay  transport.Delay
	codec  codec.Codec
	logger logging.Logger

	geometry    Geometry
	blockErase  codec.EraseKind
	maxTransfer int
	id          codec.DeviceID
	probed      bool
	part        codec.Part
	knownPart   bool
	timings     codec.Timings
	bounds      pollBounds

	state atomic.Int32
}

// New returns a driver for the device behind tr. Unless conf.SkipProbe is set, New reads the JEDEC
// ID to check that a device responds and to discover capacity and timings. New never modifies
// device contents. A nil delay blocks the calling goroutine, a nil logger logs nothing.
func New(
	ctx context.Context,
	tr transport.Transport,
	delay transport.Delay,
	conf *Config,
	logger logging.Logger,
) (*Flash, error) {
	if tr == nil {
		return nil, &InitError{Err: errors.New("no transport")}
	}
	if conf == nil {
		conf = &Config{}
	}
	if _, err := conf.Validate("flash"); err != nil {
		return nil, &InitError{Err: err}
	}
	if delay == nil {
		delay = transport.BlockingDelay{}
	}
	if logger == nil {
		logger = logging.NewBlankLogger("series25")
	}

	f := &Flash{
		tr:          tr,
		delay:       delay,
		logger:      logger,
		maxTransfer: conf.MaxTransferBytes,
	}
	// The JEDEC ID frame has no address, so the probe works before the width is known.
	f.codec = codec.Codec{Width: codec.Address3Byte}

	if !conf.SkipProbe {
		id, err := f.ReadJEDECID(ctx)
		if err != nil {
			return nil, &InitError{Err: err}
		}
		if !id.Valid() {
			return nil, &InitError{Err: errors.Errorf("no device responding, JEDEC ID %s", id)}
		}
		f.id, f.probed = id, true
		f.part, f.knownPart = codec.LookupPart(id)
	}

	capacity := conf.CapacityBytes
	switch {
	case capacity != 0:
	case f.knownPart:
		capacity = f.part.Capacity
	default:
		discovered, ok := f.id.Capacity()
		if !ok {
			return nil, &InitError{Err: errors.Errorf(
				"cannot derive capacity from JEDEC ID %s, set capacity_bytes", f.id)}
		}
		capacity = discovered
	}

	width := codec.AddressWidth(conf.AddressBytes)
	if width == 0 {
		width = codec.Address3Byte
		if capacity > codec.Max3ByteCapacity {
			width = codec.Address4Byte
		}
	}
	if width == codec.Address3Byte && capacity > codec.Max3ByteCapacity {
		return nil, &InitError{Err: errors.Errorf("capacity of %d bytes needs 4 byte addressing", capacity)}
	}
	c, err := codec.New(width)
	if err != nil {
		return nil, &InitError{Err: err}
	}
	f.codec = c

	page, sector, block := conf.geometry()
	if capacity%block != 0 {
		return nil, &InitError{Err: errors.Errorf("capacity %d is not a multiple of block size %d", capacity, block)}
	}
	f.geometry = Geometry{
		Capacity:   capacity,
		PageSize:   page,
		SectorSize: sector,
		BlockSize:  block,
		Width:      width,
	}
	f.blockErase, _ = codec.BlockEraseKind(block)

	f.timings = codec.MaxTimings()
	if f.knownPart {
		if f.part.Timings.Erase(f.blockErase) == 0 {
			return nil, &InitError{Err: errors.Errorf(
				"%s has no %d byte block erase, set block_size_bytes to a size it supports", f.part.Name, block)}
		}
		f.timings = f.part.Timings
	}
	f.bounds = newPollBounds(conf, f.timings, f.blockErase)

	f.logger.Debugw("flash ready",
		"id", f.id,
		"part", f.PartName(),
		"capacity", capacity,
		"address_bytes", int(width),
	)
	return f, nil
}

// Geometry returns the resolved device layout.
func (f *Flash) Geometry() Geometry {
	return f.geometry
}

// DeviceID returns the JEDEC ID read at init. ok is false if the probe was skipped.
func (f *Flash) DeviceID() (id codec.DeviceID, ok bool) {
	return f.id, f.probed
}

// PartName names the detected part, or describes why none is known.
func (f *Flash) PartName() string {
	switch {
	case f.knownPart:
		return f.part.Name
	case f.probed:
		return "unknown " + f.id.ManufacturerName() + " part"
	default:
		return "unprobed"
	}
}

// ReadJEDECID reads the manufacturer and device ID. It is a single transaction.
func (f *Flash) ReadJEDECID(ctx context.Context) (codec.DeviceID, error) {
	resp, err := f.query(ctx, "read jedec id", f.codec.EncodeReadJEDECID())
	if err != nil {
		return codec.DeviceID{}, err
	}
	return codec.DecodeJEDECID(resp)
}

// ReadStatus reads status register 1. It is a single transaction.
func (f *Flash) ReadStatus(ctx context.Context) (codec.Status, error) {
	resp, err := f.query(ctx, "read status", f.codec.EncodeReadStatus())
	if err != nil {
		return 0, err
	}
	return codec.DecodeStatus(resp)
}

// PowerDown puts the device into deep power-down. Only ReleasePowerDown is accepted afterwards.
func (f *Flash) PowerDown(ctx context.Context) error {
	if err := f.send(ctx, "power down", f.codec.EncodePowerDown()); err != nil {
		return err
	}
	return f.delay.Wait(ctx, f.timings.PowerDown)
}

// ReleasePowerDown wakes the device from deep power-down.
func (f *Flash) ReleasePowerDown(ctx context.Context) error {
	if err := f.send(ctx, "release power down", f.codec.EncodeReleasePowerDown()); err != nil {
		return err
	}
	return f.delay.Wait(ctx, f.timings.ReleasePowerDown)
}

// send runs a frame that has no response.
func (f *Flash) send(ctx context.Context, op string, frame codec.Frame) error {
	_, err := f.query(ctx, op, frame)
	return err
}

// query runs one frame as one transaction and returns its response window.
func (f *Flash) query(ctx context.Context, op string, frame codec.Frame) ([]byte, error) {
	rx, err := f.tr.Transact(ctx, frame.Tx)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	return frame.Response(rx)
}

// checkRange returns an OutOfRangeError if [addr, addr+length) does not fit the device.
func (f *Flash) checkRange(addr uint32, length uint64) error {
	if uint64(addr)+length > uint64(f.geometry.Capacity) {
		return &OutOfRangeError{Addr: addr, Length: length, Capacity: f.geometry.Capacity}
	}
	return nil
}
