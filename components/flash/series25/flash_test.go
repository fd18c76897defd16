package series25

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/swobbee-dev/spi-memory/components/board/genericlinux/buses"
	"github.com/swobbee-dev/spi-memory/components/flash/codec"
	"github.com/swobbee-dev/spi-memory/components/flash/fake"
	"github.com/swobbee-dev/spi-memory/components/flash/transport"
	"github.com/swobbee-dev/spi-memory/logging"
)

var noDelay = transport.DelayFunc(func(ctx context.Context, d time.Duration) error {
	return ctx.Err()
})

func newTransport(chip *fake.Chip) transport.Transport {
	return transport.NewSPIDevice(chip, buses.SPIConfig{Name: "flash", BusSelect: "0", ChipSelect: "0"})
}

func newFlash(t *testing.T, chipConf fake.Config, conf *Config) (*Flash, *fake.Chip) {
	t.Helper()
	chip := fake.NewChip(chipConf)
	f, err := New(context.Background(), newTransport(chip), noDelay, conf, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	chip.ResetFrames()
	return f, chip
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	return data
}

func TestNewProbesKnownPart(t *testing.T) {
	f, chip := newFlash(t, fake.Config{}, nil)

	id, ok := f.DeviceID()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, id, test.ShouldResemble, fake.DefaultID)
	test.That(t, f.PartName(), test.ShouldEqual, "Winbond W25Q32")
	test.That(t, f.Geometry(), test.ShouldResemble, Geometry{
		Capacity:   4 << 20,
		PageSize:   256,
		SectorSize: 4096,
		BlockSize:  65536,
		Width:      codec.Address3Byte,
	})
	test.That(t, f.State(), test.ShouldEqual, StateIdle)
	test.That(t, chip.Violations(), test.ShouldEqual, int64(0))

	// The probe is read only.
	test.That(t, bytes.Count(chip.Memory(), []byte{0xFF}), test.ShouldEqual, 4<<20)
}

func TestNewDiscoversCapacity(t *testing.T) {
	f, _ := newFlash(t, fake.Config{ID: codec.DeviceID{Manufacturer: 0xC2, Device: 0x2014}, Capacity: 1 << 20}, nil)
	test.That(t, f.Geometry().Capacity, test.ShouldEqual, uint32(1<<20))
	test.That(t, f.PartName(), test.ShouldEqual, "unknown Macronix part")
	test.That(t, f.bounds.sectorErase, test.ShouldEqual, codec.MaxTimings().SectorErase)
}

func TestNewUnresponsive(t *testing.T) {
	for _, fill := range []byte{0x00, 0xFF} {
		fill := fill
		tr := transport.Func(func(ctx context.Context, tx []byte) ([]byte, error) {
			return bytes.Repeat([]byte{fill}, len(tx)), nil
		})
		_, err := New(context.Background(), tr, noDelay, nil, nil)
		var initErr *InitError
		test.That(t, errors.As(err, &initErr), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "no device responding")
	}

	// An unknown density code without a configured capacity cannot be used.
	chip := fake.NewChip(fake.Config{ID: codec.DeviceID{Manufacturer: 0x9D, Device: 0x6001}, Capacity: 1 << 20})
	_, err := New(context.Background(), newTransport(chip), noDelay, nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "set capacity_bytes")

	f, err := New(context.Background(), newTransport(chip), noDelay, &Config{CapacityBytes: 1 << 20}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.Geometry().Capacity, test.ShouldEqual, uint32(1<<20))
}

func TestNewTransportFailure(t *testing.T) {
	chip := fake.NewChip(fake.Config{})
	chip.SetFault(fake.FailAt(codec.OpReadJEDECID, 1, errors.New("no bus")))

	_, err := New(context.Background(), newTransport(chip), noDelay, nil, nil)
	var initErr *InitError
	test.That(t, errors.As(err, &initErr), test.ShouldBeTrue)
	var trErr *TransportError
	test.That(t, errors.As(err, &trErr), test.ShouldBeTrue)
	test.That(t, trErr.Op, test.ShouldEqual, "read jedec id")

	_, err = New(context.Background(), nil, nil, nil, nil)
	test.That(t, errors.As(err, &initErr), test.ShouldBeTrue)
}

func TestNewSkipProbe(t *testing.T) {
	chip := fake.NewChip(fake.Config{})
	f, err := New(context.Background(), newTransport(chip), noDelay,
		&Config{SkipProbe: true, CapacityBytes: 4 << 20}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chip.Transactions(), test.ShouldEqual, int64(0))
	_, ok := f.DeviceID()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, f.PartName(), test.ShouldEqual, "unprobed")

	_, err = New(context.Background(), newTransport(chip), noDelay, &Config{SkipProbe: true}, nil)
	var initErr *InitError
	test.That(t, errors.As(err, &initErr), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "capacity_bytes is required")
}

func TestFourByteAddressing(t *testing.T) {
	chipConf := fake.Config{ID: codec.DeviceID{Manufacturer: 0xEF, Device: 0x4019}, Capacity: 32 << 20}
	f, chip := newFlash(t, chipConf, nil)
	test.That(t, f.Geometry().Width, test.ShouldEqual, codec.Address4Byte)

	const addr = 0x01000100
	data := pattern(4)
	test.That(t, f.EraseSectors(context.Background(), addr&^0xFFF, 1), test.ShouldBeNil)
	test.That(t, f.WriteBytes(context.Background(), addr, data), test.ShouldBeNil)
	got := make([]byte, len(data))
	test.That(t, f.Read(context.Background(), addr, got), test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, data)

	test.That(t, chip.Opcodes(), test.ShouldContain, byte(codec.OpSectorErase4B))
	test.That(t, chip.Opcodes(), test.ShouldContain, byte(codec.OpPageProgram4B))
	test.That(t, chip.Opcodes(), test.ShouldContain, byte(codec.OpRead4B))
	test.That(t, chip.Violations(), test.ShouldEqual, int64(0))

	_, err := New(context.Background(), newTransport(chip), noDelay, &Config{AddressBytes: 3}, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "4 byte addressing")
}

func TestReadJEDECIDAndStatus(t *testing.T) {
	f, chip := newFlash(t, fake.Config{}, nil)

	id, err := f.ReadJEDECID(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, id, test.ShouldResemble, fake.DefaultID)

	status, err := f.ReadStatus(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.Busy(), test.ShouldBeFalse)
	test.That(t, status.WriteEnabled(), test.ShouldBeFalse)
	test.That(t, chip.Opcodes(), test.ShouldResemble, []byte{codec.OpReadJEDECID, codec.OpReadStatus})
}

func TestShortResponse(t *testing.T) {
	tr := transport.Func(func(ctx context.Context, tx []byte) ([]byte, error) {
		if tx[0] == codec.OpReadJEDECID {
			return []byte{0, 0xEF, 0x40, 0x16}, nil
		}
		return []byte{0}, nil
	})
	f, err := New(context.Background(), tr, noDelay, nil, nil)
	test.That(t, err, test.ShouldBeNil)

	_, err = f.ReadStatus(context.Background())
	test.That(t, errors.Is(err, codec.ErrShortResponse), test.ShouldBeTrue)
}

func TestWriteReadRoundTrip(t *testing.T) {
	f, chip := newFlash(t, fake.Config{ProgramPolls: 2, SectorErasePolls: 3}, nil)
	ctx := context.Background()

	test.That(t, f.EraseSectors(ctx, 0x1000, 1), test.ShouldBeNil)
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}
	test.That(t, f.WriteBytes(ctx, 0x1000, data), test.ShouldBeNil)

	got := make([]byte, len(data))
	test.That(t, f.Read(ctx, 0x1000, got), test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, data)

	again := make([]byte, len(data))
	test.That(t, f.Read(ctx, 0x1000, again), test.ShouldBeNil)
	test.That(t, again, test.ShouldResemble, got)

	// Every program and erase completed before the next command was sent.
	test.That(t, chip.Violations(), test.ShouldEqual, int64(0))
	test.That(t, f.State(), test.ShouldEqual, StateIdle)
}

func TestWriteSplitsAtPageBoundary(t *testing.T) {
	f, chip := newFlash(t, fake.Config{}, nil)
	data := pattern(16)

	test.That(t, f.WriteBytes(context.Background(), 256-4, data), test.ShouldBeNil)

	want := [][]byte{
		{codec.OpWriteEnable},
		append([]byte{codec.OpPageProgram, 0x00, 0x00, 0xFC}, data[:4]...),
		{codec.OpReadStatus, 0},
		{codec.OpWriteEnable},
		append([]byte{codec.OpPageProgram, 0x00, 0x01, 0x00}, data[4:]...),
		{codec.OpReadStatus, 0},
	}
	if diff := cmp.Diff(want, chip.Frames()); diff != "" {
		t.Errorf("frame sequence mismatch (-want +got):\n%s", diff)
	}
	test.That(t, chip.Memory()[252:268], test.ShouldResemble, data)
}

func TestWriteLongSpansPages(t *testing.T) {
	f, chip := newFlash(t, fake.Config{}, nil)
	data := pattern(1000)

	test.That(t, f.WriteBytes(context.Background(), 0x20010, data), test.ShouldBeNil)
	test.That(t, chip.Memory()[0x20010:0x20010+1000], test.ShouldResemble, data)

	programs := 0
	for _, frame := range chip.Frames() {
		if frame[0] != codec.OpPageProgram {
			continue
		}
		programs++
		addr := uint32(frame[1])<<16 | uint32(frame[2])<<8 | uint32(frame[3])
		n := uint32(len(frame) - 4)
		test.That(t, addr/256, test.ShouldEqual, (addr+n-1)/256)
	}
	test.That(t, programs, test.ShouldEqual, 4)
}

func TestWriteEmptyIsNoop(t *testing.T) {
	f, chip := newFlash(t, fake.Config{}, nil)
	test.That(t, f.WriteBytes(context.Background(), 0x10, nil), test.ShouldBeNil)
	test.That(t, chip.Transactions(), test.ShouldEqual, int64(0))
}

func TestOutOfRange(t *testing.T) {
	f, chip := newFlash(t, fake.Config{Capacity: 1 << 20, ID: codec.DeviceID{Manufacturer: 0xEF, Device: 0x4014}}, nil)
	ctx := context.Background()

	err := f.Read(ctx, 1<<20-2, make([]byte, 4))
	var rangeErr *OutOfRangeError
	test.That(t, errors.As(err, &rangeErr), test.ShouldBeTrue)
	test.That(t, rangeErr.Capacity, test.ShouldEqual, uint32(1<<20))

	err = f.WriteBytes(ctx, 1<<20, []byte{1})
	test.That(t, errors.As(err, &rangeErr), test.ShouldBeTrue)

	err = f.EraseSectors(ctx, 1<<20-4096, 2)
	test.That(t, errors.As(err, &rangeErr), test.ShouldBeTrue)

	test.That(t, chip.Transactions(), test.ShouldEqual, int64(0))

	// The last byte is in range.
	test.That(t, f.Read(ctx, 1<<20-1, make([]byte, 1)), test.ShouldBeNil)
}

func TestEraseUnalignedSendsNothing(t *testing.T) {
	f, chip := newFlash(t, fake.Config{}, nil)
	ctx := context.Background()

	err := f.EraseSectors(ctx, 100, 1)
	var unaligned *UnalignedError
	test.That(t, errors.As(err, &unaligned), test.ShouldBeTrue)
	test.That(t, unaligned.Addr, test.ShouldEqual, uint32(100))
	test.That(t, unaligned.Alignment, test.ShouldEqual, uint32(4096))

	err = f.EraseBlock(ctx, 0x1000)
	test.That(t, errors.As(err, &unaligned), test.ShouldBeTrue)
	test.That(t, unaligned.Alignment, test.ShouldEqual, uint32(65536))

	err = f.EraseRange(ctx, 0x1000, 100)
	test.That(t, errors.As(err, &unaligned), test.ShouldBeTrue)

	test.That(t, f.EraseSectors(ctx, 0, -1), test.ShouldNotBeNil)
	test.That(t, chip.Transactions(), test.ShouldEqual, int64(0))
}

func TestEraseSectorsSequence(t *testing.T) {
	f, chip := newFlash(t, fake.Config{SectorErasePolls: 1}, nil)
	chip.Load(0x2000, pattern(3*4096))

	test.That(t, f.EraseSectors(context.Background(), 0x2000, 3), test.ShouldBeNil)

	var want []byte
	for i := 0; i < 3; i++ {
		want = append(want, codec.OpWriteEnable, codec.OpSectorErase, codec.OpReadStatus, codec.OpReadStatus)
	}
	test.That(t, chip.Opcodes(), test.ShouldResemble, want)
	test.That(t, bytes.Count(chip.Memory()[0x2000:0x5000], []byte{0xFF}), test.ShouldEqual, 3*4096)
	test.That(t, chip.Violations(), test.ShouldEqual, int64(0))
}

func TestEraseBlock32(t *testing.T) {
	f, chip := newFlash(t, fake.Config{}, &Config{BlockSizeBytes: 32 << 10})
	chip.Load(0x8000, pattern(32<<10))

	test.That(t, f.EraseBlock(context.Background(), 0x8000), test.ShouldBeNil)
	test.That(t, chip.Frames()[1], test.ShouldResemble, []byte{codec.OpBlockErase32, 0x00, 0x80, 0x00})
	test.That(t, bytes.Count(chip.Memory()[0x8000:0x10000], []byte{0xFF}), test.ShouldEqual, 32<<10)
}

func TestEraseRangeMixesBlocksAndSectors(t *testing.T) {
	f, chip := newFlash(t, fake.Config{}, nil)
	chip.Load(0xF000, pattern(0x12000))

	test.That(t, f.EraseRange(context.Background(), 0xF000, 0x12000), test.ShouldBeNil)

	var erases [][]byte
	for _, frame := range chip.Frames() {
		switch frame[0] {
		case codec.OpSectorErase, codec.OpBlockErase64:
			erases = append(erases, frame)
		}
	}
	want := [][]byte{
		{codec.OpSectorErase, 0x00, 0xF0, 0x00},
		{codec.OpBlockErase64, 0x01, 0x00, 0x00},
		{codec.OpSectorErase, 0x02, 0x00, 0x00},
	}
	if diff := cmp.Diff(want, erases); diff != "" {
		t.Errorf("erase sequence mismatch (-want +got):\n%s", diff)
	}
	test.That(t, bytes.Count(chip.Memory()[0xF000:0x21000], []byte{0xFF}), test.ShouldEqual, 0x12000)
}

func TestEraseAllThenRead(t *testing.T) {
	f, chip := newFlash(t, fake.Config{Capacity: 1 << 20, ID: codec.DeviceID{Manufacturer: 0xEF, Device: 0x4014}, ChipErasePolls: 10}, nil)
	chip.Load(0, pattern(4096))
	chip.Load(1<<20-4096, pattern(4096))

	test.That(t, f.EraseAll(context.Background()), test.ShouldBeNil)
	test.That(t, chip.Frames()[1], test.ShouldResemble, []byte{codec.OpChipErase})
	test.That(t, chip.StatusReads(), test.ShouldEqual, int64(11))

	buf := make([]byte, 256)
	test.That(t, f.Read(context.Background(), 0, buf), test.ShouldBeNil)
	test.That(t, buf, test.ShouldResemble, bytes.Repeat([]byte{codec.ErasedValue}, 256))

	all := make([]byte, 1<<20)
	test.That(t, f.Read(context.Background(), 0, all), test.ShouldBeNil)
	test.That(t, bytes.Count(all, []byte{codec.ErasedValue}), test.ShouldEqual, 1<<20)
}

func TestTransportFailureDuringPoll(t *testing.T) {
	f, chip := newFlash(t, fake.Config{SectorErasePolls: 5}, nil)
	glitch := errors.New("spi glitch")
	chip.SetFault(fake.FailAt(codec.OpReadStatus, 3, glitch))

	err := f.EraseSectors(context.Background(), 0, 2)
	test.That(t, err, test.ShouldNotBeNil)
	var trErr *TransportError
	test.That(t, errors.As(err, &trErr), test.ShouldBeTrue)
	test.That(t, trErr.Op, test.ShouldEqual, "read status")
	test.That(t, errors.Is(err, glitch), test.ShouldBeTrue)

	// No retry and no second sector.
	test.That(t, chip.Opcodes(), test.ShouldResemble, []byte{
		codec.OpWriteEnable, codec.OpSectorErase, codec.OpReadStatus, codec.OpReadStatus,
	})
	test.That(t, f.State(), test.ShouldEqual, StateIdle)
}

func TestPartialWrite(t *testing.T) {
	f, chip := newFlash(t, fake.Config{}, nil)
	chip.SetFault(fake.FailAt(codec.OpPageProgram, 2, errors.New("spi glitch")))
	data := pattern(512)

	err := f.WriteBytes(context.Background(), 0, data)
	var partial *PartialWriteError
	test.That(t, errors.As(err, &partial), test.ShouldBeTrue)
	test.That(t, partial.BytesWritten, test.ShouldEqual, 256)
	var trErr *TransportError
	test.That(t, errors.As(err, &trErr), test.ShouldBeTrue)
	test.That(t, trErr.Op, test.ShouldEqual, "page program")

	test.That(t, chip.Memory()[:256], test.ShouldResemble, data[:256])
	test.That(t, bytes.Count(chip.Memory()[256:512], []byte{0xFF}), test.ShouldEqual, 256)

	// The failed program left the latch set; it was cleared again.
	ops := chip.Opcodes()
	test.That(t, ops[len(ops)-2:], test.ShouldResemble, []byte{codec.OpWriteEnable, codec.OpWriteDisable})
	test.That(t, chip.WriteEnabled(), test.ShouldBeFalse)

	// The driver is still usable.
	chip.SetFault(nil)
	test.That(t, f.WriteBytes(context.Background(), 256, data[256:]), test.ShouldBeNil)
	test.That(t, chip.Memory()[:512], test.ShouldResemble, data)
}

func TestStuckBusyTimesOut(t *testing.T) {
	waits := 0
	delay := transport.DelayFunc(func(ctx context.Context, d time.Duration) error {
		waits++
		test.That(t, d, test.ShouldEqual, time.Millisecond)
		return nil
	})
	chip := fake.NewChip(fake.Config{SectorErasePolls: 1 << 30})
	f, err := New(context.Background(), newTransport(chip), delay, &Config{SectorEraseTimeoutMs: 10}, nil)
	test.That(t, err, test.ShouldBeNil)

	err = f.EraseSectors(context.Background(), 0, 1)
	var timeout *TimeoutError
	test.That(t, errors.As(err, &timeout), test.ShouldBeTrue)
	test.That(t, timeout.Attempts, test.ShouldEqual, 11)
	test.That(t, timeout.Bound, test.ShouldEqual, 10*time.Millisecond)
	test.That(t, timeout.Op, test.ShouldEqual, "sector erase")
	test.That(t, waits, test.ShouldEqual, 10)
	test.That(t, f.State(), test.ShouldEqual, StateIdle)
}

func TestPollCanceled(t *testing.T) {
	chip := fake.NewChip(fake.Config{ChipErasePolls: 1 << 30})
	f, err := New(context.Background(), newTransport(chip), transport.ContextDelay{}, &Config{ChipEraseTimeoutMs: -1}, nil)
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = f.EraseAll(ctx)
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)
	test.That(t, chip.StatusReads(), test.ShouldBeGreaterThan, int64(1))
}

func TestPollBounds(t *testing.T) {
	w25q32, ok := codec.LookupPart(fake.DefaultID)
	test.That(t, ok, test.ShouldBeTrue)

	b := newPollBounds(&Config{}, w25q32.Timings, codec.EraseBlock64)
	test.That(t, b.interval, test.ShouldEqual, DefaultPollInterval)
	test.That(t, b.forErase(codec.EraseSector), test.ShouldEqual, 400*time.Millisecond)
	test.That(t, b.forErase(codec.EraseBlock64), test.ShouldEqual, 2*time.Second)
	test.That(t, b.forErase(codec.EraseChip), test.ShouldEqual, 50*time.Second)
	test.That(t, b.pageProgram, test.ShouldEqual, 3*time.Millisecond)
	test.That(t, b.attempts(b.pageProgram), test.ShouldEqual, 4)

	b = newPollBounds(&Config{ChipEraseTimeoutMs: -1, PollIntervalUs: 500, PageProgramTimeoutMs: 2}, w25q32.Timings, codec.EraseBlock64)
	test.That(t, b.attempts(b.chipErase), test.ShouldEqual, -1)
	test.That(t, b.attempts(b.pageProgram), test.ShouldEqual, 5)

	b = newPollBounds(&Config{}, codec.MaxTimings(), codec.EraseBlock32)
	test.That(t, b.blockErase, test.ShouldEqual, 1600*time.Millisecond)
}

func TestNewRejectsMissingBlockErase(t *testing.T) {
	micron := codec.DeviceID{Manufacturer: 0x20, Device: 0xBA16}
	chip := fake.NewChip(fake.Config{ID: micron})

	_, err := New(context.Background(), newTransport(chip), noDelay,
		&Config{BlockSizeBytes: 32 << 10}, logging.NewTestLogger(t))
	var initErr *InitError
	test.That(t, errors.As(err, &initErr), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no 32768 byte block erase")
	test.That(t, chip.Opcodes(), test.ShouldResemble, []byte{codec.OpReadJEDECID})

	// Its native 64 KiB block erase is fine.
	f, err := New(context.Background(), newTransport(chip), noDelay, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.PartName(), test.ShouldEqual, "Micron N25Q 32Mb")
	test.That(t, f.EraseBlock(context.Background(), 0x10000), test.ShouldBeNil)
}

func TestStateDuringOperation(t *testing.T) {
	var f *Flash
	var seen []State
	delay := transport.DelayFunc(func(ctx context.Context, d time.Duration) error {
		seen = append(seen, f.State())
		return nil
	})
	chip := fake.NewChip(fake.Config{ProgramPolls: 2})
	var err error
	f, err = New(context.Background(), newTransport(chip), delay, nil, nil)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, f.WriteBytes(context.Background(), 0, []byte{1}), test.ShouldBeNil)
	test.That(t, seen, test.ShouldResemble, []State{StatePolling, StatePolling})
	test.That(t, f.State(), test.ShouldEqual, StateIdle)
	test.That(t, StateCommandIssued.String(), test.ShouldEqual, "command issued")
}

func TestReadChunking(t *testing.T) {
	f, chip := newFlash(t, fake.Config{}, &Config{MaxTransferBytes: 64})
	data := pattern(200)
	chip.Load(0x300, data)

	got := make([]byte, len(data))
	test.That(t, f.Read(context.Background(), 0x300, got), test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, data)

	frames := chip.Frames()
	test.That(t, frames, test.ShouldHaveLength, 4)
	for _, frame := range frames {
		test.That(t, len(frame), test.ShouldBeLessThanOrEqualTo, 64)
	}
	test.That(t, frames[3][:4], test.ShouldResemble, []byte{codec.OpRead, 0x00, 0x03, 0xB4})

	// Page programs obey the same limit.
	chip.ResetFrames()
	test.That(t, f.WriteBytes(context.Background(), 0x10000, pattern(256)), test.ShouldBeNil)
	for _, frame := range chip.Frames() {
		test.That(t, len(frame), test.ShouldBeLessThanOrEqualTo, 64)
	}
	test.That(t, chip.Memory()[0x10000:0x10100], test.ShouldResemble, pattern(256))
}

func TestPowerDown(t *testing.T) {
	var waits []time.Duration
	delay := transport.DelayFunc(func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	})
	chip := fake.NewChip(fake.Config{})
	f, err := New(context.Background(), newTransport(chip), delay, nil, nil)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, f.PowerDown(context.Background()), test.ShouldBeNil)
	test.That(t, chip.PoweredDown(), test.ShouldBeTrue)
	test.That(t, f.ReleasePowerDown(context.Background()), test.ShouldBeNil)
	test.That(t, chip.PoweredDown(), test.ShouldBeFalse)
	test.That(t, waits, test.ShouldResemble, []time.Duration{3 * time.Microsecond, 3 * time.Microsecond})

	chip.SetFault(fake.FailAt(codec.OpPowerDown, 1, errors.New("spi glitch")))
	var trErr *TransportError
	test.That(t, errors.As(f.PowerDown(context.Background()), &trErr), test.ShouldBeTrue)
}

func TestReaderWriterAt(t *testing.T) {
	f, chip := newFlash(t, fake.Config{Capacity: 1 << 20, ID: codec.DeviceID{Manufacturer: 0xEF, Device: 0x4014}}, nil)
	ctx := context.Background()

	w := f.WriterAt(ctx)
	n, err := w.WriteAt([]byte("hello"), 0x400)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 5)

	r := f.ReaderAt(ctx)
	buf := make([]byte, 5)
	n, err = r.ReadAt(buf, 0x400)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 5)
	test.That(t, string(buf), test.ShouldEqual, "hello")

	sr := io.NewSectionReader(r, 1<<20-4, 8)
	tail, err := io.ReadAll(sr)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tail, test.ShouldResemble, []byte{0xFF, 0xFF, 0xFF, 0xFF})

	n, err = r.ReadAt(buf, 1<<20)
	test.That(t, n, test.ShouldEqual, 0)
	test.That(t, err, test.ShouldEqual, io.EOF)

	_, err = r.ReadAt(buf, -1)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = w.WriteAt([]byte{1}, 1<<20+1)
	var rangeErr *OutOfRangeError
	test.That(t, errors.As(err, &rangeErr), test.ShouldBeTrue)

	chip.SetFault(fake.FailAt(codec.OpPageProgram, 2, errors.New("spi glitch")))
	n, err = w.WriteAt(pattern(300), 0x1000)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, n, test.ShouldEqual, 256)
}

func TestLogsToObserver(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	chip := fake.NewChip(fake.Config{})
	f, err := New(context.Background(), newTransport(chip), noDelay, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, f.EraseSectors(context.Background(), 0, 1), test.ShouldBeNil)
	test.That(t, logs.FilterMessage("erasing").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("flash ready").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("command complete").Len(), test.ShouldEqual, 1)
}
