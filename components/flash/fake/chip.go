// Package fake implements a simulated 25-series flash chip on a fake SPI bus.
//
// The chip behaves like real NOR flash where it matters to a driver: erased bytes read 0xFF,
// programming can only clear bits and wraps inside a page, program and erase need the write
// enable latch, and the busy bit stays set for a configurable number of status polls. Commands
// other than read status that arrive while the chip is busy are ignored and counted, as are
// programs and erases sent without write enable, so tests can assert a driver never did either.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/swobbee-dev/spi-memory/components/board/genericlinux/buses"
	"github.com/swobbee-dev/spi-memory/components/flash/codec"
)

// A Config describes the simulated part. Zero fields take the defaults of a 4 MiB Winbond W25Q32.
type Config struct {
	ID       codec.DeviceID `json:"-"`
	Capacity uint32         `json:"capacity_bytes,omitempty"`
	PageSize uint32         `json:"page_size_bytes,omitempty"`

	// Number of status reads that report busy after each command.
	ProgramPolls     int `json:"program_polls,omitempty"`
	SectorErasePolls int `json:"sector_erase_polls,omitempty"`
	BlockErasePolls  int `json:"block_erase_polls,omitempty"`
	ChipErasePolls   int `json:"chip_erase_polls,omitempty"`
}

// Defaults of the simulated part.
var (
	DefaultID       = codec.DeviceID{Manufacturer: 0xEF, Device: 0x4016}
	DefaultCapacity = uint32(4 << 20)
)

// Fault decides whether a transaction fails. n counts transactions from 1. A non-nil error is
// returned from Xfer and the chip does not see the command.
type Fault func(n int64, cmd codec.Command) error

// Chip is a simulated flash chip and the SPI bus it sits on.
type Chip struct {
	bus sync.Mutex

	mu          sync.Mutex
	conf        Config
	mem         []byte
	wel         bool
	busyPolls   int
	stuckBusy   bool
	poweredDown bool
	fault       Fault
	frames      [][]byte
	closed      bool

	transactions atomic.Int64
	statusReads  atomic.Int64
	violations   atomic.Int64
}

// NewChip returns an erased chip.
func NewChip(conf Config) *Chip {
	if conf.ID == (codec.DeviceID{}) {
		conf.ID = DefaultID
	}
	if conf.Capacity == 0 {
		conf.Capacity = DefaultCapacity
	}
	if conf.PageSize == 0 {
		conf.PageSize = codec.DefaultPageSize
	}
	mem := make([]byte, conf.Capacity)
	for i := range mem {
		mem[i] = codec.ErasedValue
	}
	return &Chip{conf: conf, mem: mem}
}

// OpenHandle locks the bus.
func (c *Chip) OpenHandle() (buses.SPIHandle, error) {
	c.bus.Lock()
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		c.bus.Unlock()
		return nil, errors.New("fake SPI bus is closed")
	}
	return &handle{chip: c}, nil
}

// Close closes the bus. Handles can no longer be opened.
func (c *Chip) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type handle struct {
	chip   *Chip
	closed bool
}

func (h *handle) Xfer(ctx context.Context, baud uint, chipSelect string, mode uint, tx []byte) ([]byte, error) {
	if h.closed {
		return nil, errors.New("can't use Xfer() on an already closed SPIHandle")
	}
	if mode != 0 && mode != 3 {
		return nil, errors.Errorf("flash supports SPI mode 0 and 3, got %d", mode)
	}
	return h.chip.exchange(tx)
}

func (h *handle) Close() error {
	if h.closed {
		return errors.New("SPIHandle already closed")
	}
	h.closed = true
	h.chip.bus.Unlock()
	return nil
}

// exchange is one chip-select-qualified transaction as seen by the chip.
func (c *Chip) exchange(tx []byte) ([]byte, error) {
	n := c.transactions.Inc()
	cmd, err := codec.Codec{}.DecodeFrame(tx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fault != nil {
		if err := c.fault(n, cmd); err != nil {
			return nil, err
		}
	}
	c.frames = append(c.frames, append([]byte(nil), tx...))

	rx := make([]byte, len(tx))
	for i := range rx {
		rx[i] = 0xFF
	}
	if c.poweredDown {
		if cmd.Opcode == codec.OpReleasePowerDown {
			c.poweredDown = false
		}
		return rx, nil
	}

	if cmd.Opcode == codec.OpReadStatus {
		c.statusReads.Inc()
		status := c.status()
		for i := range cmd.Payload {
			rx[cmd.HeaderLen+i] = byte(status)
		}
		if c.busyPolls > 0 {
			c.busyPolls--
		}
		return rx, nil
	}
	if c.busy() {
		c.violations.Inc()
		return rx, nil
	}

	switch cmd.Opcode {
	case codec.OpReadJEDECID:
		resp := []byte{c.conf.ID.Manufacturer, byte(c.conf.ID.Device >> 8), byte(c.conf.ID.Device)}
		copy(rx[cmd.HeaderLen:], resp)
	case codec.OpWriteEnable:
		c.wel = true
	case codec.OpWriteDisable:
		c.wel = false
	case codec.OpRead, codec.OpRead4B:
		for i := range cmd.Payload {
			rx[cmd.HeaderLen+i] = c.mem[(cmd.Addr+uint32(i))%c.conf.Capacity]
		}
	case codec.OpPageProgram, codec.OpPageProgram4B:
		if !c.writeEnabled() {
			break
		}
		base := cmd.Addr % c.conf.Capacity
		base -= base % c.conf.PageSize
		offset := cmd.Addr % c.conf.PageSize
		for i, b := range cmd.Payload {
			c.mem[base+(offset+uint32(i))%c.conf.PageSize] &= b
		}
		c.busyPolls = c.conf.ProgramPolls
	case codec.OpSectorErase, codec.OpSectorErase4B:
		c.erase(cmd.Addr, codec.EraseSector.Size(), c.conf.SectorErasePolls)
	case codec.OpBlockErase32, codec.OpBlockErase32Addr4B:
		c.erase(cmd.Addr, codec.EraseBlock32.Size(), c.conf.BlockErasePolls)
	case codec.OpBlockErase64, codec.OpBlockErase64Addr4B:
		c.erase(cmd.Addr, codec.EraseBlock64.Size(), c.conf.BlockErasePolls)
	case codec.OpChipErase:
		c.erase(0, c.conf.Capacity, c.conf.ChipErasePolls)
	case codec.OpPowerDown:
		c.poweredDown = true
	case codec.OpReleasePowerDown:
	}
	return rx, nil
}

// writeEnabled consumes the write enable latch. A program or erase without it is a violation.
func (c *Chip) writeEnabled() bool {
	if !c.wel {
		c.violations.Inc()
		return false
	}
	c.wel = false
	return true
}

func (c *Chip) erase(addr, size uint32, polls int) {
	if !c.writeEnabled() {
		return
	}
	start := addr % c.conf.Capacity
	start -= start % size
	for i := start; i < start+size && i < c.conf.Capacity; i++ {
		c.mem[i] = codec.ErasedValue
	}
	c.busyPolls = polls
}

func (c *Chip) busy() bool {
	return c.stuckBusy || c.busyPolls > 0
}

func (c *Chip) status() codec.Status {
	var s codec.Status
	if c.busy() {
		s |= codec.StatusBusy
	}
	if c.wel {
		s |= codec.StatusWriteEnableLatch
	}
	return s
}

// SetStuckBusy makes the busy bit stick until cleared again.
func (c *Chip) SetStuckBusy(stuck bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stuckBusy = stuck
}

// SetFault installs a fault injector, nil removes it.
func (c *Chip) SetFault(fault Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fault = fault
}

// FailAt returns a Fault that fails the n-th transaction carrying opcode.
func FailAt(opcode byte, n int, err error) Fault {
	seen := 0
	return func(_ int64, cmd codec.Command) error {
		if cmd.Opcode != opcode {
			return nil
		}
		seen++
		if seen == n {
			return err
		}
		return nil
	}
}

// Frames returns a copy of every transmitted frame since the last ResetFrames.
func (c *Chip) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

// Opcodes returns the opcode of every recorded frame.
func (c *Chip) Opcodes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f[0])
	}
	return out
}

// ResetFrames clears the frame record and the counters.
func (c *Chip) ResetFrames() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
	c.transactions.Store(0)
	c.statusReads.Store(0)
	c.violations.Store(0)
}

// Transactions is the number of transactions since the last ResetFrames, failed ones included.
func (c *Chip) Transactions() int64 {
	return c.transactions.Load()
}

// StatusReads is the number of read status transactions since the last ResetFrames.
func (c *Chip) StatusReads() int64 {
	return c.statusReads.Load()
}

// Violations counts commands the chip ignored because it was busy or not write enabled.
func (c *Chip) Violations() int64 {
	return c.violations.Load()
}

// Memory returns a copy of the chip contents.
func (c *Chip) Memory() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.mem...)
}

// Load overwrites contents at addr, bypassing program semantics.
func (c *Chip) Load(addr uint32, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.mem[addr:], data)
}

// WriteEnabled reports the write enable latch.
func (c *Chip) WriteEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wel
}

// PoweredDown reports deep power-down.
func (c *Chip) PoweredDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poweredDown
}
