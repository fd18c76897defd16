// Package codec encodes 25-series serial NOR flash commands into SPI frames and decodes the
// device's responses. It performs no I/O.
//
// Every frame is a full-duplex transaction: the bytes clocked in while the opcode and address
// are clocked out are meaningless, and the response of a read-type command sits at the tail of
// the received buffer. Frame.Response extracts it.
package codec

import (
	"github.com/pkg/errors"
)

// Frame is one encoded chip-select-qualified transaction.
type Frame struct {
	// Tx is the full byte sequence to clock out, including filler bytes for any response.
	Tx []byte

	respOffset int
	respLen    int
}

// Opcode returns the command byte of the frame.
func (f Frame) Opcode() byte {
	if len(f.Tx) == 0 {
		return 0
	}
	return f.Tx[0]
}

// ResponseLen is the number of response bytes the frame clocks in.
func (f Frame) ResponseLen() int {
	return f.respLen
}

// Response returns the response window of rx, the buffer received while Tx was clocked out.
func (f Frame) Response(rx []byte) ([]byte, error) {
	if len(rx) < f.respOffset+f.respLen {
		return nil, &DecodeError{What: "response", Want: f.respOffset + f.respLen, Got: len(rx)}
	}
	return rx[f.respOffset : f.respOffset+f.respLen], nil
}

// Codec frames commands for a given address width.
type Codec struct {
	Width AddressWidth
}

// New returns a codec for the given address width.
func New(width AddressWidth) (Codec, error) {
	if !width.Valid() {
		return Codec{}, errors.Errorf("unsupported address width %d", width)
	}
	return Codec{Width: width}, nil
}

func (c Codec) width() int {
	if c.Width == Address4Byte {
		return 4
	}
	return 3
}

// header writes opcode and big-endian address into a new buffer of headerLen+extra bytes.
func (c Codec) header(op byte, addr uint32, extra int) []byte {
	w := c.width()
	buf := make([]byte, 1+w+extra)
	buf[0] = op
	for i := 0; i < w; i++ {
		buf[w-i] = byte(addr >> (8 * i))
	}
	return buf
}

func (c Codec) pick(op3, op4 byte) byte {
	if c.Width == Address4Byte {
		return op4
	}
	return op3
}

// EncodeRead frames a read of n bytes at addr. The device auto-increments its address counter
// so n is bounded only by what the transport can move in one transaction.
func (c Codec) EncodeRead(addr uint32, n int) Frame {
	tx := c.header(c.pick(OpRead, OpRead4B), addr, n)
	return Frame{Tx: tx, respOffset: 1 + c.width(), respLen: n}
}

// EncodePageProgram frames a page program of data at addr. The caller guarantees that data does
// not cross a page boundary: the device wraps to the start of the page instead of advancing.
func (c Codec) EncodePageProgram(addr uint32, data []byte) Frame {
	tx := c.header(c.pick(OpPageProgram, OpPageProgram4B), addr, len(data))
	copy(tx[1+c.width():], data)
	return Frame{Tx: tx}
}

// EncodeErase frames an erase of the given kind. addr is ignored for EraseChip.
func (c Codec) EncodeErase(kind EraseKind, addr uint32) (Frame, error) {
	var op byte
	switch kind {
	case EraseSector:
		op = c.pick(OpSectorErase, OpSectorErase4B)
	case EraseBlock32:
		op = c.pick(OpBlockErase32, OpBlockErase32Addr4B)
	case EraseBlock64:
		op = c.pick(OpBlockErase64, OpBlockErase64Addr4B)
	case EraseChip:
		return Frame{Tx: []byte{OpChipErase}}, nil
	default:
		return Frame{}, errors.Errorf("unknown erase kind %d", kind)
	}
	return Frame{Tx: c.header(op, addr, 0)}, nil
}

// EncodeWriteEnable frames the write enable command that must precede every program or erase.
func (c Codec) EncodeWriteEnable() Frame {
	return Frame{Tx: []byte{OpWriteEnable}}
}

// EncodeWriteDisable frames the write disable command.
func (c Codec) EncodeWriteDisable() Frame {
	return Frame{Tx: []byte{OpWriteDisable}}
}

// EncodeReadStatus frames a read of status register 1.
func (c Codec) EncodeReadStatus() Frame {
	tx := make([]byte, 1+statusResponseLen)
	tx[0] = OpReadStatus
	return Frame{Tx: tx, respOffset: 1, respLen: statusResponseLen}
}

// EncodeReadJEDECID frames a JEDEC ID read: manufacturer followed by a 2-byte device ID.
func (c Codec) EncodeReadJEDECID() Frame {
	tx := make([]byte, 1+jedecResponseLen)
	tx[0] = OpReadJEDECID
	return Frame{Tx: tx, respOffset: 1, respLen: jedecResponseLen}
}

// EncodePowerDown frames the deep power-down command.
func (c Codec) EncodePowerDown() Frame {
	return Frame{Tx: []byte{OpPowerDown}}
}

// EncodeReleasePowerDown frames the release from deep power-down command.
func (c Codec) EncodeReleasePowerDown() Frame {
	return Frame{Tx: []byte{OpReleasePowerDown}}
}

// Command is a frame decoded back into its parts, the device side view of a transaction.
type Command struct {
	Opcode  byte
	Addr    uint32
	HasAddr bool
	// Payload is everything after the header: program data, or filler for read-type commands.
	Payload []byte
	// HeaderLen is the offset of Payload in the frame.
	HeaderLen int
}

// DecodeFrame parses a transmitted frame. It is the inverse of the Encode methods and is what a
// simulated device uses to interpret traffic.
func (c Codec) DecodeFrame(tx []byte) (Command, error) {
	if len(tx) == 0 {
		return Command{}, &DecodeError{What: "frame", Want: 1, Got: 0}
	}
	cmd := Command{Opcode: tx[0], HeaderLen: 1}
	addrLen := 0
	switch tx[0] {
	case OpRead, OpPageProgram, OpSectorErase, OpBlockErase32, OpBlockErase64:
		addrLen = 3
	case OpRead4B, OpPageProgram4B, OpSectorErase4B, OpBlockErase32Addr4B, OpBlockErase64Addr4B:
		addrLen = 4
	case OpWriteEnable, OpWriteDisable, OpReadStatus, OpReadJEDECID,
		OpPowerDown, OpReleasePowerDown, OpChipErase:
	default:
		return Command{}, &UnknownOpcodeError{Opcode: tx[0]}
	}
	if addrLen > 0 {
		if len(tx) < 1+addrLen {
			return Command{}, &DecodeError{What: "frame address", Want: 1 + addrLen, Got: len(tx)}
		}
		for _, b := range tx[1 : 1+addrLen] {
			cmd.Addr = cmd.Addr<<8 | uint32(b)
		}
		cmd.HasAddr = true
		cmd.HeaderLen += addrLen
	}
	cmd.Payload = tx[cmd.HeaderLen:]
	return cmd, nil
}
