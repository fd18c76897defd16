package codec

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrShortResponse is matched by every DecodeError.
var ErrShortResponse = errors.New("short response")

// DecodeError indicates that a response or frame was shorter than its decoder requires. It only
// shows up when a transport returns fewer bytes than it was given.
type DecodeError struct {
	What string
	Want int
	Got  int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: short response, want %d bytes, got %d", e.What, e.Want, e.Got)
}

// Is makes errors.Is(err, ErrShortResponse) hold for any DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrShortResponse
}

// UnknownOpcodeError is returned by DecodeFrame for opcodes outside the 25-series command set.
type UnknownOpcodeError struct {
	Opcode byte
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("unknown opcode 0x%02X", e.Opcode)
}
