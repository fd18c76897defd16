package series25

import (
	"fmt"
	"time"
)

// TransportError is returned when the bus exchange of a command failed. The driver never retries.
type TransportError struct {
	// Op names the command whose transaction failed, e.g. "read status".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("flash %s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnalignedError is returned when an erase address is not a multiple of its erase granularity.
type UnalignedError struct {
	Addr      uint32
	Alignment uint32
}

func (e *UnalignedError) Error() string {
	return fmt.Sprintf("address 0x%X is not aligned to %d bytes", e.Addr, e.Alignment)
}

// OutOfRangeError is returned when [Addr, Addr+Length) exceeds the device capacity.
type OutOfRangeError struct {
	Addr     uint32
	Length   uint64
	Capacity uint32
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("range 0x%X+%d exceeds capacity of %d bytes", e.Addr, e.Length, e.Capacity)
}

// TimeoutError is returned when the busy bit did not clear within the poll bound. The device may
// still be busy.
type TimeoutError struct {
	Op       string
	Attempts int
	Bound    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("flash %s: device still busy after %d status polls (bound %v)", e.Op, e.Attempts, e.Bound)
}

// PartialWriteError is returned when a write failed after it was split into page programs.
// BytesWritten bytes from the start of the request were committed and are not rolled back.
type PartialWriteError struct {
	BytesWritten int
	Err          error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("write failed after %d bytes: %v", e.BytesWritten, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// InitError is returned by New when the device could not be brought up.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("flash init: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }
