package series25

import (
	"context"
	"time"

	"github.com/swobbee-dev/spi-memory/components/flash/codec"
)

// State is the phase of the mutating operation in progress.
type State int32

// Phases of a mutating operation: Idle -> WriteEnabled -> CommandIssued -> Polling -> Idle.
const (
	StateIdle State = iota
	StateWriteEnabled
	StateCommandIssued
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWriteEnabled:
		return "write enabled"
	case StateCommandIssued:
		return "command issued"
	case StatePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// State returns the phase of the operation in progress. It is safe to call from any goroutine and
// is always StateIdle once an operation returned.
func (f *Flash) State() State {
	return State(f.state.Load())
}

func (f *Flash) setState(s State) {
	f.state.Store(int32(s))
}

// pollBounds holds the backoff and the per-command busy bounds. A negative bound is unbounded.
type pollBounds struct {
	interval    time.Duration
	pageProgram time.Duration
	sectorErase time.Duration
	blockErase  time.Duration
	chipErase   time.Duration
}

func newPollBounds(conf *Config, timings codec.Timings, blockKind codec.EraseKind) pollBounds {
	return pollBounds{
		interval:    conf.pollInterval(),
		pageProgram: bound(conf.PageProgramTimeoutMs, timings.PageProgram),
		sectorErase: bound(conf.SectorEraseTimeoutMs, timings.SectorErase),
		blockErase:  bound(conf.BlockEraseTimeoutMs, timings.Erase(blockKind)),
		chipErase:   bound(conf.ChipEraseTimeoutMs, timings.ChipErase),
	}
}

func (b pollBounds) forErase(kind codec.EraseKind) time.Duration {
	switch kind {
	case codec.EraseSector:
		return b.sectorErase
	case codec.EraseChip:
		return b.chipErase
	default:
		return b.blockErase
	}
}

// attempts converts a duration bound into a number of status reads; -1 is unbounded. The first
// read happens without a backoff, so a bound of d allows d/interval backoffs.
func (b pollBounds) attempts(d time.Duration) int {
	if d < 0 {
		return -1
	}
	if b.interval <= 0 {
		return 1
	}
	return int(d/b.interval) + 1
}

// execute runs one mutating command: write enable, the command, then polling until the busy bit
// clears. The state returns to idle however it ends.
func (f *Flash) execute(ctx context.Context, op string, frame codec.Frame, bound time.Duration) error {
	defer f.setState(StateIdle)

	if err := f.send(ctx, "write enable", f.codec.EncodeWriteEnable()); err != nil {
		return err
	}
	f.setState(StateWriteEnabled)

	if err := f.send(ctx, op, frame); err != nil {
		// The command never arrived, so drop the latch it was meant to consume.
		//nolint:errcheck
		f.send(ctx, "write disable", f.codec.EncodeWriteDisable())
		return err
	}
	f.setState(StateCommandIssued)

	return f.waitReady(ctx, op, bound)
}

// waitReady polls the status register until the busy bit clears. The bus is released between
// polls, so other devices can use it during the backoff.
func (f *Flash) waitReady(ctx context.Context, op string, bound time.Duration) error {
	f.setState(StatePolling)
	limit := f.bounds.attempts(bound)
	for attempt := 1; ; attempt++ {
		status, err := f.ReadStatus(ctx)
		if err != nil {
			return err
		}
		if !status.Busy() {
			f.logger.CDebugw(ctx, "command complete", "op", op, "polls", attempt)
			return nil
		}
		if limit >= 0 && attempt >= limit {
			return &TimeoutError{Op: op, Attempts: attempt, Bound: bound}
		}
		if err := f.delay.Wait(ctx, f.bounds.interval); err != nil {
			return err
		}
	}
}
