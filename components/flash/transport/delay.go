package transport

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	goutils "go.viam.com/utils"
)

// BlockingDelay sleeps on the calling goroutine and cannot be interrupted.
type BlockingDelay struct{}

// Wait sleeps for d.
func (BlockingDelay) Wait(_ context.Context, d time.Duration) error {
	if d > 0 {
		time.Sleep(d)
	}
	return nil
}

// ContextDelay waits for d or until ctx is done, whichever comes first.
type ContextDelay struct{}

// Wait returns ctx.Err() if ctx is done before d elapses.
func (ContextDelay) Wait(ctx context.Context, d time.Duration) error {
	if !goutils.SelectContextOrWait(ctx, d) {
		return ctx.Err()
	}
	return nil
}

// ClockDelay waits on an injectable clock. With clock.NewMock it lets tests step time by hand.
type ClockDelay struct {
	Clock clock.Clock
}

// NewClockDelay returns a ClockDelay on c, or on the wall clock if c is nil.
func NewClockDelay(c clock.Clock) *ClockDelay {
	if c == nil {
		c = clock.New()
	}
	return &ClockDelay{Clock: c}
}

// Wait blocks until the clock advanced by d or ctx is done.
func (cd *ClockDelay) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := cd.Clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DelayFunc adapts a function to the Delay interface.
type DelayFunc func(ctx context.Context, d time.Duration) error

// Wait calls f.
func (f DelayFunc) Wait(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}
