package series25

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/swobbee-dev/spi-memory/components/flash/codec"
	"github.com/swobbee-dev/spi-memory/utils"
)

// ErrAsyncClosed is the result of operations submitted to, or still queued in, a closed Async.
var ErrAsyncClosed = errors.New("flash async front-end closed")

// Pending is the eventual result of an operation submitted to Async.
type Pending[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newPending[T any]() *Pending[T] {
	return &Pending[T]{done: make(chan struct{})}
}

func (p *Pending[T]) complete(value T, err error) {
	p.value, p.err = value, err
	close(p.done)
}

// Done is closed once the operation finished.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the operation finished or ctx is done. Giving up on ctx does not stop the
// operation: it still runs to completion on the device.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type job struct {
	run   func(ctx context.Context)
	abort func()
}

// Async runs driver operations on a single worker goroutine, strictly in submission order, and
// hands back a Pending for each. Callers on different goroutines can share it without breaking
// the device's single active command rule.
//
// Pair it with a suspending transport.Delay such as transport.ContextDelay so Close interrupts a
// long poll. An operation interrupted by Close may leave the device mid-erase or with the write
// enable latch set; read the status before trusting it again.
type Async struct {
	flash   *Flash
	workers utils.StoppableWorkers

	mu     sync.Mutex
	queue  []job
	wake   chan struct{}
	closed bool
}

// NewAsync starts the worker for f. f must not be used directly while the Async is open.
// Canceling ctx has the same effect as Close.
func NewAsync(ctx context.Context, f *Flash) *Async {
	a := &Async{
		flash: f,
		wake:  make(chan struct{}, 1),
	}
	a.workers = utils.NewStoppableWorkersWithContext(ctx, a.work)
	return a
}

func (a *Async) work(ctx context.Context) {
	defer a.abortQueued()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.wake:
		}
		for {
			a.mu.Lock()
			if len(a.queue) == 0 || ctx.Err() != nil {
				a.mu.Unlock()
				break
			}
			next := a.queue[0]
			a.queue = a.queue[1:]
			a.mu.Unlock()
			next.run(ctx)
		}
	}
}

func submit[T any](a *Async, op func(ctx context.Context, f *Flash) (T, error)) *Pending[T] {
	p := newPending[T]()
	var zero T

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		p.complete(zero, ErrAsyncClosed)
		return p
	}
	a.queue = append(a.queue, job{
		run: func(ctx context.Context) {
			defer func() {
				if r := recover(); r != nil {
					p.complete(zero, errors.Errorf("flash operation panicked: %v", r))
				}
			}()
			p.complete(op(ctx, a.flash))
		},
		abort: func() {
			p.complete(zero, ErrAsyncClosed)
		},
	})
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return p
}

func submitErr(a *Async, op func(ctx context.Context, f *Flash) error) *Pending[struct{}] {
	return submit(a, func(ctx context.Context, f *Flash) (struct{}, error) {
		return struct{}{}, op(ctx, f)
	})
}

// Close stops the worker. The operation in flight sees its context canceled, queued operations
// complete with ErrAsyncClosed.
func (a *Async) Close() error {
	a.workers.Stop()
	a.abortQueued()
	return nil
}

// abortQueued refuses further submissions and fails everything still queued.
func (a *Async) abortQueued() {
	a.mu.Lock()
	a.closed = true
	queued := a.queue
	a.queue = nil
	a.mu.Unlock()
	for _, j := range queued {
		j.abort()
	}
}

// Flash returns the driver behind a.
func (a *Async) Flash() *Flash {
	return a.flash
}

// ReadJEDECID queues Flash.ReadJEDECID.
func (a *Async) ReadJEDECID() *Pending[codec.DeviceID] {
	return submit(a, func(ctx context.Context, f *Flash) (codec.DeviceID, error) {
		return f.ReadJEDECID(ctx)
	})
}

// ReadStatus queues Flash.ReadStatus.
func (a *Async) ReadStatus() *Pending[codec.Status] {
	return submit(a, func(ctx context.Context, f *Flash) (codec.Status, error) {
		return f.ReadStatus(ctx)
	})
}

// Read queues Flash.Read. buf must not be touched until the Pending is done.
func (a *Async) Read(addr uint32, buf []byte) *Pending[struct{}] {
	return submitErr(a, func(ctx context.Context, f *Flash) error {
		return f.Read(ctx, addr, buf)
	})
}

// WriteBytes queues Flash.WriteBytes. data must not be modified until the Pending is done.
func (a *Async) WriteBytes(addr uint32, data []byte) *Pending[struct{}] {
	return submitErr(a, func(ctx context.Context, f *Flash) error {
		return f.WriteBytes(ctx, addr, data)
	})
}

// EraseSectors queues Flash.EraseSectors.
func (a *Async) EraseSectors(addr uint32, count int) *Pending[struct{}] {
	return submitErr(a, func(ctx context.Context, f *Flash) error {
		return f.EraseSectors(ctx, addr, count)
	})
}

// EraseBlock queues Flash.EraseBlock.
func (a *Async) EraseBlock(addr uint32) *Pending[struct{}] {
	return submitErr(a, func(ctx context.Context, f *Flash) error {
		return f.EraseBlock(ctx, addr)
	})
}

// EraseRange queues Flash.EraseRange.
func (a *Async) EraseRange(addr, length uint32) *Pending[struct{}] {
	return submitErr(a, func(ctx context.Context, f *Flash) error {
		return f.EraseRange(ctx, addr, length)
	})
}

// EraseAll queues Flash.EraseAll.
func (a *Async) EraseAll() *Pending[struct{}] {
	return submitErr(a, func(ctx context.Context, f *Flash) error {
		return f.EraseAll(ctx)
	})
}

// PowerDown queues Flash.PowerDown.
func (a *Async) PowerDown() *Pending[struct{}] {
	return submitErr(a, func(ctx context.Context, f *Flash) error {
		return f.PowerDown(ctx)
	})
}

// ReleasePowerDown queues Flash.ReleasePowerDown.
func (a *Async) ReleasePowerDown() *Pending[struct{}] {
	return submitErr(a, func(ctx context.Context, f *Flash) error {
		return f.ReleasePowerDown(ctx)
	})
}
