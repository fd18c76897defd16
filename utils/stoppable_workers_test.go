package utils

import (
	"context"
	"testing"
	"time"

	"go.uber.org/atomic"
	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	var stopped atomic.Int32
	sw := NewStoppableWorkersWithContext(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		stopped.Inc()
	})
	sw.AddWorkers(func(ctx context.Context) {
		<-ctx.Done()
		stopped.Inc()
	})

	test.That(t, sw.Context().Err(), test.ShouldBeNil)
	sw.Stop()
	test.That(t, stopped.Load(), test.ShouldEqual, int32(2))
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)

	// Workers added after Stop never run.
	sw.AddWorkers(func(ctx context.Context) {
		stopped.Inc()
	})
	sw.Stop()
	test.That(t, stopped.Load(), test.ShouldEqual, int32(2))
}

func TestStoppableWorkersParentContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sw := NewStoppableWorkersWithContext(parent, func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not observe parent cancellation")
	}
	sw.Stop()
}
