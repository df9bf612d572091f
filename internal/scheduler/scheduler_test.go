package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoopRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(ctx, "test", 5*time.Millisecond)

	var runs atomic.Int64
	done := make(chan struct{})
	go func() {
		loop.Start(func(context.Context) {
			if runs.Add(1) >= 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
	assert.GreaterOrEqual(t, runs.Load(), int64(3))
}

func TestLoopRunImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(ctx, "test", time.Hour)

	ran := make(chan struct{}, 1)
	go loop.Start(func(context.Context) {
		ran <- struct{}{}
		cancel()
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("first pass did not run immediately")
	}
}

func TestLoopRecoversFromPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(ctx, "test", 5*time.Millisecond)

	var runs atomic.Int64
	done := make(chan struct{})
	go func() {
		loop.Start(func(context.Context) {
			if runs.Add(1) >= 2 {
				cancel()
				return
			}
			panic("boom")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop died on panic")
	}
	assert.GreaterOrEqual(t, runs.Load(), int64(2), "loop survives a panicking pass")
}

func TestLoopRejectsBadSetup(t *testing.T) {
	loop := NewLoop(context.Background(), "test", 0)
	loop.Start(func(context.Context) { t.Fatal("must not run") }) // returns immediately

	var nilLoop *Loop
	nilLoop.Start(func(context.Context) {})

	NewLoop(context.Background(), "test", time.Second).Start(nil)
}
