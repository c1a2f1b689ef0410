package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScheduler() (*Scheduler, *VirtualClock) {
	clock := NewVirtualClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(clock, logger), clock
}

func recvTick(t *testing.T, ch <-chan time.Time) time.Time {
	t.Helper()
	select {
	case now := <-ch:
		return now
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not fire")
		return time.Time{}
	}
}

func TestLoopTicksAtInterval(t *testing.T) {
	s, clock := testScheduler()
	defer s.Shutdown()

	ticks := make(chan time.Time, 8)
	s.StartLoop(context.Background(), "pool-1", time.Second, func(_ context.Context, now time.Time) error {
		ticks <- now
		return nil
	})

	clock.AwaitWaiters(1)
	clock.Advance(time.Second)
	first := recvTick(t, ticks)

	clock.AwaitWaiters(1)
	clock.Advance(time.Second)
	second := recvTick(t, ticks)

	assert.Equal(t, time.Second, second.Sub(first))
}

func TestOverrunDefersNextTickNeverQueuesTwice(t *testing.T) {
	s, clock := testScheduler()
	defer s.Shutdown()

	var invocations atomic.Int32
	started := make(chan struct{}, 8)
	release := make(chan struct{})

	s.StartLoop(context.Background(), "pool-1", time.Second, func(_ context.Context, _ time.Time) error {
		invocations.Add(1)
		started <- struct{}{}
		<-release
		return nil
	})

	clock.AwaitWaiters(1)
	clock.Advance(time.Second)
	<-started

	// Five intervals elapse while the tick is still running; none of them
	// may queue additional ticks.
	clock.Advance(5 * time.Second)
	assert.Equal(t, int32(1), invocations.Load())

	close(release)
	clock.AwaitWaiters(1)
	clock.Advance(time.Second)
	<-started

	assert.Equal(t, int32(2), invocations.Load())
}

func TestPoolsTickConcurrentlyWithEachOther(t *testing.T) {
	s, clock := testScheduler()
	defer s.Shutdown()

	started := make(chan string, 2)
	release := make(chan struct{})
	blockingTick := func(name string) TickFunc {
		return func(_ context.Context, _ time.Time) error {
			started <- name
			<-release
			return nil
		}
	}

	s.StartLoop(context.Background(), "pool-a", time.Second, blockingTick("a"))
	s.StartLoop(context.Background(), "pool-b", time.Second, blockingTick("b"))

	clock.AwaitWaiters(2)
	clock.Advance(time.Second)

	// Both ticks are in flight at once before either completes.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-started:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatal("expected both pool ticks to start")
		}
	}
	assert.True(t, seen["a"] && seen["b"])
	close(release)
}

func TestTickErrorDoesNotStopLoop(t *testing.T) {
	s, clock := testScheduler()
	defer s.Shutdown()

	var calls atomic.Int32
	done := make(chan struct{}, 8)
	s.StartLoop(context.Background(), "pool-1", time.Second, func(_ context.Context, _ time.Time) error {
		defer func() { done <- struct{}{} }()
		if calls.Add(1) == 1 {
			return errors.New("venue hiccup")
		}
		return nil
	})

	for i := 0; i < 2; i++ {
		clock.AwaitWaiters(1)
		clock.Advance(time.Second)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("tick did not run")
		}
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestStopLoop(t *testing.T) {
	s, clock := testScheduler()
	defer s.Shutdown()

	ticks := make(chan time.Time, 8)
	s.StartLoop(context.Background(), "pool-1", time.Second, func(_ context.Context, now time.Time) error {
		ticks <- now
		return nil
	})
	require.True(t, s.Running("pool-1"))

	clock.AwaitWaiters(1)
	s.StopLoop("pool-1")
	assert.False(t, s.Running("pool-1"))

	clock.Advance(5 * time.Second)
	select {
	case <-ticks:
		t.Fatal("stopped loop still ticked")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStartLoopIdempotentPerName(t *testing.T) {
	s, clock := testScheduler()
	defer s.Shutdown()

	var calls atomic.Int32
	done := make(chan struct{}, 8)
	fn := func(_ context.Context, _ time.Time) error {
		calls.Add(1)
		done <- struct{}{}
		return nil
	}
	s.StartLoop(context.Background(), "pool-1", time.Second, fn)
	s.StartLoop(context.Background(), "pool-1", time.Second, fn)

	clock.AwaitWaiters(1)
	clock.Advance(time.Second)
	<-done

	assert.Equal(t, int32(1), calls.Load())
}

func TestTickPanicDoesNotStopLoops(t *testing.T) {
	s, clock := testScheduler()
	defer s.Shutdown()

	var faulty atomic.Int32
	faultyTicks := make(chan struct{}, 8)
	s.StartLoop(context.Background(), "pool-bad", time.Second, func(_ context.Context, _ time.Time) error {
		n := faulty.Add(1)
		faultyTicks <- struct{}{}
		if n == 1 {
			panic("nil market data")
		}
		return nil
	})

	healthyTicks := make(chan struct{}, 8)
	s.StartLoop(context.Background(), "pool-good", time.Second, func(_ context.Context, _ time.Time) error {
		healthyTicks <- struct{}{}
		return nil
	})

	clock.AwaitWaiters(2)
	clock.Advance(time.Second)
	<-faultyTicks
	<-healthyTicks

	// The panic was contained: both loops take the next tick.
	clock.AwaitWaiters(2)
	clock.Advance(time.Second)
	<-faultyTicks
	<-healthyTicks

	require.True(t, s.Running("pool-bad"))
	require.True(t, s.Running("pool-good"))
	assert.Equal(t, int32(2), faulty.Load())
}
