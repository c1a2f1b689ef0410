// Package scheduler drives the tick loops. One loop per pool: a pool is
// always evaluated to completion before its next tick is scheduled, so two
// ticks for the same pool can never overlap. Different pools run their loops
// concurrently and independently.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// TickFunc is one complete evaluation of a pool: signal, sizing, lifecycle
// update. A returned error is logged, never fatal to the loop; one pool's
// fault must not block the others.
type TickFunc func(ctx context.Context, now time.Time) error

// Scheduler owns a set of named tick loops that can be added and removed at
// runtime as the rebalancer creates and drains pools.
type Scheduler struct {
	clock  Clock
	logger *slog.Logger

	mu    sync.Mutex
	loops map[string]context.CancelFunc
	wg    sync.WaitGroup
}

// New creates an empty scheduler on the given clock.
func New(clock Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clock:  clock,
		logger: logger.With("component", "scheduler"),
		loops:  make(map[string]context.CancelFunc),
	}
}

// StartLoop begins ticking fn every interval under the given name. The first
// tick fires one full interval after the start. Starting a name that is
// already running is a no-op.
//
// A tick that overruns its interval is not skipped: the next tick is
// deferred until one interval after the overrunning tick completes, and is
// never queued twice.
func (s *Scheduler) StartLoop(ctx context.Context, name string, interval time.Duration, fn TickFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.loops[name]; running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.loops[name] = cancel

	s.wg.Add(1)
	go s.run(loopCtx, name, interval, fn)
	s.logger.Info("loop started", "loop", name, "interval", interval.String())
}

func (s *Scheduler) run(ctx context.Context, name string, interval time.Duration, fn TickFunc) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
		}

		if err := s.tick(ctx, fn); err != nil {
			s.logger.Warn("tick failed", "loop", name, "error", err)
		}
	}
}

// tick runs one tick, converting a panic into an error so one loop's fault
// never takes down the others.
func (s *Scheduler) tick(ctx context.Context, fn TickFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx, s.clock.Now())
}

// StopLoop cancels the named loop. The loop exits after its current tick,
// if one is in flight.
func (s *Scheduler) StopLoop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.loops[name]; ok {
		cancel()
		delete(s.loops, name)
		s.logger.Info("loop stopped", "loop", name)
	}
}

// Running reports whether the named loop is active.
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[name]
	return ok
}

// Shutdown cancels every loop and waits for in-flight ticks to finish.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for name, cancel := range s.loops {
		cancel()
		delete(s.loops, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
