package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time so tick boundaries are deterministic in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock is the production clock backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// VirtualClock is a manually advanced clock for tests. Timers fire
// synchronously inside Advance, in deadline order.
type VirtualClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []*virtualTimer
}

type virtualTimer struct {
	deadline time.Time
	ch       chan time.Time
}

// NewVirtualClock creates a virtual clock starting at the given instant.
func NewVirtualClock(start time.Time) *VirtualClock {
	c := &VirtualClock{now: start}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &virtualTimer{deadline: c.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.ch <- c.now
		return t.ch
	}
	c.waiters = append(c.waiters, t)
	c.cond.Broadcast()
	return t.ch
}

// Advance moves the clock forward and fires every timer whose deadline has
// passed, earliest first.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	sort.Slice(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})

	remaining := c.waiters[:0]
	for _, t := range c.waiters {
		if t.deadline.After(c.now) {
			remaining = append(remaining, t)
			continue
		}
		t.ch <- t.deadline
	}
	c.waiters = remaining
}

// AwaitWaiters blocks until at least n timers are pending. Tests call it
// before Advance so a loop is guaranteed to be parked on its timer.
func (c *VirtualClock) AwaitWaiters(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.cond.Wait()
	}
}
