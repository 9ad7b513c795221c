package timeutil

import (
	"sync"
	"time"
)

// FakeClock is a manually driven Clock for tests. Timers created with After
// fire when Advance moves the clock past their deadline. With AutoAdvance set,
// After advances the clock immediately and returns an already-fired channel,
// which makes sequential blocking code (e.g. rate-limiter admission) fully
// deterministic without goroutine coordination.
type FakeClock struct {
	mu          sync.Mutex
	now         time.Time
	waiters     []fakeWaiter
	AutoAdvance bool
}

type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

// NewFakeClock returns a FakeClock starting at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if c.AutoAdvance || d <= 0 {
		if c.AutoAdvance && d > 0 {
			c.now = c.now.Add(d)
		}
		ch <- c.now
		return ch
	}

	c.waiters = append(c.waiters, fakeWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward and fires every timer whose deadline passed.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}

// WaiterCount reports how many timers are pending, for test synchronization.
func (c *FakeClock) WaiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
