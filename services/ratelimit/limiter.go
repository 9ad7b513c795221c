// Package ratelimit throttles outbound upstream calls to a maximum number of
// requests per rolling window. Callers over the limit are delayed, never
// dropped: admission waits until the oldest request in the window ages out.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"pricefeed_backend/services/timeutil"
)

// epsilon is added to every computed wait so the oldest instant is strictly
// outside the window when the caller wakes up.
const epsilon = time.Millisecond

// Limiter is a sliding-window rate limiter shared by all gateway callers.
type Limiter struct {
	mu          sync.Mutex
	instants    []time.Time
	maxRequests int
	window      time.Duration
	clock       timeutil.Clock
}

// NewLimiter creates a limiter admitting maxRequests per rolling window.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	return NewLimiterWithClock(maxRequests, window, timeutil.System())
}

// NewLimiterWithClock creates a limiter with an injected clock for tests.
func NewLimiterWithClock(maxRequests int, window time.Duration, clock timeutil.Clock) *Limiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	return &Limiter{
		instants:    make([]time.Time, 0, maxRequests),
		maxRequests: maxRequests,
		window:      window,
		clock:       clock,
	}
}

// Wait blocks until the caller is admitted or ctx is cancelled. On admission
// the request instant is recorded in the window.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.clock.Now()
		l.prune(now)

		if len(l.instants) < l.maxRequests {
			l.instants = append(l.instants, now)
			l.mu.Unlock()
			return nil
		}

		wait := l.window - now.Sub(l.instants[0]) + epsilon
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// prune drops instants that have aged out of the window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.instants) && !l.instants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.instants = append(l.instants[:0], l.instants[i:]...)
	}
}

// InWindow returns how many admissions are currently inside the window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.clock.Now())
	return len(l.instants)
}
