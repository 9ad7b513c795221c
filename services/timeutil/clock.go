// Package timeutil provides an injectable clock so TTL, rate-limit and
// backoff behavior can be tested with virtual time instead of wall-clock
// sleeps.
package timeutil

import "time"

// Clock abstracts time for components that wait or expire entries.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// System returns the wall-clock implementation.
func System() Clock { return systemClock{} }
