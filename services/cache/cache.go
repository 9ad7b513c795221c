// Package cache provides the in-memory TTL store used by the upstream
// gateway. Entries are process-memory only and rebuilt from empty on restart;
// an expired entry is logically absent and is never served.
package cache

import (
	"sync"
	"time"

	"pricefeed_backend/services/timeutil"
)

type entry struct {
	value    interface{}
	storedAt time.Time
	ttl      time.Duration
}

// Cache is a key/value store with per-entry TTL. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   timeutil.Clock
}

// New creates an empty cache.
func New() *Cache {
	return NewWithClock(timeutil.System())
}

// NewWithClock creates a cache with an injected clock for tests.
func NewWithClock(clock timeutil.Clock) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

// Get returns the value for key if a non-expired entry exists.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.storedAt) >= e.ttl {
		// Expired entries are removed lazily; Sweep handles the rest.
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur.storedAt.Equal(e.storedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL, replacing any prior entry.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, storedAt: c.clock.Now(), ttl: ttl}
}

// Delete removes key regardless of expiry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= e.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
