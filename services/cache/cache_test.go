package cache

import (
	"testing"
	"time"

	"pricefeed_backend/services/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1700000000, 0))
	c := NewWithClock(clock)

	_, ok := c.Get("quote?symbol=AAPL")
	assert.False(t, ok)

	c.Set("quote?symbol=AAPL", "v1", time.Minute)
	got, ok := c.Get("quote?symbol=AAPL")
	require.True(t, ok)
	assert.Equal(t, "v1", got)
}

func TestGet_ExpiryBoundary(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1700000000, 0))
	c := NewWithClock(clock)
	c.Set("k", 42, time.Second)

	clock.Advance(999 * time.Millisecond)
	_, ok := c.Get("k")
	assert.True(t, ok, "entry is valid strictly inside the TTL")

	// now - storedAt == ttl means expired.
	clock.Advance(time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestGet_LazyDelete(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1700000000, 0))
	c := NewWithClock(clock)
	c.Set("k", 1, time.Second)

	clock.Advance(2 * time.Second)
	require.Equal(t, 1, c.Len())
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on read")
}

func TestSet_ReplaceRestartsTTL(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1700000000, 0))
	c := NewWithClock(clock)
	c.Set("k", "old", time.Second)

	clock.Advance(900 * time.Millisecond)
	c.Set("k", "new", time.Second)

	clock.Advance(900 * time.Millisecond)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestDelete(t *testing.T) {
	c := NewWithClock(timeutil.NewFakeClock(time.Unix(1700000000, 0)))
	c.Set("k", 1, time.Minute)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
	c.Delete("missing")
}

func TestSweep(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1700000000, 0))
	c := NewWithClock(clock)
	c.Set("short-a", 1, time.Second)
	c.Set("short-b", 2, time.Second)
	c.Set("long", 3, time.Hour)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, c.Sweep())
	assert.Equal(t, 1, c.Len())

	got, ok := c.Get("long")
	require.True(t, ok)
	assert.Equal(t, 3, got)

	assert.Equal(t, 0, c.Sweep())
}

func TestPerEntryTTL(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1700000000, 0))
	c := NewWithClock(clock)
	c.Set("quote", "q", time.Minute)
	c.Set("candle", "c", 5*time.Minute)

	clock.Advance(2 * time.Minute)
	_, ok := c.Get("quote")
	assert.False(t, ok)
	_, ok = c.Get("candle")
	assert.True(t, ok)
}
