package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// clientWindow tracks request counts from one client IP.
type clientWindow struct {
	Count   int
	FirstAt time.Time
}

// Throttle limits inbound API requests per client IP over a fixed window.
// This is a protective cap on the HTTP surface; outbound upstream calls are
// paced separately by the gateway's rate limiter and are never dropped.
type Throttle struct {
	mu          sync.Mutex
	clients     map[string]*clientWindow
	maxRequests int
	window      time.Duration
}

// NewThrottle creates a throttle allowing maxRequests per window per client.
func NewThrottle(maxRequests int, window time.Duration) *Throttle {
	t := &Throttle{
		clients:     make(map[string]*clientWindow),
		maxRequests: maxRequests,
		window:      window,
	}
	go t.startCleanup()
	return t
}

// startCleanup periodically drops windows that have expired.
func (t *Throttle) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		t.cleanup()
	}
}

func (t *Throttle) cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for ip, w := range t.clients {
		if now.Sub(w.FirstAt) > t.window {
			delete(t.clients, ip)
		}
	}
}

// Allow records a request from ip and reports whether it is admitted, how
// many requests remain in the window and how long until the window resets.
func (t *Throttle) Allow(ip string) (bool, int, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	w, exists := t.clients[ip]
	if !exists || now.Sub(w.FirstAt) > t.window {
		t.clients[ip] = &clientWindow{Count: 1, FirstAt: now}
		return true, t.maxRequests - 1, 0
	}

	if w.Count >= t.maxRequests {
		return false, 0, t.window - now.Sub(w.FirstAt)
	}

	w.Count++
	return true, t.maxRequests - w.Count, 0
}

// Handler returns the gin middleware enforcing this throttle.
func (t *Throttle) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, retryAfter := t.Allow(c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.Itoa(t.maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, slow down",
			})
			return
		}

		c.Next()
	}
}
