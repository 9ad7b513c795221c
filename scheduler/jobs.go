package scheduler

import (
	"context"
	"log"
	"time"
)

// sweepCache drops expired cache entries so the map does not grow unbounded
// between requests.
func (s *Scheduler) sweepCache() {
	removed := s.cache.Sweep()
	if removed > 0 {
		log.Printf("Cache sweep removed %d expired entries (%d remaining)", removed, s.cache.Len())
	}
}

// warmQuotes refreshes quotes for currently watched symbols. Cache-first
// fetching makes this a no-op while entries are still valid, so a cold cache
// does not stampede the rate limiter when many dashboard clients arrive at
// once.
func (s *Scheduler) warmQuotes() {
	symbols := s.manager.Symbols()
	if len(symbols) == 0 {
		return
	}

	warmed := 0
	for _, symbol := range symbols {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := s.gateway.Quote(ctx, symbol)
		cancel()
		if err != nil {
			log.Printf("Quote warm-up failed for %s: %v", symbol, err)
			continue
		}
		warmed++
	}

	if warmed > 0 {
		log.Printf("Quote warm-up refreshed %d/%d symbols", warmed, len(symbols))
	}
}

// logStreamStatus records the connection manager state for operators.
func (s *Scheduler) logStreamStatus() {
	status := s.manager.Status()
	log.Printf("Stream status: state=%v polling=%v symbols=%v subscribers=%v",
		status["state"], status["is_polling"], status["symbol_count"], status["subscriber_count"])
}
