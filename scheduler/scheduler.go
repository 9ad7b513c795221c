package scheduler

// Package scheduler provides scheduled job management for the price feed
// backend. It handles:
// - Periodic sweep of expired cache entries
// - Quote cache warm-up for currently watched symbols
// - Stream status logging for operational visibility

import (
	"log"
	"time"

	"pricefeed_backend/services/cache"
	"pricefeed_backend/services/gateway"
	"pricefeed_backend/services/realtime"

	"github.com/go-co-op/gocron"
)

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron    *gocron.Scheduler
	cache   *cache.Cache
	gateway *gateway.Gateway
	manager *realtime.Manager
}

// NewScheduler creates a new scheduler instance
func NewScheduler(store *cache.Cache, gw *gateway.Gateway, manager *realtime.Manager) *Scheduler {
	return &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		cache:   store,
		gateway: gw,
		manager: manager,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Sweep expired cache entries every 10 minutes
	s.cron.Every(10).Minutes().Do(func() {
		s.sweepCache()
	})

	// Warm the quote cache for watched symbols every minute
	s.cron.Every(1).Minute().Do(func() {
		s.warmQuotes()
	})

	// Log stream status every 5 minutes for visibility
	s.cron.Every(5).Minutes().Do(func() {
		s.logStreamStatus()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}
