package realtime

import (
	"context"
	"log"

	"pricefeed_backend/models"
)

// StartPolling launches the polling fallback loop. The loop has its own stop
// channel so it can be torn down without touching the push channel, and vice
// versa.
func (m *Manager) StartPolling() {
	m.mu.Lock()
	if m.isPolling || m.closed {
		m.mu.Unlock()
		return
	}
	m.isPolling = true
	m.pollStop = make(chan struct{})
	stop := m.pollStop
	m.mu.Unlock()

	go m.pollLoop(stop)
	log.Printf("Polling fallback started (interval %v)", m.cfg.PollInterval)
}

// StopPolling stops the polling fallback loop.
func (m *Manager) StopPolling() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isPolling {
		return
	}
	close(m.pollStop)
	m.isPolling = false
	log.Println("Polling fallback stopped")
}

// IsPolling reports whether the fallback loop is running.
func (m *Manager) IsPolling() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPolling
}

// pollLoop ticks at the poll interval. While the push channel is connected
// the tick is skipped; push updates supersede poll updates and the loop does
// not need to stop synchronously.
func (m *Manager) pollLoop(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-m.clock.After(m.cfg.PollInterval):
			if m.State() == StateConnected {
				continue
			}
			m.pollOnce()
		}
	}
}

// pollOnce fetches a quote per subscribed symbol through the gateway and
// delivers poll-tagged updates. Individual fetch failures are logged and
// skipped; polling is best-effort.
func (m *Manager) pollOnce() {
	for _, sym := range m.Symbols() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.QuoteTimeout)
		quote, err := m.quotes.Quote(ctx, sym)
		cancel()
		if err != nil {
			log.Printf("Poll fetch failed for %s: %v", sym, err)
			continue
		}
		m.deliver(models.UpdateFromQuote(quote, models.SourcePoll))
	}
}
