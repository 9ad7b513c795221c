package realtime

import (
	"log"
	"strings"
	"sync"

	"pricefeed_backend/models"
)

const subscriptionBuffer = 64

// Subscription is one consumer's view of the update stream for a symbol set.
// It is created by Manager.Subscribe and torn down by Close; when the last
// subscription for a symbol closes, the symbol is unsubscribed upstream.
type Subscription struct {
	m       *Manager
	symbols map[string]struct{}
	updates chan models.PriceUpdate
	once    sync.Once
}

// Updates is the stream of price events for the subscribed symbols. The
// channel is closed by Close.
func (s *Subscription) Updates() <-chan models.PriceUpdate {
	return s.updates
}

// Symbols returns the symbols this subscription covers.
func (s *Subscription) Symbols() []string {
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// Close tears the subscription down and releases its symbol references.
func (s *Subscription) Close() {
	s.once.Do(func() {
		m := s.m

		m.mu.Lock()
		delete(m.subs, s)
		var released []string
		for sym := range s.symbols {
			m.symbolRefs[sym]--
			if m.symbolRefs[sym] <= 0 {
				delete(m.symbolRefs, sym)
				delete(m.lastDelivered, sym)
				released = append(released, sym)
			}
		}
		conn := m.conn
		connected := m.state == StateConnected
		close(s.updates)
		m.mu.Unlock()

		if connected && conn != nil {
			for _, sym := range released {
				m.sendControl(conn, "unsubscribe", sym)
			}
		}
	})
}

// Subscribe registers a consumer for the given symbols and returns its
// subscription. Newly watched symbols are subscribed on the push channel if
// it is currently connected; the last delivered snapshot per symbol is
// replayed into the stream so consumers render immediately.
func (m *Manager) Subscribe(symbols ...string) *Subscription {
	sub := &Subscription{
		m:       m,
		symbols: make(map[string]struct{}, len(symbols)),
		updates: make(chan models.PriceUpdate, subscriptionBuffer),
	}

	m.mu.Lock()
	var added []string
	for _, raw := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" {
			continue
		}
		if _, dup := sub.symbols[sym]; dup {
			continue
		}
		sub.symbols[sym] = struct{}{}
		if m.symbolRefs[sym] == 0 {
			added = append(added, sym)
		}
		m.symbolRefs[sym]++
	}
	m.subs[sub] = struct{}{}

	for sym := range sub.symbols {
		if u, ok := m.lastDelivered[sym]; ok {
			select {
			case sub.updates <- u:
			default:
			}
		}
	}
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if connected && conn != nil {
		for _, sym := range added {
			m.sendControl(conn, "subscribe", sym)
		}
	}

	log.Printf("Subscription created for %d symbols (%d new)", len(sub.symbols), len(added))
	return sub
}
