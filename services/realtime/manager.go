// Package realtime maintains live price subscriptions. The manager prefers a
// push channel and keeps a polling loop through the upstream gateway active
// whenever the channel is not connected, so subscribers keep receiving
// PriceUpdate events during outages. Push and poll are independently
// stoppable; push updates supersede poll updates by last-write-wins on the
// delivered snapshot.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"pricefeed_backend/models"
	"pricefeed_backend/services/timeutil"
)

// QuoteSource is the gateway surface the polling fallback needs.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// Config configures a connection manager.
type Config struct {
	PushURL              string
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration // base delay; attempt n waits n*delay
	MaxReconnectAttempts int
	PollInterval         time.Duration
	QuoteTimeout         time.Duration
	AutoReconnect        bool
}

type eventKind int

const (
	evConnect eventKind = iota
	evOpened
	evOpenFailed
	evClosed
	evMessage
	evRetry
	evHangup
)

type event struct {
	kind    eventKind
	conn    Conn
	payload []byte
	err     error
}

var pingMessage = []byte(`{"type":"ping"}`)

// Manager runs the per-subscription connection state machine. All state
// transitions happen on the single run goroutine; external callers interact
// only through posted events and the mutex-guarded read surface.
type Manager struct {
	cfg       Config
	quotes    QuoteSource
	transport Transport
	clock     timeutil.Clock

	events  chan event
	runStop chan struct{}
	runDone chan struct{}

	mu            sync.RWMutex
	state         ConnectionState
	attempts      int
	suspended     bool
	conn          Conn
	symbolRefs    map[string]int
	lastDelivered map[string]models.PriceUpdate
	subs          map[*Subscription]struct{}
	started       bool
	closed        bool

	// polling loop, independently cancellable
	pollStop  chan struct{}
	isPolling bool

	// owned by the run goroutine
	hbStop      chan struct{}
	retryCancel chan struct{}
}

// NewManager creates a manager using the websocket transport and wall clock.
func NewManager(cfg Config, quotes QuoteSource) *Manager {
	return NewManagerWithDeps(cfg, quotes, NewWebsocketTransport(), timeutil.System())
}

// NewManagerWithDeps creates a manager with injected transport and clock.
func NewManagerWithDeps(cfg Config, quotes QuoteSource, transport Transport, clock timeutil.Clock) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 10 * time.Second
	}

	return &Manager{
		cfg:           cfg,
		quotes:        quotes,
		transport:     transport,
		clock:         clock,
		events:        make(chan event, 64),
		runStop:       make(chan struct{}),
		runDone:       make(chan struct{}),
		state:         StateDisconnected,
		symbolRefs:    make(map[string]int),
		lastDelivered: make(map[string]models.PriceUpdate),
		subs:          make(map[*Subscription]struct{}),
	}
}

// Start launches the event loop and the polling fallback, then begins
// connecting the push channel.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run()
	m.StartPolling()
	m.Connect()
	log.Printf("Realtime manager started (poll interval %v, heartbeat %v)", m.cfg.PollInterval, m.cfg.HeartbeatInterval)
}

// Connect requests a push-channel connection. It also serves as the manual
// retry from the error or terminal disconnected state: the attempt counter is
// reset and auto-reconnect resumes.
func (m *Manager) Connect() {
	m.mu.Lock()
	m.suspended = false
	m.attempts = 0
	m.mu.Unlock()
	m.post(event{kind: evConnect})
}

// Disconnect tears down the push channel: pending reconnect and heartbeat
// timers are cancelled and the connection closed. The polling fallback is not
// touched; no auto-reconnect is scheduled until Connect is called again.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.suspended = true
	m.mu.Unlock()
	m.post(event{kind: evHangup})
}

// Close shuts the manager down completely: push channel, polling loop and
// event loop.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.suspended = true
	wasStarted := m.started
	m.mu.Unlock()

	m.StopPolling()
	close(m.runStop)
	if wasStarted {
		<-m.runDone
	}

	// The run goroutine has exited; timer and connection cleanup is safe.
	m.cancelRetry()
	m.stopHeartbeat()
	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.mu.Unlock()
	log.Println("Realtime manager closed")
}

// State returns the current push-channel state.
func (m *Manager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Attempts returns the current reconnect attempt count.
func (m *Manager) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}

// Symbols returns the currently subscribed symbol set.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.symbolRefs))
	for s := range m.symbolRefs {
		out = append(out, s)
	}
	return out
}

// LastDelivered returns the most recent update delivered for a symbol.
func (m *Manager) LastDelivered(symbol string) (models.PriceUpdate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.lastDelivered[strings.ToUpper(symbol)]
	return u, ok
}

// Status reports manager state for the stream status endpoint.
func (m *Manager) Status() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"state":              m.state.String(),
		"reconnect_attempts": m.attempts,
		"is_polling":         m.isPolling,
		"subscriber_count":   len(m.subs),
		"symbol_count":       len(m.symbolRefs),
		"poll_interval_sec":  int(m.cfg.PollInterval.Seconds()),
	}
}

func (m *Manager) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.runStop:
	}
}

func (m *Manager) run() {
	defer close(m.runDone)
	for {
		select {
		case <-m.runStop:
			return
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *Manager) handle(ev event) {
	switch ev.kind {
	case evConnect, evRetry:
		m.handleConnect()
	case evOpened:
		m.handleOpened(ev.conn)
	case evOpenFailed:
		m.handleOpenFailed(ev.err)
	case evClosed:
		m.handleClosed(ev.conn)
	case evMessage:
		m.handleIncoming(ev.conn, ev.payload)
	case evHangup:
		m.handleHangup()
	}
}

func (m *Manager) handleConnect() {
	m.mu.Lock()
	if m.suspended || m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()
	m.cancelRetry()

	go m.dial()
}

func (m *Manager) dial() {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := m.transport.Dial(ctx, m.cfg.PushURL)
	if err != nil {
		m.post(event{kind: evOpenFailed, err: err})
		return
	}
	m.post(event{kind: evOpened, conn: conn})
}

func (m *Manager) handleOpened(conn Conn) {
	m.mu.Lock()
	if m.suspended {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateConnected
	m.attempts = 0
	symbols := make([]string, 0, len(m.symbolRefs))
	for s := range m.symbolRefs {
		symbols = append(symbols, s)
	}
	m.mu.Unlock()

	log.Printf("Push channel connected, resubscribing %d symbols", len(symbols))
	for _, s := range symbols {
		m.sendControl(conn, "subscribe", s)
	}

	m.hbStop = make(chan struct{})
	go m.heartbeatLoop(conn, m.hbStop)
	go m.readLoop(conn)
}

func (m *Manager) handleOpenFailed(err error) {
	log.Printf("Push channel open failed: %v", err)
	m.setState(StateError)
	m.scheduleReconnect()
}

func (m *Manager) handleClosed(conn Conn) {
	m.mu.Lock()
	if conn != m.conn {
		// Stale close from a connection already replaced.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	m.stopHeartbeat()
	log.Println("Push channel closed")
	m.scheduleReconnect()
}

func (m *Manager) handleHangup() {
	m.cancelRetry()
	m.stopHeartbeat()

	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.mu.Unlock()
	log.Println("Push channel disconnected by owner")
}

// scheduleReconnect arms the backoff timer, or parks the manager in terminal
// disconnected once attempts are exhausted. The polling fallback keeps
// delivering either way.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.suspended || !m.cfg.AutoReconnect {
		m.state = StateDisconnected
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.state = StateDisconnected
		m.mu.Unlock()
		log.Printf("Push channel gave up after %d attempts, relying on polling", m.cfg.MaxReconnectAttempts)
		return
	}
	m.attempts++
	attempt := m.attempts
	m.state = StateReconnecting
	m.mu.Unlock()

	delay := m.cfg.ReconnectDelay * time.Duration(attempt)
	log.Printf("Scheduling reconnect attempt %d/%d in %v", attempt, m.cfg.MaxReconnectAttempts, delay)

	cancel := make(chan struct{})
	m.retryCancel = cancel
	go func() {
		select {
		case <-cancel:
		case <-m.runStop:
		case <-m.clock.After(delay):
			m.post(event{kind: evRetry})
		}
	}()
}

func (m *Manager) cancelRetry() {
	if m.retryCancel != nil {
		close(m.retryCancel)
		m.retryCancel = nil
	}
}

func (m *Manager) stopHeartbeat() {
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
}

// heartbeatLoop sends fire-and-forget keepalive pings while connected. A
// write failure only ends the loop; the read loop observing the close is what
// drives the state machine.
func (m *Manager) heartbeatLoop(conn Conn, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-m.clock.After(m.cfg.HeartbeatInterval):
			if err := conn.WriteMessage(pingMessage); err != nil {
				log.Printf("Heartbeat write failed: %v", err)
				return
			}
		}
	}
}

func (m *Manager) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.post(event{kind: evClosed, conn: conn})
			return
		}
		m.post(event{kind: evMessage, conn: conn, payload: data})
	}
}

func (m *Manager) sendControl(conn Conn, msgType, symbol string) {
	msg, err := json.Marshal(map[string]string{"type": msgType, "symbol": symbol})
	if err != nil {
		return
	}
	if err := conn.WriteMessage(msg); err != nil {
		log.Printf("Failed to send %s for %s: %v", msgType, symbol, err)
	}
}

// pushEnvelope is the inbound push-channel message frame.
type pushEnvelope struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// pushQuote is a price payload inside an update or snapshot envelope.
type pushQuote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        float64 `json:"volume"`
	Timestamp     int64   `json:"timestamp"`
}

// handleIncoming parses a push message. Malformed payloads are dropped
// silently: logged, no state transition.
func (m *Manager) handleIncoming(conn Conn, payload []byte) {
	m.mu.RLock()
	current := m.conn
	m.mu.RUnlock()
	if conn != current {
		return
	}

	var env pushEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("Dropping malformed push message: %v", err)
		return
	}

	switch env.Type {
	case "update", "snapshot":
		for _, q := range parsePushQuotes(env.Data) {
			ts := q.Timestamp
			if ts == 0 {
				ts = env.Timestamp
			}
			if ts == 0 {
				ts = m.clock.Now().Unix()
			}
			m.deliver(models.PriceUpdate{
				Symbol:        strings.ToUpper(q.Symbol),
				Price:         q.Price,
				Change:        q.Change,
				ChangePercent: q.ChangePercent,
				Volume:        q.Volume,
				Timestamp:     ts,
				Source:        models.SourcePush,
			})
		}
	case "error":
		log.Printf("Push channel error message: %s", string(env.Data))
	default:
		log.Printf("Dropping push message with unknown type %q", env.Type)
	}
}

// parsePushQuotes accepts a single quote object or an array of them; anything
// else, or a quote without a symbol, is dropped.
func parsePushQuotes(data json.RawMessage) []pushQuote {
	if len(data) == 0 {
		return nil
	}

	var list []pushQuote
	if data[0] == '[' {
		if err := json.Unmarshal(data, &list); err != nil {
			log.Printf("Dropping malformed push payload: %v", err)
			return nil
		}
	} else {
		var one pushQuote
		if err := json.Unmarshal(data, &one); err != nil {
			log.Printf("Dropping malformed push payload: %v", err)
			return nil
		}
		list = []pushQuote{one}
	}

	out := list[:0]
	for _, q := range list {
		if strings.TrimSpace(q.Symbol) == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}

// deliver fans an update out to every matching subscriber and records it as
// the last delivered snapshot for the symbol. Subscriber channels that are
// full drop the update; price updates are idempotent snapshots, not deltas.
func (m *Manager) deliver(u models.PriceUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.lastDelivered[u.Symbol]
	if !ok || u.Timestamp >= prev.Timestamp {
		m.lastDelivered[u.Symbol] = u
	}

	for sub := range m.subs {
		if _, wants := sub.symbols[u.Symbol]; !wants {
			continue
		}
		select {
		case sub.updates <- u:
		default:
		}
	}
}

func (m *Manager) setState(s ConnectionState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
