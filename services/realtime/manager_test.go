package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pricefeed_backend/models"
	"pricefeed_backend/services/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory push-channel connection driven by the test.
type fakeConn struct {
	mu        sync.Mutex
	writes    [][]byte
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// push hands the manager's read loop an inbound message.
func (c *fakeConn) push(msg string) {
	c.inbound <- []byte(msg)
}

func (c *fakeConn) wrote(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.writes {
		if strings.Contains(string(w), substr) {
			return true
		}
	}
	return false
}

// fakeTransport hands out fakeConns, or refuses every dial while failing.
type fakeTransport struct {
	mu      sync.Mutex
	failing bool
	dials   int
	conns   []*fakeConn
}

func (t *fakeTransport) Dial(ctx context.Context, url string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.failing {
		return nil, errors.New("dial refused")
	}
	c := newFakeConn()
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) setFailing(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failing = v
}

func (t *fakeTransport) latest() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// fakeQuoteSource serves canned quotes for the polling fallback.
type fakeQuoteSource struct {
	mu    sync.Mutex
	calls int
	price float64
	err   error
}

func (f *fakeQuoteSource) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Quote{Symbol: symbol, Price: f.price, Timestamp: time.Now().Unix()}, nil
}

func (f *fakeQuoteSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestManager(cfg Config, tr Transport, quotes QuoteSource) *Manager {
	if cfg.PushURL == "" {
		cfg.PushURL = "ws://push.test/stream"
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = time.Hour
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = time.Millisecond
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 3
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Hour
	}
	if quotes == nil {
		quotes = &fakeQuoteSource{price: 1}
	}
	return NewManagerWithDeps(cfg, quotes, tr, timeutil.System())
}

func waitState(t *testing.T, m *Manager, want ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want },
		2*time.Second, time.Millisecond, "state never reached %v", want)
}

func TestManager_Connects(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{AutoReconnect: true}, tr, nil)
	m.Start()
	defer m.Close()

	waitState(t, m, StateConnected)
	assert.Equal(t, 0, m.Attempts())
	assert.Equal(t, 1, tr.dialCount())
	assert.True(t, m.IsPolling())
}

func TestManager_ResubscribesOnConnect(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{AutoReconnect: true}, tr, nil)
	sub := m.Subscribe("AAPL")
	defer sub.Close()

	m.Start()
	defer m.Close()
	waitState(t, m, StateConnected)

	conn := tr.latest()
	require.NotNil(t, conn)
	assert.Eventually(t, func() bool { return conn.wrote(`"subscribe"`) && conn.wrote("AAPL") },
		time.Second, time.Millisecond)
}

func TestManager_ReconnectExhaustion(t *testing.T) {
	tr := &fakeTransport{failing: true}
	m := newTestManager(Config{MaxReconnectAttempts: 3, AutoReconnect: true}, tr, nil)
	m.Start()
	defer m.Close()

	// Initial dial plus three retries, then the manager parks in terminal
	// disconnected with the counter left at the max.
	require.Eventually(t, func() bool {
		return m.State() == StateDisconnected && m.Attempts() == 3
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 4, tr.dialCount())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 4, tr.dialCount(), "no dials after attempts are exhausted")
	assert.True(t, m.IsPolling(), "polling keeps running after push gives up")
}

func TestManager_ManualConnectResetsAttempts(t *testing.T) {
	tr := &fakeTransport{failing: true}
	m := newTestManager(Config{MaxReconnectAttempts: 2, AutoReconnect: true}, tr, nil)
	m.Start()
	defer m.Close()

	require.Eventually(t, func() bool {
		return m.State() == StateDisconnected && m.Attempts() == 2
	}, 2*time.Second, time.Millisecond)

	tr.setFailing(false)
	m.Connect()
	waitState(t, m, StateConnected)
	assert.Equal(t, 0, m.Attempts())
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{AutoReconnect: true}, tr, nil)
	m.Start()
	defer m.Close()
	waitState(t, m, StateConnected)

	// Remote close: the read loop errors and the backoff timer redials.
	tr.latest().Close()
	require.Eventually(t, func() bool {
		return tr.dialCount() == 2 && m.State() == StateConnected
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 0, m.Attempts(), "attempt counter resets on successful connect")
}

func TestManager_DisconnectSuppressesReconnect(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{AutoReconnect: true}, tr, nil)
	m.Start()
	defer m.Close()
	waitState(t, m, StateConnected)

	m.Disconnect()
	waitState(t, m, StateDisconnected)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, tr.dialCount(), "no auto-reconnect after an owner disconnect")

	m.Connect()
	waitState(t, m, StateConnected)
	assert.Equal(t, 2, tr.dialCount())
}

func TestManager_Heartbeat(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{HeartbeatInterval: 5 * time.Millisecond, AutoReconnect: true}, tr, nil)
	m.Start()
	defer m.Close()
	waitState(t, m, StateConnected)

	conn := tr.latest()
	assert.Eventually(t, func() bool { return conn.wrote(`"ping"`) },
		time.Second, time.Millisecond)
}

func TestManager_PushDelivery(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{AutoReconnect: true}, tr, nil)
	m.Start()
	defer m.Close()
	waitState(t, m, StateConnected)

	sub := m.Subscribe("AAPL")
	defer sub.Close()

	tr.latest().push(`{"type":"update","data":{"symbol":"aapl","price":101.5,"change":0.5,"timestamp":1700000100}}`)

	select {
	case u := <-sub.Updates():
		assert.Equal(t, "AAPL", u.Symbol)
		assert.Equal(t, 101.5, u.Price)
		assert.Equal(t, int64(1700000100), u.Timestamp)
		assert.Equal(t, models.SourcePush, u.Source)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	last, ok := m.LastDelivered("aapl")
	require.True(t, ok)
	assert.Equal(t, 101.5, last.Price)
}

func TestManager_PushDeliveryBatch(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{AutoReconnect: true}, tr, nil)
	m.Start()
	defer m.Close()
	waitState(t, m, StateConnected)

	sub := m.Subscribe("AAPL", "MSFT")
	defer sub.Close()

	// Array payload with one entry missing its symbol; that entry is dropped.
	tr.latest().push(`{"type":"snapshot","timestamp":1700000200,"data":[` +
		`{"symbol":"AAPL","price":10},{"price":99},{"symbol":"MSFT","price":20}]}`)

	got := map[string]float64{}
	for i := 0; i < 2; i++ {
		select {
		case u := <-sub.Updates():
			got[u.Symbol] = u.Price
			assert.Equal(t, int64(1700000200), u.Timestamp, "envelope timestamp used as fallback")
		case <-time.After(time.Second):
			t.Fatal("missing update")
		}
	}
	assert.Equal(t, map[string]float64{"AAPL": 10, "MSFT": 20}, got)
}

func TestManager_MalformedMessageDropped(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{AutoReconnect: true}, tr, nil)
	m.Start()
	defer m.Close()
	waitState(t, m, StateConnected)

	sub := m.Subscribe("AAPL")
	defer sub.Close()

	conn := tr.latest()
	conn.push(`{not json at all`)
	conn.push(`{"type":"mystery","data":{}}`)
	conn.push(`{"type":"update","data":{"symbol":"AAPL","price":7,"timestamp":1700000300}}`)

	// Only the well-formed update arrives; the connection stays up.
	select {
	case u := <-sub.Updates():
		assert.Equal(t, 7.0, u.Price)
	case <-time.After(time.Second):
		t.Fatal("valid update lost after malformed messages")
	}
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 1, tr.dialCount())
}

func TestManager_PollingFallback(t *testing.T) {
	tr := &fakeTransport{failing: true}
	quotes := &fakeQuoteSource{price: 42}
	m := newTestManager(Config{PollInterval: 5 * time.Millisecond, AutoReconnect: false}, tr, quotes)
	sub := m.Subscribe("AAPL")
	defer sub.Close()

	m.Start()
	defer m.Close()

	select {
	case u := <-sub.Updates():
		assert.Equal(t, "AAPL", u.Symbol)
		assert.Equal(t, 42.0, u.Price)
		assert.Equal(t, models.SourcePoll, u.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("polling delivered nothing while push was down")
	}

	m.StopPolling()
	assert.False(t, m.IsPolling())
}

func TestManager_PollSkippedWhileConnected(t *testing.T) {
	tr := &fakeTransport{}
	quotes := &fakeQuoteSource{price: 1}
	m := newTestManager(Config{PollInterval: 3 * time.Millisecond, AutoReconnect: true}, tr, quotes)
	sub := m.Subscribe("AAPL")
	defer sub.Close()

	m.Start()
	defer m.Close()
	waitState(t, m, StateConnected)

	baseline := quotes.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, baseline, quotes.callCount(), "poll ticks are skipped while connected")
}

func TestManager_PushSupersedesPoll(t *testing.T) {
	m := newTestManager(Config{AutoReconnect: false}, &fakeTransport{failing: true}, nil)

	m.Subscribe("AAPL")
	m.deliver(models.PriceUpdate{Symbol: "AAPL", Price: 100, Timestamp: 50, Source: models.SourcePoll})
	m.deliver(models.PriceUpdate{Symbol: "AAPL", Price: 101, Timestamp: 50, Source: models.SourcePush})

	last, ok := m.LastDelivered("AAPL")
	require.True(t, ok)
	assert.Equal(t, models.SourcePush, last.Source, "equal timestamps resolve last-write-wins")

	// A poll result older than the delivered snapshot does not regress it.
	m.deliver(models.PriceUpdate{Symbol: "AAPL", Price: 99, Timestamp: 49, Source: models.SourcePoll})
	last, _ = m.LastDelivered("AAPL")
	assert.Equal(t, 101.0, last.Price)
}

func TestSubscription_RefCounting(t *testing.T) {
	m := newTestManager(Config{}, &fakeTransport{failing: true}, nil)

	sub1 := m.Subscribe("AAPL", " aapl", "msft")
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, m.Symbols())

	sub2 := m.Subscribe("AAPL")
	sub1.Close()
	assert.ElementsMatch(t, []string{"AAPL"}, m.Symbols(), "AAPL still referenced by the second subscriber")

	sub2.Close()
	assert.Empty(t, m.Symbols())

	_, open := <-sub1.Updates()
	assert.False(t, open, "updates channel is closed with the subscription")
}

func TestSubscription_ReplaysLastDelivered(t *testing.T) {
	m := newTestManager(Config{}, &fakeTransport{failing: true}, nil)

	hold := m.Subscribe("AAPL")
	defer hold.Close()
	m.deliver(models.PriceUpdate{Symbol: "AAPL", Price: 55, Timestamp: 10, Source: models.SourcePoll})

	sub := m.Subscribe("AAPL")
	defer sub.Close()

	select {
	case u := <-sub.Updates():
		assert.Equal(t, 55.0, u.Price)
	case <-time.After(time.Second):
		t.Fatal("snapshot not replayed to new subscriber")
	}
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m := newTestManager(Config{AutoReconnect: true}, &fakeTransport{}, nil)
	m.Start()
	waitState(t, m, StateConnected)

	m.Close()
	m.Close()
	assert.Equal(t, StateDisconnected, m.State())
	assert.False(t, m.IsPolling())
}
