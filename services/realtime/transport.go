package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const dialTimeout = 15 * time.Second

// Conn is a single open push-channel connection.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Transport opens push-channel connections. The websocket implementation is
// the default; tests substitute a fake to drive the state machine without a
// network.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsTransport struct {
	dialer *websocket.Dialer
}

// NewWebsocketTransport returns the gorilla-backed transport.
func NewWebsocketTransport() Transport {
	return &wsTransport{
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
	}
}

func (t *wsTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

// wsConn serializes writes: heartbeats and subscribe messages come from
// different goroutines and gorilla allows one concurrent writer.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
