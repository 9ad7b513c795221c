package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub limits and pump intervals for dashboard clients.
const (
	MaxClients       = 100
	clientWriteWait  = 10 * time.Second
	clientPongWait   = 60 * time.Second
	clientPingPeriod = 30 * time.Second
	clientSendBuffer = 256
	clientReadLimit  = 1024
)

// ClientMessage is the envelope sent to dashboard websocket clients.
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time string      `json:"time"`
}

// clientCommand is the inbound control message from a dashboard client.
type clientCommand struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Hub bridges the connection manager's update stream to dashboard websocket
// clients. Each client holds one manager subscription matching its requested
// symbols; symbol refcounting and upstream teardown live in the manager.
type Hub struct {
	manager    *Manager
	clients    map[*HubClient]bool
	register   chan *HubClient
	unregister chan *HubClient
	shutdown   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewHub creates a hub over the given manager.
func NewHub(manager *Manager) *Hub {
	return &Hub{
		manager:    manager,
		clients:    make(map[*HubClient]bool),
		register:   make(chan *HubClient),
		unregister: make(chan *HubClient),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run processes client registration until Shutdown.
func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			return

		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= MaxClients {
				h.mu.Unlock()
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				client.conn.Close()
				log.Printf("Stream client rejected: max clients reached (%d)", MaxClients)
				continue
			}
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Stream client connected. Total clients: %d", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.teardown()
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Stream client disconnected. Total clients: %d", count)
		}
	}
}

// Shutdown closes all clients and stops the hub loop.
func (h *Hub) Shutdown() {
	close(h.shutdown)

	h.mu.Lock()
	for client := range h.clients {
		client.teardown()
		client.conn.Close()
	}
	h.clients = make(map[*HubClient]bool)
	h.mu.Unlock()
	log.Println("Stream hub shutdown complete")
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades an HTTP request to a dashboard stream connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	atCapacity := len(h.clients) >= MaxClients
	h.mu.RUnlock()
	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Stream upgrade error: %v", err)
		return
	}

	client := &HubClient{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, clientSendBuffer),
		subscribed: make(map[string]struct{}),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// HubClient is one dashboard websocket connection.
type HubClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	subscribed map[string]struct{}
	sub        *Subscription
	sendClosed bool
}

// teardown releases the client's manager subscription and send channel.
// Caller must ensure it runs at most once per concern; the sendClosed flag
// guards the channel.
func (c *HubClient) teardown() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	alreadyClosed := c.sendClosed
	c.sendClosed = true
	c.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if !alreadyClosed {
		close(c.send)
	}
}

// enqueue pushes a marshaled message to the client, dropping it when the
// client cannot keep up.
func (c *HubClient) enqueue(data []byte) {
	c.mu.Lock()
	closed := c.sendClosed
	c.mu.Unlock()
	if closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump writes queued messages and periodic pings to the connection.
func (c *HubClient) writePump() {
	ticker := time.NewTicker(clientPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes subscribe/unsubscribe commands from the connection.
func (c *HubClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(clientReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Stream read error: %v", err)
			}
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}

		switch cmd.Action {
		case "subscribe":
			c.updateSubscription(cmd.Symbols, true)
		case "unsubscribe":
			c.updateSubscription(cmd.Symbols, false)
		case "status":
			c.sendStatus()
		}
	}
}

// updateSubscription adjusts the client's symbol set and swaps its manager
// subscription for one covering the new set.
func (c *HubClient) updateSubscription(symbols []string, add bool) {
	c.mu.Lock()
	for _, s := range symbols {
		if add {
			c.subscribed[s] = struct{}{}
		} else {
			delete(c.subscribed, s)
		}
	}
	current := make([]string, 0, len(c.subscribed))
	for s := range c.subscribed {
		current = append(current, s)
	}
	old := c.sub
	c.mu.Unlock()

	var next *Subscription
	if len(current) > 0 {
		next = c.hub.manager.Subscribe(current...)
	}

	c.mu.Lock()
	c.sub = next
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if next != nil {
		go c.forward(next)
	}
}

// forward relays updates from a manager subscription until it is closed.
func (c *HubClient) forward(sub *Subscription) {
	for update := range sub.Updates() {
		data, err := json.Marshal(ClientMessage{
			Type: "price_update",
			Data: update,
			Time: time.Now().Format(time.RFC3339),
		})
		if err != nil {
			continue
		}
		c.enqueue(data)
	}
}

// sendStatus sends the manager status to this client only.
func (c *HubClient) sendStatus() {
	data, err := json.Marshal(ClientMessage{
		Type: "status",
		Data: c.hub.manager.Status(),
		Time: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}
