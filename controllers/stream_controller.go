package controllers

import (
	"net/http"

	"pricefeed_backend/services/realtime"

	"github.com/gin-gonic/gin"
)

// StreamController handles realtime stream endpoints
type StreamController struct {
	manager *realtime.Manager
	hub     *realtime.Hub
}

// NewStreamController creates a new stream controller
func NewStreamController(manager *realtime.Manager, hub *realtime.Hub) *StreamController {
	return &StreamController{manager: manager, hub: hub}
}

// HandleWebSocket upgrades the request to a dashboard stream connection
// GET /ws
func (sc *StreamController) HandleWebSocket(c *gin.Context) {
	sc.hub.HandleWebSocket(c.Writer, c.Request)
}

// GetStatus returns connection manager and hub status
// GET /api/v1/stream/status
func (sc *StreamController) GetStatus(c *gin.Context) {
	status := sc.manager.Status()
	status["client_count"] = sc.hub.ClientCount()
	status["max_clients"] = realtime.MaxClients
	c.JSON(http.StatusOK, status)
}

// Reconnect manually retries the push channel from error or terminal
// disconnected state
// POST /api/v1/stream/reconnect
func (sc *StreamController) Reconnect(c *gin.Context) {
	sc.manager.Connect()
	c.JSON(http.StatusOK, gin.H{
		"status": "reconnect requested",
		"state":  sc.manager.State().String(),
	})
}
