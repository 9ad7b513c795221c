package routes

import (
	"time"

	"pricefeed_backend/config"
	"pricefeed_backend/controllers"
	"pricefeed_backend/middleware"
	"pricefeed_backend/services/gateway"
	"pricefeed_backend/services/realtime"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, gw *gateway.Gateway, manager *realtime.Manager, hub *realtime.Hub) {
	// Initialize controllers
	marketController := controllers.NewMarketController(gw)
	streamController := controllers.NewStreamController(manager, hub)

	// Dashboard stream endpoint
	router.GET("/ws", streamController.HandleWebSocket)

	// API v1 group, behind a per-client throttle
	throttleMax, throttleWindow := 120, time.Minute
	if config.AppConfig != nil {
		throttleMax = config.AppConfig.APIThrottleMaxRequests
		throttleWindow = config.AppConfig.APIThrottleWindow
	}
	api := router.Group("/api/v1")
	api.Use(middleware.NewThrottle(throttleMax, throttleWindow).Handler())
	{
		api.GET("/quote/:symbol", marketController.GetQuote)
		api.GET("/candles/:symbol", marketController.GetCandles)
		api.GET("/indicators/:symbol", marketController.GetIndicator)
		api.GET("/search", marketController.SearchSymbols)
		api.GET("/profile/:symbol", marketController.GetProfile)

		stream := api.Group("/stream")
		{
			stream.GET("/status", streamController.GetStatus)
			stream.POST("/reconnect", streamController.Reconnect)
		}
	}
}
