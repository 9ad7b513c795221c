package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricefeed_backend/config"
	"pricefeed_backend/routes"
	"pricefeed_backend/scheduler"
	"pricefeed_backend/services/cache"
	"pricefeed_backend/services/gateway"
	"pricefeed_backend/services/ratelimit"
	"pricefeed_backend/services/realtime"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("==============================================")
	log.Println("  Price Feed Backend - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Build the data path: cache -> rate limiter -> upstream gateway.
	// Missing credentials are fatal here, before anything starts serving.
	store := cache.New()
	limiter := ratelimit.NewLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow)
	gw, err := gateway.New(gateway.Config{
		APIKey:         cfg.UpstreamAPIKey,
		BaseURL:        cfg.UpstreamBaseURL,
		RequestTimeout: cfg.RequestTimeout,
		TTL: gateway.TTLConfig{
			Quote:   cfg.QuoteCacheTTL,
			Candle:  cfg.CandleCacheTTL,
			Search:  cfg.SearchCacheTTL,
			Profile: cfg.ProfileCacheTTL,
		},
	}, store, limiter)
	if err != nil {
		log.Fatalf("Failed to initialize upstream gateway: %v", err)
	}

	// Realtime connection manager and dashboard hub
	manager := realtime.NewManager(realtime.Config{
		PushURL:              cfg.PushChannelURL,
		HeartbeatInterval:    cfg.HeartbeatInterval,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		PollInterval:         cfg.PollInterval,
		QuoteTimeout:         cfg.RequestTimeout,
		AutoReconnect:        true,
	}, gw)
	hub := realtime.NewHub(manager)

	manager.Start()
	go hub.Run()

	// Create Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	setupHealthEndpoints(router)
	routes.SetupRoutes(router, gw, manager, hub)

	// Start background scheduler
	jobScheduler := scheduler.NewScheduler(store, gw, manager)
	jobScheduler.Start()

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	gracefulShutdown(server, jobScheduler, manager, hub)
}

// setupHealthEndpoints sets up health check endpoints
func setupHealthEndpoints(router *gin.Engine) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Price Feed Backend API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - the service is ready as soon as the gateway exists;
	// the cache is memory-resident and rebuilt from empty on restart
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler, manager *realtime.Manager, hub *realtime.Hub) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop background work first so no new updates flow to clients
	jobScheduler.Stop()
	hub.Shutdown()
	manager.Close()

	// Shut down the HTTP server with a deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
