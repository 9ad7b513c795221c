package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service configuration, loaded from the environment.
type Config struct {
	Port        string
	Environment string

	// Upstream provider
	UpstreamAPIKey  string
	UpstreamBaseURL string
	PushChannelURL  string
	RequestTimeout  time.Duration

	// Upstream rate limiter
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration

	// Inbound API throttle, per client IP
	APIThrottleMaxRequests int
	APIThrottleWindow      time.Duration

	// Cache TTL per endpoint class
	QuoteCacheTTL   time.Duration
	CandleCacheTTL  time.Duration
	SearchCacheTTL  time.Duration
	ProfileCacheTTL time.Duration

	// Realtime connection manager
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	PollInterval         time.Duration
}

var AppConfig *Config

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		UpstreamAPIKey:  getEnv("UPSTREAM_API_KEY", ""),
		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", "https://finnhub.io/api/v1"),
		PushChannelURL:  getEnv("PUSH_CHANNEL_URL", "wss://ws.finnhub.io"),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT_SEC", 10*time.Second, time.Second),

		RateLimitMaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 30),
		RateLimitWindow:      getEnvDuration("RATE_LIMIT_WINDOW_MS", time.Minute, time.Millisecond),

		APIThrottleMaxRequests: getEnvInt("API_THROTTLE_MAX_REQUESTS", 120),
		APIThrottleWindow:      getEnvDuration("API_THROTTLE_WINDOW_SEC", time.Minute, time.Second),

		QuoteCacheTTL:   getEnvDuration("QUOTE_CACHE_TTL_SEC", 60*time.Second, time.Second),
		CandleCacheTTL:  getEnvDuration("CANDLE_CACHE_TTL_SEC", 5*time.Minute, time.Second),
		SearchCacheTTL:  getEnvDuration("SEARCH_CACHE_TTL_MIN", 30*time.Minute, time.Minute),
		ProfileCacheTTL: getEnvDuration("PROFILE_CACHE_TTL_MIN", 60*time.Minute, time.Minute),

		HeartbeatInterval:    getEnvDuration("HEARTBEAT_INTERVAL_SEC", 30*time.Second, time.Second),
		ReconnectDelay:       getEnvDuration("RECONNECT_DELAY_MS", 2*time.Second, time.Millisecond),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 5),
		PollInterval:         getEnvDuration("POLL_INTERVAL_SEC", 5*time.Second, time.Second),
	}

	AppConfig = config
	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvDuration gets a duration environment variable expressed in the given
// unit or returns a default value
func getEnvDuration(key string, defaultValue time.Duration, unit time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid value for %s: %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return time.Duration(n) * unit
}
