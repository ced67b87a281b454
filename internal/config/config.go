package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures the runtime configuration for the vidstream client.
type Config struct {
	APIBaseURL        string
	ChannelURL        string
	Token             string
	LogLevel          string
	HTTPTimeout       time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	RefetchDebounce   time.Duration
	UploadTimeout     time.Duration
}

// Load reads configuration from a local .env file (when present) and the
// environment, applying sensible defaults for local development.
func Load() (Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := Config{
		APIBaseURL:        getString("VIDSTREAM_API_URL", "http://localhost:5000/api"),
		ChannelURL:        getString("VIDSTREAM_CHANNEL_URL", "ws://localhost:5000/ws"),
		Token:             getString("VIDSTREAM_TOKEN", ""),
		LogLevel:          getString("VIDSTREAM_LOG_LEVEL", "info"),
		HTTPTimeout:       getDuration("VIDSTREAM_HTTP_TIMEOUT", 30*time.Second),
		ReconnectAttempts: getInt("VIDSTREAM_RECONNECT_ATTEMPTS", 5),
		ReconnectDelay:    getDuration("VIDSTREAM_RECONNECT_DELAY", time.Second),
		RefetchDebounce:   getDuration("VIDSTREAM_REFETCH_DEBOUNCE", time.Second),
		UploadTimeout:     getDuration("VIDSTREAM_UPLOAD_TIMEOUT", 10*time.Minute),
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
