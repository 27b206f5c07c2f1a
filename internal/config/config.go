package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Stream proxy
	ProxyURL string

	// Server
	Port int

	// Playback behavior
	ReadyBytes     int64         // buffered bytes before readiness fires
	GestureWindow  time.Duration // how long a user gesture stays valid
	InitialVolume  float64       // 0.0 - 1.0
	FadeInDuration time.Duration // fade applied when playback commits

	// Reconnect policy
	ReconnectBase time.Duration
	ReconnectCap  time.Duration
	ReconnectMax  int

	// Visualizer
	VisualizerTick time.Duration
	FFTSize        int
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is honored when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ProxyURL: envStr("ETHERWAVE_PROXY_URL", "http://localhost:9090"),

		Port: envInt("ETHERWAVE_PORT", 8080),

		ReadyBytes:     int64(envInt("ETHERWAVE_READY_BYTES", 65536)),
		GestureWindow:  envDur("ETHERWAVE_GESTURE_WINDOW", 5*time.Second),
		InitialVolume:  envFloat("ETHERWAVE_VOLUME", 1.0),
		FadeInDuration: envDur("ETHERWAVE_FADE_IN", 50*time.Millisecond),

		ReconnectBase: envDur("ETHERWAVE_RECONNECT_BASE", 2*time.Second),
		ReconnectCap:  envDur("ETHERWAVE_RECONNECT_CAP", 10*time.Second),
		ReconnectMax:  envInt("ETHERWAVE_RECONNECT_MAX", 3),

		VisualizerTick: envDur("ETHERWAVE_VISUALIZER_TICK", 50*time.Millisecond),
		FFTSize:        envInt("ETHERWAVE_FFT_SIZE", 256),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
