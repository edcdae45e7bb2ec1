package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Token budget and pacing bounds accepted by the stream endpoint.
const (
	MinWords   = 1
	MaxWords   = 1_000_000
	MinDelayMS = 1
	MaxDelayMS = 1000
)

// Config contains all runtime settings for the token stream server.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	LogLevel  string
	LogFormat string

	AllowAnyOrigin bool

	DefaultWords   int
	DefaultDelayMS int
	// MaxActiveStreams caps concurrent sessions; 0 means unlimited.
	MaxActiveStreams int
	// StreamIdleTimeout cancels sessions whose cursor stops advancing.
	StreamIdleTimeout time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":3000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "streambench"),
		LogLevel:         strings.ToLower(envOrDefault("APP_LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("APP_LOG_FORMAT", "json")),
		AllowAnyOrigin:   false,
		ShutdownTimeout:  15 * time.Second,
		DefaultWords:     100,
		DefaultDelayMS:   50,
		MaxActiveStreams: 0,
	}
	cfg.StreamIdleTimeout = 2 * time.Minute
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamIdleTimeout, err = durationFromEnv("STREAM_IDLE_TIMEOUT", cfg.StreamIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultWords, err = intFromEnv("STREAM_DEFAULT_WORDS", cfg.DefaultWords)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultDelayMS, err = intFromEnv("STREAM_DEFAULT_DELAY_MS", cfg.DefaultDelayMS)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxActiveStreams, err = intFromEnv("STREAM_MAX_ACTIVE", cfg.MaxActiveStreams)
	if err != nil {
		return Config{}, err
	}

	if cfg.DefaultWords < MinWords || cfg.DefaultWords > MaxWords {
		return Config{}, fmt.Errorf("STREAM_DEFAULT_WORDS must be in [%d,%d]", MinWords, MaxWords)
	}
	if cfg.DefaultDelayMS < MinDelayMS || cfg.DefaultDelayMS > MaxDelayMS {
		return Config{}, fmt.Errorf("STREAM_DEFAULT_DELAY_MS must be in [%d,%d]", MinDelayMS, MaxDelayMS)
	}
	if cfg.MaxActiveStreams < 0 {
		return Config{}, fmt.Errorf("STREAM_MAX_ACTIVE must be >= 0")
	}
	if cfg.StreamIdleTimeout < time.Duration(MaxDelayMS)*time.Millisecond {
		return Config{}, fmt.Errorf("STREAM_IDLE_TIMEOUT must be at least %dms", MaxDelayMS)
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("APP_LOG_FORMAT must be json or console, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
