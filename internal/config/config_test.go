package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":3000" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":3000")
	}
	if cfg.DefaultWords != 100 {
		t.Fatalf("DefaultWords = %d, want 100", cfg.DefaultWords)
	}
	if cfg.DefaultDelayMS != 50 {
		t.Fatalf("DefaultDelayMS = %d, want 50", cfg.DefaultDelayMS)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.StreamIdleTimeout != 2*time.Minute {
		t.Fatalf("StreamIdleTimeout = %v, want 2m", cfg.StreamIdleTimeout)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("STREAM_DEFAULT_WORDS", "2500")
	t.Setenv("STREAM_DEFAULT_DELAY_MS", "5")
	t.Setenv("STREAM_MAX_ACTIVE", "8")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")
	t.Setenv("APP_LOG_FORMAT", "Console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9191")
	}
	if cfg.DefaultWords != 2500 || cfg.DefaultDelayMS != 5 || cfg.MaxActiveStreams != 8 {
		t.Fatalf("unexpected stream defaults: %+v", cfg)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
	if cfg.LogFormat != "console" {
		t.Fatalf("LogFormat = %q, want console", cfg.LogFormat)
	}
}

func TestLoadRejectsOutOfRangeDefaults(t *testing.T) {
	cases := map[string]string{
		"STREAM_DEFAULT_WORDS":    "0",
		"STREAM_DEFAULT_DELAY_MS": "5000",
		"STREAM_MAX_ACTIVE":       "-1",
		"STREAM_IDLE_TIMEOUT":     "10ms",
		"APP_SHUTDOWN_TIMEOUT":    "nope",
		"APP_LOG_FORMAT":          "xml",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() expected error for %s=%q", key, value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_LOG_LEVEL",
		"APP_LOG_FORMAT",
		"APP_ALLOW_ANY_ORIGIN",
		"STREAM_DEFAULT_WORDS",
		"STREAM_DEFAULT_DELAY_MS",
		"STREAM_MAX_ACTIVE",
		"STREAM_IDLE_TIMEOUT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
