package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPath != "/metrics" {
		t.Fatalf("unexpected metrics path %q", cfg.Server.MetricsPath)
	}
	if cfg.Events.QueueSize != 100 {
		t.Fatalf("expected default queue size 100, got %d", cfg.Events.QueueSize)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/dashboard")
	t.Setenv("EVENTS_QUEUE_SIZE", "50")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("SERVER_PORT not applied: %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://localhost/dashboard" {
		t.Fatalf("DATABASE_URL not applied: %q", cfg.Database.URL)
	}
	if cfg.Events.QueueSize != 50 {
		t.Fatalf("EVENTS_QUEUE_SIZE not applied: %d", cfg.Events.QueueSize)
	}
	if cfg.Logging.Format != "text" {
		t.Fatalf("LOG_FORMAT not applied: %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsNonPositiveQueue(t *testing.T) {
	t.Setenv("EVENTS_QUEUE_SIZE", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error for zero queue size")
	}
}
