package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerJSONFields(t *testing.T) {
	log := New(LoggingConfig{Level: "debug", Format: "json", Output: "stdout"})

	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithField("node_id", "lnd-1").WithField("category", "channel").Info("subscription started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["node_id"] != "lnd-1" || entry["category"] != "channel" {
		t.Fatalf("fields missing: %#v", entry)
	}
	if entry["msg"] != "subscription started" {
		t.Fatalf("message missing: %#v", entry)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	log := New(LoggingConfig{Level: "warn", Format: "json", Output: "stdout"})

	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("below-level entries leaked: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn entry missing: %s", out)
	}
}

func TestLoggerUnknownLevelFallsBack(t *testing.T) {
	log := New(LoggingConfig{Level: "chatty", Format: "json", Output: "stdout"})

	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.Info("still works")
	if !strings.Contains(buf.String(), "still works") {
		t.Fatalf("info should be enabled at fallback level: %s", buf.String())
	}
}

func TestNewDefaultTagsComponent(t *testing.T) {
	log := NewDefault("events")

	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "events" {
		t.Fatalf("component field missing: %#v", entry)
	}
}
