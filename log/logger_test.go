package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriter_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("lambda-api", "info", "json", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}

	logger.Info("function installed")
	_ = logger.Sync()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\noutput: %s", err, buf.String())
	}
	if entry["service"] != "lambda-api" {
		t.Errorf("service = %v, want lambda-api", entry["service"])
	}
	if entry["message"] != "function installed" {
		t.Errorf("message = %v, want 'function installed'", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("s3-api", "warn", "json", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("emitted")
	_ = logger.Sync()

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Error("info entry emitted at warn level")
	}
	if !strings.Contains(out, "emitted") {
		t.Error("warn entry missing")
	}
}

func TestNewWithWriter_InvalidConfig(t *testing.T) {
	if _, err := NewWithWriter("x", "loud", "json", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewWithWriter("x", "info", "xml", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}
