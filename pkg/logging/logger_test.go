package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", "component", "scroller")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "kept" || record["component"] != "scroller" {
		t.Fatalf("unexpected record: %v", record)
	}
	if ts, ok := record["time"].(string); !ok || !strings.HasSuffix(ts, "Z") {
		t.Fatalf("expected UTC RFC3339 time, got %v", record["time"])
	}
}

func TestNewRejectsUnknownValues(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatalf("expected discard logger for nil input")
	}
	logger := Discard()
	if OrDiscard(logger) != logger {
		t.Fatalf("expected the provided logger to be returned")
	}
}
