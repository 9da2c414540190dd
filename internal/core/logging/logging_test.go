package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("warn", "", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", slog.String("rule_id", "r1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "kept" || entry["rule_id"] != "r1" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("info", "text", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}
	logger.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}

	if _, err := NewWithWriter("info", "xml", &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWithRequest(t *testing.T) {
	var buf bytes.Buffer
	base, _ := NewWithWriter("info", "json", &buf)

	ctx, logger := WithRequest(context.Background(), base)
	id, ok := RequestID(ctx)
	if !ok || len(id) != 16 {
		t.Fatalf("RequestID() = %q, %v", id, ok)
	}
	if FromContext(ctx, nil) != logger {
		t.Error("FromContext did not return the request logger")
	}
	if FromContext(context.Background(), base) != base {
		t.Error("FromContext did not fall back")
	}

	logger.Info("tagged")
	if !strings.Contains(buf.String(), id) {
		t.Errorf("request id missing from %q", buf.String())
	}
}
