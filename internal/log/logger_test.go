package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Component: ComponentLogs, Format: "json", Output: &buf})

	logger.InfoContext(context.Background(), "saved", FieldUserID, "u1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec[FieldComponent] != ComponentLogs || rec[FieldUserID] != "u1" {
		t.Fatalf("record = %v", rec)
	}

	buf.Reset()
	logger.InfoContext(context.Background(), "explicit", FieldComponent, ComponentHTTP)
	if strings.Count(buf.String(), `"component"`) != 1 {
		t.Fatalf("component duplicated: %s", buf.String())
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf}))
	r := httptest.NewRequest("GET", "/api/logs?from=2024-03-01", nil)

	sl.LogHTTPEnd(context.Background(), r, 503, 12, "10.0.0.1")
	if !strings.Contains(buf.String(), `"level":"ERROR"`) || !strings.Contains(buf.String(), `"status_code":503`) {
		t.Fatalf("5xx record = %s", buf.String())
	}

	buf.Reset()
	sl.LogError(context.Background(), "boom", errors.New("disk"), ComponentStorage, OpLeave, nil)
	if !strings.Contains(buf.String(), `"error":"disk"`) || !strings.Contains(buf.String(), `"operation":"leave"`) {
		t.Fatalf("error record = %s", buf.String())
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}
	l := New(DefaultConfig())
	if FromContext(WithContext(context.Background(), l)) != l {
		t.Fatalf("logger not carried")
	}
}
