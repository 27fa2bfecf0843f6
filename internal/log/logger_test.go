package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(level)
	l.SetOutput(&buf)
	l.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerFiltersByLevel(t *testing.T) {
	l, buf := newTestLogger(LevelWarn)
	l.Debug("debug", nil)
	l.Info("info", nil)
	l.Warn("warn", nil)
	l.Error("error", map[string]interface{}{"k": "v"})

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %s", len(entries), buf.String())
	}
	if entries[0].Level != "WARN" || entries[1].Level != "ERROR" {
		t.Fatalf("unexpected levels: %+v", entries)
	}
	if entries[1].Fields["k"] != "v" {
		t.Fatalf("expected fields preserved, got %+v", entries[1].Fields)
	}
	if entries[0].Timestamp != "2024-05-01T10:00:00Z" {
		t.Fatalf("unexpected timestamp %q", entries[0].Timestamp)
	}
}

func TestLogTransition(t *testing.T) {
	l, buf := newTestLogger(LevelInfo)
	lastOnline := time.Date(2024, 5, 1, 9, 59, 55, 0, time.UTC)
	l.LogTransition("192.0.2.1", "edge", false, lastOnline)
	l.LogTransition("192.0.2.1", "edge", true, time.Time{})

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != "WARN" || entries[0].Message != "target offline" {
		t.Fatalf("unexpected offline entry: %+v", entries[0])
	}
	if entries[0].Fields["last_online"] != "2024-05-01T09:59:55Z" {
		t.Fatalf("expected last_online field, got %+v", entries[0].Fields)
	}
	if entries[1].Level != "INFO" || entries[1].Message != "target online" {
		t.Fatalf("unexpected online entry: %+v", entries[1])
	}
}

func TestLogProbeResultIsDebug(t *testing.T) {
	l, buf := newTestLogger(LevelInfo)
	l.LogProbeResult("192.0.2.1", "reachable", time.Millisecond, nil)
	if buf.Len() != 0 {
		t.Fatalf("expected probe results hidden at info level, got %s", buf.String())
	}

	l.SetLevel(LevelDebug)
	l.LogProbeResult("192.0.2.1", "errored", 0, errors.New("boom"))
	entries := decodeLines(t, buf)
	if len(entries) != 1 || entries[0].Fields["error"] != "boom" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestLogErrorAddsComponent(t *testing.T) {
	l, buf := newTestLogger(LevelInfo)
	l.LogError("persist", errors.New("disk full"), nil)

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Fields["component"] != "persist" || entries[0].Fields["error"] != "disk full" {
		t.Fatalf("unexpected fields: %+v", entries[0].Fields)
	}
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Error("ignored", nil)
	var nilLogger *Logger
	nilLogger.Info("ignored", nil)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"ERROR":   LevelError,
		"bogus":   LevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
	if LevelWarn.String() != "WARN" {
		t.Fatalf("unexpected level string %q", LevelWarn.String())
	}
}
