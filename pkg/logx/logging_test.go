package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("IsZero() = false, want true")
	}
	l.Info("nothing happens", String("k", "v"))
	l.With(Int("n", 1)).Error("still nothing")
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "poller"))
	l.Warn("fetch failed", Err(errors.New("boom")), Int("limit", 100))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if got := m["comp"]; got != "poller" {
		t.Fatalf("comp = %v, want poller", got)
	}
	if got := m["err"]; got != "boom" {
		t.Fatalf("err = %v, want boom", got)
	}
	if got := m["level"]; got != "warn" {
		t.Fatalf("level = %v, want warn", got)
	}
	if got, _ := m["caller"].(string); !strings.HasPrefix(got, "logging_test.go:") {
		t.Fatalf("caller = %q, want logging_test.go:<line>", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at warn level: %q", buf.String())
	}
	if l.Enabled(LevelDebug) {
		t.Fatalf("Enabled(debug) = true, want false")
	}
	if !l.Enabled(LevelError) {
		t.Fatalf("Enabled(error) = false, want true")
	}
}

func TestServiceApplySwapsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "a.log")
	second := filepath.Join(dir, "b.log")

	svc, l := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	t.Cleanup(func() { _ = svc.Close() })

	l.Info("one")
	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: second}})
	l.Info("two")

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read %s: %v", first, err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("read %s: %v", second, err)
	}
	if !strings.Contains(string(a), `"one"`) || strings.Contains(string(a), `"two"`) {
		t.Fatalf("first file = %q", a)
	}
	if !strings.Contains(string(b), `"two"`) {
		t.Fatalf("second file = %q", b)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" WARNING ", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := parseLevel(tt.in, LevelInfo); got != tt.want {
				t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
