package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{" info ", InfoLevel},
		{"Warn", WarnLevel},
		{"warning", WarnLevel},
		{"ERROR", ErrorLevel},
		{"verbose", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
	if Level(42).String() != "UNKNOWN" {
		t.Errorf("unexpected name for out-of-range level")
	}
}

func TestDomainFields(t *testing.T) {
	tests := []struct {
		field Field
		key   string
		value any
	}{
		{ClusterID(7), "cluster_id", 7},
		{Cluster("He2V5"), "cluster", "He2V5"},
		{GridPoint(12), "xi", 12},
		{Temperature(1000), "temperature", 1000.0},
		{DOF(88), "dof", 88},
		{Rank(3), "rank", 3},
		{RunID("abc"), "run_id", "abc"},
		{Step(9), "step", 9},
		{Duration("wait", 2 * time.Second), "wait", "2s"},
		{Error(errors.New("boom")), "error", "boom"},
		{Error(nil), "error", nil},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if tt.field.Key != tt.key || tt.field.Value != tt.value {
				t.Errorf("field = %+v, want {%s %v}", tt.field, tt.key, tt.value)
			}
		})
	}
}

func TestJSONLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, WarnLevel)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown", Int("n", 1))
	logger.Error("shown")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Level != "WARN" || entries[1].Level != "ERROR" {
		t.Errorf("levels = %s,%s", entries[0].Level, entries[1].Level)
	}
	if entries[0].Fields["n"] != float64(1) {
		t.Errorf("field n = %v", entries[0].Fields["n"])
	}
	if entries[1].Fields != nil {
		t.Errorf("expected fields to be omitted, got %v", entries[1].Fields)
	}
}

func TestJSONLogger_WithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)
	child := logger.With(Component("solver"), Rank(2))

	child.Debug("hidden")
	logger.SetLevel(DebugLevel)
	if !child.Enabled(DebugLevel) {
		t.Fatal("child should follow parent level")
	}
	child.Debug("evaluation", GridPoint(4))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	f := entries[0].Fields
	if f["component"] != "solver" || f["rank"] != float64(2) || f["xi"] != float64(4) {
		t.Errorf("fields = %v", f)
	}
}

func TestJSONLogger_ConcurrentWritesAreLineAtomic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			l := logger.With(Rank(rank))
			for i := 0; i < 50; i++ {
				l.Info("reduce", Step(i))
			}
		}(r)
	}
	wg.Wait()

	if got := len(decodeLines(t, &buf)); got != 200 {
		t.Errorf("got %d entries, want 200", got)
	}
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Info("ignored")
	if l.Enabled(ErrorLevel) {
		t.Error("nop logger must report every level disabled")
	}
	if l.With(Count(1)) == nil {
		t.Error("With returned nil")
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, DebugLevel)

	timer := StartTimer(logger, "rhs", DOF(10))
	timer.EndWithLevel(DebugLevel, "rhs done")
	StartTimer(logger, "jacobian").EndError(errors.New("matrix rejected"))

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "rhs done" || entries[0].Fields["latency"] == nil || entries[0].Fields["dof"] != float64(10) {
		t.Errorf("unexpected timed entry %+v", entries[0])
	}
	if entries[1].Level != "ERROR" || entries[1].Fields["error"] != "matrix rejected" {
		t.Errorf("unexpected error entry %+v", entries[1])
	}
}

func TestDefaultLoggerOverride(t *testing.T) {
	var buf bytes.Buffer
	SetDefaultLogger(NewJSONLogger(&buf, InfoLevel))
	defer SetDefaultLogger(nil)

	OrDefault(nil).Info("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Errorf("default logger not used: %q", buf.String())
	}

	var own bytes.Buffer
	OrDefault(NewJSONLogger(&own, InfoLevel)).Info("explicit")
	if strings.Contains(buf.String(), "explicit") || !strings.Contains(own.String(), "explicit") {
		t.Error("explicit logger should win over the default")
	}
}

func BenchmarkJSONLogger_Filtered(b *testing.B) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, ErrorLevel)
	for i := 0; i < b.N; i++ {
		logger.Debug("per point", GridPoint(i), Temperature(1000))
	}
}
