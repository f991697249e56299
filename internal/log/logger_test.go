package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitialize(t *testing.T) {
	var buf bytes.Buffer
	Initialize(LevelInfo, &buf)

	if Verbosity() != LevelInfo {
		t.Errorf("expected verbosity %d, got %d", LevelInfo, Verbosity())
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer

	Initialize(LevelTrace, &buf)

	Info("test info", "key", "value")
	Debug("test debug", "key", "value")
	Trace("test trace", "key", "value")
	Warn("test warn", "key", "value")
	Error("test error", "key", "value")

	if buf.Len() == 0 {
		t.Error("expected log output, got none")
	}
}

func TestQuietSuppressesInfo(t *testing.T) {
	var buf bytes.Buffer
	Initialize(LevelQuiet, &buf)

	Info("hidden")
	Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output at quiet level, got %q", buf.String())
	}

	Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warning in output, got %q", buf.String())
	}
}

func TestVerbosityLevels(t *testing.T) {
	tests := []struct {
		level   int
		isInfo  bool
		isDebug bool
		isTrace bool
	}{
		{LevelQuiet, false, false, false},
		{LevelInfo, true, false, false},
		{LevelDebug, true, true, false},
		{LevelTrace, true, true, true},
	}

	var buf bytes.Buffer
	for _, tt := range tests {
		Initialize(tt.level, &buf)

		if IsInfo() != tt.isInfo {
			t.Errorf("at level %d: expected IsInfo()=%v, got %v", tt.level, tt.isInfo, IsInfo())
		}
		if IsDebug() != tt.isDebug {
			t.Errorf("at level %d: expected IsDebug()=%v, got %v", tt.level, tt.isDebug, IsDebug())
		}
		if IsTrace() != tt.isTrace {
			t.Errorf("at level %d: expected IsTrace()=%v, got %v", tt.level, tt.isTrace, IsTrace())
		}
	}
}

func TestJSONFormatWithCorrelation(t *testing.T) {
	var buf bytes.Buffer
	Initialize(LevelInfo, &buf)
	SetFormat(FormatJSON)
	defer SetFormat(FormatAuto)

	ctx := WithCycleID(context.Background(), "abc123")
	ctx = WithRequestID(ctx, "req-1")
	InfoContext(ctx, "cycle finished", "pairs", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if record["cycle_id"] != "abc123" {
		t.Errorf("cycle_id = %v, want %q", record["cycle_id"], "abc123")
	}
	if record["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want %q", record["request_id"], "req-1")
	}
	if record["msg"] != "cycle finished" {
		t.Errorf("msg = %v, want %q", record["msg"], "cycle finished")
	}
}

func TestAutoFormatNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	if got := resolveFormat(&buf, FormatAuto); got != FormatJSON {
		t.Errorf("resolveFormat(buffer, auto) = %q, want %q", got, FormatJSON)
	}
	if got := resolveFormat(&buf, FormatText); got != FormatText {
		t.Errorf("resolveFormat(buffer, text) = %q, want %q", got, FormatText)
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 8 {
		t.Errorf("NewID() length = %d, want 8", len(a))
	}
	if a == b {
		t.Errorf("NewID() returned duplicate ids %q", a)
	}
}
