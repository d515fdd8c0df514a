package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitWriter(t *testing.T) {
	var buf bytes.Buffer
	l := InitWriter(&buf, "test-service", zerolog.InfoLevel)
	l.Debug().Msg("hidden")
	l.Info().Str("symbol", "ETH/USDC").Msg("scan done")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at info level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["service"] != "test-service" || entry["symbol"] != "ETH/USDC" {
		t.Errorf("unexpected fields: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	a, b := GenerateTraceID("scan"), GenerateTraceID("scan")
	if !strings.HasPrefix(a, "scan-") {
		t.Errorf("expected trace id to start with 'scan-', got %s", a)
	}
	if a == b {
		t.Error("trace ids must be unique")
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	noTrace := FromContext(context.Background(), base)
	noTrace.Info().Msg("no trace")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("unexpected trace_id: %s", buf.String())
	}

	buf.Reset()
	ctx := WithTraceID(context.Background(), "scan-1")
	withTrace := Component(FromContext(ctx, base), "scanner")
	withTrace.Info().Msg("with trace")
	out := buf.String()
	if !strings.Contains(out, `"trace_id":"scan-1"`) || !strings.Contains(out, `"component":"scanner"`) {
		t.Errorf("missing fields: %s", out)
	}
}
