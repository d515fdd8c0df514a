// Package logger provides structured JSON logging on top of zerolog.
// It sets up a process-wide logger with service-level context and
// propagates trace IDs (one per scan cycle or API request) through
// context.Context.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Init creates the structured logger for the given service, writing JSON to
// stdout, and installs it as the zerolog global logger.
func Init(service string, level zerolog.Level) zerolog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service string, level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	l := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	log.Logger = l
	return l
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component returns a child logger tagged with a component name.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID of the form "{scope}-{uuid}".
func GenerateTraceID(scope string) string {
	return scope + "-" + uuid.NewString()
}

// FromContext returns base with the context's trace ID attached, if any.
func FromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	tid := TraceID(ctx)
	if tid == "" {
		return base
	}
	return base.With().Str("trace_id", tid).Logger()
}
