package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type traceKey struct{}

// New builds a structured logger with timestamps writing to stdout. Pretty
// output uses the console writer with RFC3339 times; otherwise lines are
// JSON.
func New(level string, pretty bool) zerolog.Logger {
	return NewTo(os.Stdout, level, pretty)
}

func NewTo(w io.Writer, level string, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
}

func parseLevel(raw string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || raw == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithTrace binds traceID to ctx together with a child of log that carries
// it as the "trace" field. zerolog.Ctx(ctx) returns that child.
func WithTrace(ctx context.Context, log zerolog.Logger, traceID string) context.Context {
	if traceID != "" {
		log = log.With().Str("trace", traceID).Logger()
		ctx = context.WithValue(ctx, traceKey{}, traceID)
	}
	return log.WithContext(ctx)
}

// TraceID returns the trace id bound by WithTrace, if any.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
