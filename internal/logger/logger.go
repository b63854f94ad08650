// Package logger wires zerolog through context so the API server, the
// parse worker and the CLIs share one structured logging setup. FromContext
// returns the logger by value; callers bind it to a variable before
// chaining events.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// New creates the process logger. The level comes from LOG_LEVEL when set
// (debug, info, warn, error); anything else means info.
func New() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(levelFromEnv()).With().Timestamp().Caller().Logger()
}

// NewWithWriter creates a logger writing to w, used by tests to capture
// output.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithContext returns a context carrying log.
func WithContext(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// WithDeal stamps deal_id on the context logger so every line emitted
// under a deal-scoped operation carries the id.
func WithDeal(ctx context.Context, dealID string) context.Context {
	fc := FromContext(ctx)
	log := fc.With().Str("deal_id", dealID).Logger()
	return WithContext(ctx, log)
}

// FromContext retrieves the context logger, or the default process logger
// when none was attached.
func FromContext(ctx context.Context) zerolog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return log
	}
	return New()
}
