package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	callerKey
)

// ServiceName is attached to every log line.
const ServiceName = "golend"

// Config selects the minimum level (debug, info, warn, error) and the
// output format (json or console).
type Config struct {
	Level  string
	Format string
}

func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter builds the service logger on w. Unknown levels fall back to
// info.
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", ServiceName).
		Caller().
		Logger()
}

// ContextWithRequestID stores the request id picked up by WithContext.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithCaller stores the authenticated account address picked up by
// WithContext.
func ContextWithCaller(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, callerKey, address)
}

// WithContext returns base with the request id and caller found in ctx.
func WithContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	c := base.With()
	if id, _ := ctx.Value(requestIDKey).(string); id != "" {
		c = c.Str("request_id", id)
	}
	if caller, _ := ctx.Value(callerKey).(string); caller != "" {
		c = c.Str("account", caller)
	}
	return c.Logger()
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
