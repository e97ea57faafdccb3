// Package logger builds the service's zap logger and carries it through
// contexts. Domain field helpers keep key names consistent across packages.
package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the encoder.
type Format string

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
	// FormatConsole writes human readable lines.
	FormatConsole Format = "console"
)

// Options configures the logger.
type Options struct {
	Level       string
	Format      Format
	Development bool
	// Service is attached to every entry when set.
	Service string
}

// DefaultOptions returns sensible defaults for the logger.
func DefaultOptions() Options {
	return Options{
		Level:  "info",
		Format: FormatJSON,
	}
}

// ParseLevel parses a level name; unknown names fall back to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// New creates a zap logger from options.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch opts.Format {
	case FormatConsole:
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case FormatJSON, "":
		cfg.Encoding = "json"
	default:
		return nil, fmt.Errorf("logger: unknown format %q", opts.Format)
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: build: %w", err)
	}
	if opts.Service != "" {
		l = l.With(zap.String("service", opts.Service))
	}
	return l, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// RequestIDKey is a common field key for request tracing.
const RequestIDKey = "request_id"

// Domain field helpers.
func CourseID(id string) zap.Field    { return zap.String("course_id", id) }
func TicketID(id string) zap.Field    { return zap.String("ticket_id", id) }
func GroupID(id string) zap.Field     { return zap.String("group_id", id) }
func UserID(id string) zap.Field      { return zap.String("user_id", id) }
func RequestID(id string) zap.Field   { return zap.String(RequestIDKey, id) }
func Component(name string) zap.Field { return zap.String("component", name) }
func Operation(name string) zap.Field { return zap.String("operation", name) }
func Latency(d time.Duration) zap.Field {
	return zap.Duration("latency", d)
}
