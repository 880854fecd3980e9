// File: internal/infra/logging/logging.go
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"edu-access-core/internal/config"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var base zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		base = zerolog.New(out).With().Timestamp().Logger()
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	if cfg.Sampling && !dev {
		// keep 1 of every 100 events below warn
		sampled := base.Sample(zerolog.LevelSampler{
			TraceSampler: &zerolog.BasicSampler{N: 100},
			DebugSampler: &zerolog.BasicSampler{N: 100},
			InfoSampler:  &zerolog.BasicSampler{N: 100},
		})
		return &sampled
	}
	return &base
}

type ctxKey string

const (
	ctxTraceID  ctxKey = "trace_id"
	ctxUserID   ctxKey = "user_id"
	ctxDeviceID ctxKey = "device_id"
)

// With attaches the trace, user and device ids carried on ctx.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxTraceID).(string); ok {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		l = l.Str("user_id", v)
	}
	if v, ok := ctx.Value(ctxDeviceID).(string); ok {
		l = l.Str("device_id", v)
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "PaymentUC.Confirm")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// Redact hides identifiers when not in dev; keep short/preview.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

// Helpers to put IDs into context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxUserID, id)
}
func WithDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxDeviceID, id)
}

// TraceID returns the trace id stored on ctx, or "".
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}
