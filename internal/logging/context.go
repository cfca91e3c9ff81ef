package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	archiveIDKey
	processNameKey
)

// WithSessionID returns a context with the session ID set.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// WithArchiveID returns a context with the archive ID set.
func WithArchiveID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, archiveIDKey, id)
}

// WithProcessName returns a context with the process name set.
func WithProcessName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, processNameKey, name)
}

// SessionID extracts the session ID from the context, or "" if absent.
func SessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// ArchiveID extracts the archive ID from the context, or "" if absent.
func ArchiveID(ctx context.Context) string {
	v, _ := ctx.Value(archiveIDKey).(string)
	return v
}

// ProcessName extracts the process name from the context, or "" if absent.
func ProcessName(ctx context.Context) string {
	v, _ := ctx.Value(processNameKey).(string)
	return v
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if sid := SessionID(ctx); sid != "" {
		logger = logger.With(slog.String("session_id", sid))
	}
	if aid := ArchiveID(ctx); aid != "" {
		logger = logger.With(slog.String("archive_id", aid))
	}
	if name := ProcessName(ctx); name != "" {
		logger = logger.With(slog.String("process_name", name))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := SessionID(ctx); v != "" {
		r.AddAttrs(slog.String("session_id", v))
	}
	if v := ArchiveID(ctx); v != "" {
		r.AddAttrs(slog.String("archive_id", v))
	}
	if v := ProcessName(ctx); v != "" {
		r.AddAttrs(slog.String("process_name", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
