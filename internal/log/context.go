package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

type contextKey int

const (
	cycleIDKey contextKey = iota
	requestIDKey
)

// NewID returns a short random identifier for correlating log lines.
func NewID() string {
	return uuid.NewString()[:8]
}

// WithCycleID returns a context carrying a poll cycle identifier.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleID extracts the poll cycle identifier from ctx.
func CycleID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(cycleIDKey).(string)
	return id, ok && id != ""
}

// WithRequestID returns a context carrying an HTTP request identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the HTTP request identifier from ctx.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// ContextHandler wraps a slog.Handler and adds "cycle_id" and "request_id"
// attributes when the record's context carries them.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler creates a context-aware handler wrapping inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := CycleID(ctx); ok {
		r.AddAttrs(slog.String("cycle_id", id))
	}
	if id, ok := RequestID(ctx); ok {
		r.AddAttrs(slog.String("request_id", id))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("context handler: %w", err)
	}
	return nil
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
