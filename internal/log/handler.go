// Package log builds the process slog.Logger.
package log

import (
	"context"
	"log/slog"

	"github.com/ErlanBelekov/voice-scheduler/internal/reqctx"
	"go.opentelemetry.io/otel/trace"
)

// ContextHandler stamps every record with the identifiers carried by its
// context: request_id, the authenticated user_id and, when the request is
// traced, trace_id and span_id.
type ContextHandler struct {
	inner slog.Handler
}

func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(contextAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := reqctx.RequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if uid, ok := reqctx.UserID(ctx); ok {
		attrs = append(attrs, slog.Int64("user_id", uid))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return attrs
}
