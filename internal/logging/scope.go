package logging

import (
	"context"
	"log/slog"

	"retriever/internal/services"
)

// ScopeAttrs converts the call scope on ctx into log fields.
func ScopeAttrs(ctx context.Context) []Attr {
	scope := services.ScopeFrom(ctx)
	pairs := [...]struct{ key, value string }{
		{FieldJobID, scope.JobID},
		{FieldKind, scope.Kind},
		{FieldBackend, scope.Backend},
		{FieldCorrelationID, scope.RequestID},
	}
	var attrs []Attr
	for _, p := range pairs {
		if p.value != "" {
			attrs = append(attrs, slog.String(p.key, p.value))
		}
	}
	return attrs
}

// WithContext returns logger tagged with the call scope carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	attrs := ScopeAttrs(ctx)
	if len(attrs) == 0 {
		return logger
	}
	return slog.New(logger.Handler().WithAttrs(attrs))
}
