package logging

import (
	"context"
	"log/slog"
	"time"

	"retriever/internal/services"
)

// Structured field names shared by every component.
const (
	FieldComponent     = "component"
	FieldJobID         = "job_id"
	FieldBackend       = "backend"
	FieldKind          = "kind"
	FieldAttempt       = "attempt"
	FieldCorrelationID = "correlation_id"
	// FieldEventType names the lifecycle event a line records.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step.
	FieldErrorHint = "error_hint"
	FieldErrorKind = "error_kind"
)

type Attr = slog.Attr

func String(key, value string) Attr { return slog.String(key, value) }
func Int(key string, value int) Attr { return slog.Int(key, value) }
func Bool(key string, value bool) Attr { return slog.Bool(key, value) }
func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }
func Any(key string, value any) Attr { return slog.Any(key, value) }

func Event(name string) Attr { return slog.String(FieldEventType, name) }
func Hint(text string) Attr { return slog.String(FieldErrorHint, text) }
func JobID(id string) Attr { return slog.String(FieldJobID, id) }
func Backend(name string) Attr { return slog.String(FieldBackend, name) }
func Attempt(number int) Attr { return slog.Int(FieldAttempt, number) }
func Component(name string) Attr { return slog.String(FieldComponent, name) }
func ErrorKind(kind string) Attr { return slog.String(FieldErrorKind, kind) }
func Correlation(id string) Attr { return slog.String(FieldCorrelationID, id) }

// Error records err under "error". A nil err is logged as "<nil>".
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Problem logs a failure tagged with event, the error and its taxonomy kind.
// When attrs carry no hint the kind's default hint is added.
func Problem(ctx context.Context, logger *slog.Logger, level slog.Level, event, msg string, err error, attrs ...Attr) {
	if logger == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	kind := services.KindOf(err)
	out := make([]Attr, 0, len(attrs)+4)
	out = append(out, Event(event))
	out = append(out, attrs...)
	if err != nil {
		out = append(out, ErrorKind(string(kind)), Error(err))
	}
	if !hasKey(attrs, FieldErrorHint) {
		hint := services.DefaultHint(kind)
		if err == nil || hint == "" {
			hint = "check the daemon log"
		}
		out = append(out, Hint(hint))
	}
	logger.LogAttrs(ctx, level, msg, out...)
}

func hasKey(attrs []Attr, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

// NewNop returns a logger that drops everything.
func NewNop() *slog.Logger { return slog.New(discard{}) }

// NewComponentLogger tags logger with component. A nil logger becomes a nop.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(Component(component))
}

type discard struct{}

func (discard) Enabled(context.Context, slog.Level) bool { return false }
func (discard) Handle(context.Context, slog.Record) error { return nil }
func (d discard) WithAttrs([]slog.Attr) slog.Handler { return d }
func (d discard) WithGroup(string) slog.Handler { return d }
