package backend

import (
	"context"
	"errors"
	"strings"

	"retriever/internal/services"
)

// Checkpoint returns a cancelled error naming label when ctx was cancelled.
// An expired deadline is reported as a network timeout instead. Adapters call
// it between units of work so cancellation takes effect at a known point.
func Checkpoint(ctx context.Context, label string) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrNetwork, services.ScopeFrom(ctx).Backend, label, "call timed out", ctx.Err())
		}
		return &CancelError{Point: label, Cause: context.Cause(ctx)}
	default:
		return nil
	}
}

// CancelError records where cancellation took effect.
type CancelError struct {
	Point string
	Cause error
}

func (e *CancelError) Error() string {
	if e.Cause != nil && !errors.Is(e.Cause, context.Canceled) {
		return "cancelled at " + e.Point + ": " + e.Cause.Error()
	}
	return "cancelled at " + e.Point
}

// Is makes every CancelError match services.ErrCancelled.
func (e *CancelError) Is(target error) bool {
	return target == services.ErrCancelled
}

func (e *CancelError) Unwrap() error { return e.Cause }

// CancelPoint extracts the cancellation point from err, falling back to
// fallback when err carries none.
func CancelPoint(err error, fallback string) string {
	var cancelErr *CancelError
	if errors.As(err, &cancelErr) && strings.TrimSpace(cancelErr.Point) != "" {
		return cancelErr.Point
	}
	return fallback
}
