package workflow

import (
	"context"
	"fmt"

	"retriever/internal/jobs"
	"retriever/internal/services"
)

// Request is a job submission.
type Request struct {
	Kind   jobs.Kind   `json:"kind"`
	Target jobs.Target `json:"target"`

	// Preference overrides the configured backend order for this job.
	Preference []string `json:"backend_preference,omitempty"`
}

// ErrInvalidRequest marks submissions that can never run, such as a download
// without a reference. It carries the internal kind.
var ErrInvalidRequest = fmt.Errorf("invalid request: %w", services.ErrInternal)

// errCancelRequested is the cancellation cause for operator cancels, which
// tells them apart from daemon shutdown.
var errCancelRequested = fmt.Errorf("cancel requested: %w", context.Canceled)

// Cancel points recorded when cancellation lands outside an adapter.
const (
	pointBeforeStart     = "before start"
	pointBetweenAttempts = "between attempts"
)

func (r Request) validate() error {
	switch r.Kind {
	case jobs.KindSearch:
		if r.Target.Query == "" {
			return fmt.Errorf("%w: search needs a query", ErrInvalidRequest)
		}
	case jobs.KindDownload, jobs.KindSave, jobs.KindValidate:
		if len(r.Target.AllRefs()) == 0 {
			return fmt.Errorf("%w: %s needs at least one ref", ErrInvalidRequest, r.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
	return nil
}
