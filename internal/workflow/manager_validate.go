package workflow

import (
	"context"
	"fmt"
	"strings"

	"retriever/internal/backend"
	"retriever/internal/jobs"
	"retriever/internal/logging"
	"retriever/internal/services"
	"retriever/internal/validation"
)

// ValidateNow checks the target's refs synchronously, outside the job queue.
// It shares the validation pipeline with validate jobs, so the in-flight cap
// covers both. An empty backend name picks the first backend the policy
// would use for a validate job. It returns the backend that answered.
func (m *Manager) ValidateNow(ctx context.Context, backendName string, target jobs.Target) (validation.Batch, string, error) {
	if len(target.AllRefs()) == 0 {
		return validation.Batch{}, "", fmt.Errorf("%w: validate needs at least one candidate", ErrInvalidRequest)
	}
	name := strings.ToLower(strings.TrimSpace(backendName))
	if name == "" {
		order, err := m.order(jobs.KindValidate, nil)
		if err != nil {
			return validation.Batch{}, "", err
		}
		name = order[0]
	}
	adapter, ok := m.registry.Get(name)
	if !ok {
		return validation.Batch{}, name, services.Wrap(services.ErrNotFound, name, "validate", "backend is not registered", nil)
	}
	validator, ok := adapter.(backend.Validator)
	if !ok || !backend.Supports(adapter, jobs.KindValidate) {
		return validation.Batch{}, name, services.WithHint(
			services.Wrap(services.ErrCapabilityMismatch, name, "validate", "backend cannot validate candidates", nil),
			"pick a backend listed with the validate capability",
		)
	}

	ctx = services.WithBackend(ctx, name)
	batch := m.pipeline.Run(ctx, validator, candidateRefs(target))
	m.logger.Info("candidates validated",
		logging.Event("validation_batch"),
		logging.Backend(name),
		logging.Int("total", batch.Summary.Total),
		logging.Int("valid", batch.Summary.Valid),
		logging.Bool("needs_broader_search", batch.Summary.NeedsBroaderSearch),
	)
	return batch, name, nil
}

func candidateRefs(target jobs.Target) []backend.CandidateRef {
	refs := target.AllRefs()
	out := make([]backend.CandidateRef, len(refs))
	for i, ref := range refs {
		out[i] = backend.RefFromTarget(target, ref)
	}
	return out
}
