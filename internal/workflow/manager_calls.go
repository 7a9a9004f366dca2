package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"retriever/internal/backend"
	"retriever/internal/jobs"
	"retriever/internal/logging"
	"retriever/internal/services"
)

const defaultSearchLimit = 30

// invoke dispatches the job kind to the matching adapter interface.
func (r *jobRun) invoke(ctx context.Context, adapter backend.Adapter, logger *slog.Logger) (jobs.Result, error) {
	target := r.job.Target
	switch r.job.Kind {
	case jobs.KindSearch:
		return r.search(ctx, adapter, target, logger)
	case jobs.KindValidate:
		return r.validateRefs(ctx, adapter.(backend.Validator), target)
	case jobs.KindDownload:
		fetcher := adapter.(backend.Fetcher)
		return r.eachRef(ctx, adapter, target, logger, func(ctx context.Context, i, total int, ref backend.CandidateRef) (jobs.Result, error) {
			return fetcher.Fetch(ctx, ref, target.Destination, r.progressFor(i, total))
		})
	case jobs.KindSave:
		saver := adapter.(backend.Saver)
		return r.eachRef(ctx, adapter, target, logger, func(ctx context.Context, _, _ int, ref backend.CandidateRef) (jobs.Result, error) {
			handoff, err := saver.Save(ctx, ref)
			if err != nil {
				return jobs.Result{}, err
			}
			return jobs.Result{Handoffs: []jobs.Handoff{handoff}, Count: 1}, nil
		})
	default:
		return jobs.Result{}, services.Wrap(services.ErrCapabilityMismatch, adapter.Name(), string(r.job.Kind), "unsupported job kind", nil)
	}
}

func (r *jobRun) search(ctx context.Context, adapter backend.Adapter, target jobs.Target, logger *slog.Logger) (jobs.Result, error) {
	searcher := adapter.(backend.Searcher)
	limit := r.m.cfg.Workflow.SearchLimit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query := backend.QueryFromTarget(target, limit)
	candidates, err := retryCall(ctx, r, logger, func(ctx context.Context) ([]jobs.Candidate, error) {
		it, err := searcher.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		return backend.Drain(ctx, it, query.Limit)
	})
	if err != nil {
		return jobs.Result{}, err
	}
	if target.Validate {
		return r.filterValid(ctx, adapter, target, candidates, logger)
	}
	r.progress(jobs.Progress{Percent: 100, ItemsDone: len(candidates), ItemsTotal: len(candidates), Message: fmt.Sprintf("%d candidates", len(candidates))})
	return jobs.Result{Candidates: candidates, Count: len(candidates)}, nil
}

// filterValid validates search candidates and keeps only the valid ones.
// Candidates from a backend that cannot validate are returned unchecked.
func (r *jobRun) filterValid(ctx context.Context, adapter backend.Adapter, target jobs.Target, candidates []jobs.Candidate, logger *slog.Logger) (jobs.Result, error) {
	validator, ok := adapter.(backend.Validator)
	if !ok || !backend.Supports(adapter, jobs.KindValidate) {
		logger.Debug("backend cannot validate; returning unchecked candidates", logging.Int("candidates", len(candidates)))
		return jobs.Result{Candidates: candidates, Count: len(candidates)}, nil
	}
	refs := make([]backend.CandidateRef, len(candidates))
	for i, c := range candidates {
		refs[i] = backend.RefFromCandidate(target, c)
	}
	batch := r.m.pipeline.Run(ctx, validator, refs)
	if err := backend.Checkpoint(ctx, "candidate validation"); err != nil {
		return jobs.Result{}, err
	}
	valid := make([]jobs.Candidate, 0, batch.Summary.Valid)
	for i, res := range batch.Results {
		if res.Status == jobs.ValidationValid {
			valid = append(valid, candidates[i])
		}
	}
	summary := batch.Summary
	r.progress(jobs.Progress{Percent: 100, ItemsDone: summary.Total, ItemsTotal: summary.Total, Message: fmt.Sprintf("%d of %d candidates valid", summary.Valid, summary.Total)})
	return jobs.Result{Candidates: valid, Validations: batch.Results, Summary: &summary, Count: len(valid)}, nil
}

// validateRefs runs the shared pipeline. Validation statuses never fail the
// job; they are the result.
func (r *jobRun) validateRefs(ctx context.Context, validator backend.Validator, target jobs.Target) (jobs.Result, error) {
	batch := r.m.pipeline.Run(ctx, validator, candidateRefs(target))
	if err := backend.Checkpoint(ctx, "validation batch"); err != nil {
		return jobs.Result{}, err
	}
	summary := batch.Summary
	r.progress(jobs.Progress{Percent: 100, ItemsDone: summary.Total, ItemsTotal: summary.Total, Message: fmt.Sprintf("%d of %d valid", summary.Valid, summary.Total)})
	return jobs.Result{Validations: batch.Results, Summary: &summary, Count: summary.Valid}, nil
}

type refOp func(ctx context.Context, index, total int, ref backend.CandidateRef) (jobs.Result, error)

// eachRef runs op for every ref not already finished on an earlier backend.
func (r *jobRun) eachRef(ctx context.Context, adapter backend.Adapter, target jobs.Target, logger *slog.Logger, op refOp) (jobs.Result, error) {
	refs := target.AllRefs()
	total := len(refs)
	for i, raw := range refs {
		if r.done[i] {
			continue
		}
		if err := backend.Checkpoint(ctx, fmt.Sprintf("before ref %d/%d", i+1, total)); err != nil {
			return jobs.Result{}, err
		}
		ref := backend.RefFromTarget(target, raw)
		if target.Validate {
			if err := r.precheck(ctx, adapter, ref, logger); err != nil {
				return jobs.Result{}, err
			}
		}
		res, err := retryCall(ctx, r, logger, func(ctx context.Context) (jobs.Result, error) {
			return op(ctx, i, total, ref)
		})
		if err != nil {
			return jobs.Result{}, err
		}
		r.done[i] = true
		r.partial.Merge(res)
		r.progress(jobs.Progress{
			Percent:    float64(len(r.done)) / float64(total) * 100,
			BytesDone:  r.partial.Bytes,
			ItemsDone:  len(r.done),
			ItemsTotal: total,
			Message:    fmt.Sprintf("%d of %d refs done", len(r.done), total),
		})
	}
	return r.partial, nil
}

// precheck validates ref before committing to it. Adapters without a
// validator are trusted.
func (r *jobRun) precheck(ctx context.Context, adapter backend.Adapter, ref backend.CandidateRef, logger *slog.Logger) error {
	validator, ok := adapter.(backend.Validator)
	if !ok || !backend.Supports(adapter, jobs.KindValidate) {
		logger.Debug("backend cannot validate; skipping pre-check", logging.String("ref", ref.ID))
		return nil
	}
	result := r.m.pipeline.Run(ctx, validator, []backend.CandidateRef{ref}).Results[0]
	if err := backend.Checkpoint(ctx, "validation"); err != nil {
		return err
	}
	return validationError(adapter.Name(), ref.ID, result)
}

// validationError maps a non-valid status to the error kind that drives
// fallback.
func validationError(name, id string, result jobs.ValidationResult) error {
	message, _ := result.Detail["message"].(string)
	switch result.Status {
	case jobs.ValidationValid:
		return nil
	case jobs.ValidationExpired:
		return services.Wrap(services.ErrExpired, name, "validate", id+" has expired", nil)
	case jobs.ValidationNotFound:
		return services.Wrap(services.ErrNotFound, name, "validate", id+" does not exist", nil)
	case jobs.ValidationPasswordRequired:
		return services.WithHint(
			services.Wrap(services.ErrAuth, name, "validate", id+" needs a passcode", nil),
			"resubmit with the share passcode",
		)
	default:
		if message == "" {
			message = "validation failed"
		}
		return services.Wrap(services.ErrNetwork, name, "validate", id+": "+message, nil)
	}
}

// retryCall runs fn under the per-call timeout and retries once on the same
// backend after a network failure. Other kinds return at once.
func retryCall[T any](ctx context.Context, r *jobRun, logger *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	name := services.ScopeFrom(ctx).Backend
	timeout := r.m.callTimeout
	op := func() (T, error) {
		var (
			callCtx context.Context
			cancel  context.CancelFunc
		)
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		} else {
			callCtx, cancel = context.WithCancel(ctx)
		}
		defer cancel()

		value, err := fn(callCtx)
		if err == nil {
			return value, nil
		}
		if ctx.Err() != nil {
			return value, backoff.Permanent(err)
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && services.KindOf(err) != services.KindNetwork {
			err = services.Wrap(services.ErrNetwork, name, "call", fmt.Sprintf("no answer within %s", timeout), err)
		}
		if services.KindOf(err) != services.KindNetwork {
			return value, backoff.Permanent(err)
		}
		return value, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.m.retryDelay)),
		backoff.WithMaxTries(2),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("retrying backend call after network error",
				logging.Event("attempt_retry"),
				logging.Duration("retry_in", next),
				logging.Error(err),
			)
		}),
	)
}
