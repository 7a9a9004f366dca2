package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"retriever/internal/backend"
	"retriever/internal/jobs"
	"retriever/internal/logging"
	"retriever/internal/metrics"
)

const (
	defaultMaxInFlight = 4
	defaultTimeout     = 15 * time.Second
)

// Detail messages recorded on results the pipeline synthesizes.
const (
	DetailTimeout   = "timeout"
	DetailCancelled = "cancelled"
)

// Pipeline validates candidates with a concurrency cap shared by all callers.
type Pipeline struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Batch is the outcome of one Run.
type Batch struct {
	Results []jobs.ValidationResult `json:"results"`
	Summary jobs.ValidationSummary  `json:"summary"`
}

// New builds a pipeline. Non-positive values fall back to defaults.
func New(maxInFlight int, timeout time.Duration, logger *slog.Logger) *Pipeline {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		sem:     semaphore.NewWeighted(int64(maxInFlight)),
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "validation"),
		now:     time.Now,
	}
}

// Run validates refs with v and returns one result per ref in input order.
// Duplicate refs are validated independently.
func (p *Pipeline) Run(ctx context.Context, v backend.Validator, refs []backend.CandidateRef) Batch {
	results := make([]jobs.ValidationResult, len(refs))
	var group errgroup.Group
	for i, ref := range refs {
		group.Go(func() error {
			results[i] = p.validateOne(ctx, v, ref)
			return nil
		})
	}
	_ = group.Wait()

	batch := Batch{Results: results, Summary: Summarize(results)}
	p.logger.Debug("validation batch finished",
		logging.Event("validation_batch"),
		logging.Backend(v.Name()),
		logging.Int("total", batch.Summary.Total),
		logging.Int("valid", batch.Summary.Valid),
	)
	return batch
}

func (p *Pipeline) validateOne(ctx context.Context, v backend.Validator, ref backend.CandidateRef) (result jobs.ValidationResult) {
	id := ref.ID
	if id == "" {
		id = ref.URL
	}
	defer func() {
		if result.CandidateID == "" {
			result.CandidateID = id
		}
		if result.CheckedAt.IsZero() {
			result.CheckedAt = p.now().UTC()
		}
		metrics.Validations.WithLabelValues(v.Name(), string(result.Status)).Inc()
	}()

	if ctx.Err() != nil {
		return errorResult(id, DetailCancelled)
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return errorResult(id, DetailCancelled)
	}
	metrics.ValidationsInFlight.Inc()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// The slot is held until the validator returns, even after the caller
	// has given up on it.
	done := make(chan jobs.ValidationResult, 1)
	go func() {
		defer p.sem.Release(1)
		defer metrics.ValidationsInFlight.Dec()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Warn("validator panicked",
					logging.Event("validation_panic"),
					logging.Backend(v.Name()),
					logging.String("candidate", id),
					logging.Hint("report the adapter bug"),
					logging.Any("panic", r),
				)
				done <- errorResult(id, fmt.Sprintf("validator panic: %v", r))
			}
		}()
		done <- v.Validate(callCtx, ref)
	}()

	select {
	case res := <-done:
		if res.Status == "" {
			res.Status = jobs.ValidationError
		}
		return res
	case <-callCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return errorResult(id, DetailCancelled)
		}
		return errorResult(id, DetailTimeout)
	}
}

func errorResult(id, message string) jobs.ValidationResult {
	return jobs.ValidationResult{
		CandidateID: id,
		Status:      jobs.ValidationError,
		Detail:      map[string]any{"message": message},
	}
}

// Summarize counts results by status. NeedsBroaderSearch is set when a
// non-empty batch has no valid candidate.
func Summarize(results []jobs.ValidationResult) jobs.ValidationSummary {
	summary := jobs.ValidationSummary{
		Total:    len(results),
		ByStatus: make(map[jobs.ValidationStatus]int),
	}
	for _, r := range results {
		summary.ByStatus[r.Status]++
		if r.Status == jobs.ValidationValid {
			summary.Valid++
		}
	}
	summary.NeedsBroaderSearch = summary.Total > 0 && summary.Valid == 0
	return summary
}
