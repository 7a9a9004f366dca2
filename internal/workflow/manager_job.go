package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"retriever/internal/backend"
	"retriever/internal/jobs"
	"retriever/internal/logging"
	"retriever/internal/metrics"
	"retriever/internal/services"
)

// jobRun is the worker-side state of one claimed job. Progress callbacks may
// arrive from adapter goroutines, so every job mutation and store write goes
// through mu.
type jobRun struct {
	m       *Manager
	logger  *slog.Logger
	persist context.Context

	mu       sync.Mutex
	job      *jobs.Job
	lastSave time.Time

	// Refs finished on an earlier backend are not repeated after fallback.
	done    map[int]bool
	partial jobs.Result
}

func (m *Manager) process(ctx context.Context, workerLogger *slog.Logger, job *jobs.Job) {
	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	m.register(job.ID, cancel)
	defer m.unregister(job.ID)

	jobCtx = services.WithScope(jobCtx, services.Scope{
		JobID:     job.ID,
		Kind:      string(job.Kind),
		RequestID: uuid.NewString(),
	})

	logger, closer := m.jobLogger(jobCtx, workerLogger, job)
	defer closer.Close()

	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	run := &jobRun{
		m:       m,
		logger:  logger,
		persist: context.WithoutCancel(jobCtx),
		job:     job,
		done:    make(map[int]bool),
	}
	logger.Info("job started",
		logging.Event("job_started"),
		logging.String("candidates", strings.Join(job.Candidates, ",")),
	)
	started := time.Now()
	result, err := run.execute(jobCtx)
	run.settle(jobCtx, result, err, time.Since(started))
}

// execute walks the candidate backends in order.
func (r *jobRun) execute(ctx context.Context) (jobs.Result, error) {
	candidates := append([]string(nil), r.job.Candidates...)
	if len(candidates) == 0 {
		return jobs.Result{}, services.Wrap(services.ErrCapabilityMismatch, "", string(r.job.Kind), "job has no candidate backends", nil)
	}

	var lastErr error
	for i, name := range candidates {
		point := pointBetweenAttempts
		if i == 0 {
			point = pointBeforeStart
		}
		if err := backend.Checkpoint(ctx, point); err != nil {
			return jobs.Result{}, err
		}

		adapter, ok := r.m.registry.Get(name)
		if !ok || !backend.Supports(adapter, r.job.Kind) {
			lastErr = services.Wrap(services.ErrCapabilityMismatch, name, string(r.job.Kind), "backend is not registered for this job kind", nil)
			r.logger.Warn("skipping candidate backend",
				logging.Backend(name),
				logging.Event("candidate_skipped"),
				logging.Hint("check which backends are enabled"),
			)
			continue
		}

		result, err := r.attempt(ctx, adapter)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return jobs.Result{}, err
		}
		lastErr = err
		kind := services.KindOf(err)
		if !services.Recoverable(kind) {
			return jobs.Result{}, err
		}
		if i < len(candidates)-1 {
			metrics.Fallbacks.WithLabelValues(name, string(kind)).Inc()
			r.logger.Warn("falling back to next backend",
				logging.Event("backend_fallback"),
				logging.Backend(name),
				logging.String("next_backend", candidates[i+1]),
				logging.ErrorKind(string(kind)),
				logging.Error(err),
			)
		}
	}
	return jobs.Result{}, lastErr
}

// attempt runs the job once on adapter, recording the attempt and its
// effect on backend health.
func (r *jobRun) attempt(ctx context.Context, adapter backend.Adapter) (jobs.Result, error) {
	name := adapter.Name()
	r.mu.Lock()
	r.job.BeginAttempt(name, r.m.now())
	r.job.Progress = jobs.Progress{Message: "starting on " + name}
	err := r.saveLocked()
	r.mu.Unlock()
	if err != nil {
		return jobs.Result{}, err
	}

	callCtx := services.WithBackend(ctx, name)
	logger := r.logger.With(
		logging.Backend(name),
		logging.Attempt(len(r.job.Attempts)),
	)
	logger.Info("attempt started", logging.Event("attempt_started"))

	started := time.Now()
	result, err := r.invoke(callCtx, adapter, logger)
	metrics.AttemptDuration.WithLabelValues(name, string(r.job.Kind)).Observe(time.Since(started).Seconds())

	if err == nil {
		r.m.health.Observe(name, nil)
		metrics.Attempts.WithLabelValues(name, string(jobs.OutcomeCompleted), "").Inc()
		logger.Info("attempt succeeded",
			logging.Event("attempt_succeeded"),
			logging.Duration("duration", time.Since(started)),
		)
		return result, nil
	}
	if ctx.Err() != nil {
		return jobs.Result{}, err
	}
	err = storable(name, err)

	kind := services.KindOf(err)
	r.m.health.Observe(name, err)
	if kind == services.KindQuota {
		r.m.markExhausted(name)
	}
	metrics.Attempts.WithLabelValues(name, string(jobs.OutcomeFailed), string(kind)).Inc()
	logger.Warn("attempt failed",
		logging.Event("attempt_failed"),
		logging.ErrorKind(string(kind)),
		logging.Hint(services.Details(err).Hint),
		logging.Error(err),
	)

	r.mu.Lock()
	r.job.EndAttempt(jobs.OutcomeFailed, err, r.m.now())
	saveErr := r.saveLocked()
	r.mu.Unlock()
	if saveErr != nil {
		logger.Error("failed to record attempt", logging.Error(saveErr))
	}
	return jobs.Result{}, err
}

// settle writes the terminal state. A job interrupted by daemon shutdown is
// left running for startup recovery.
func (r *jobRun) settle(ctx context.Context, result jobs.Result, execErr error, elapsed time.Duration) {
	now := r.m.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	job := r.job
	backendName := job.Backend
	var event string
	switch {
	case execErr == nil:
		if err := job.Complete(result, now); err != nil {
			r.logger.Error("cannot complete job", logging.Error(err))
			return
		}
		event = "job_completed"
	case isCancelRequest(context.Cause(ctx)):
		if job.CurrentAttempt() != nil {
			metrics.Attempts.WithLabelValues(backendName, string(jobs.OutcomeCancelled), "").Inc()
		}
		if err := job.Cancel(backend.CancelPoint(execErr, pointBetweenAttempts), now); err != nil {
			r.logger.Error("cannot cancel job", logging.Error(err))
			return
		}
		event = "job_cancelled"
	case ctx.Err() != nil:
		r.logger.Info("job interrupted by shutdown",
			logging.Event("job_interrupted"),
		)
		return
	default:
		execErr = storable(backendName, execErr)
		if err := job.Fail(execErr, now); err != nil {
			r.logger.Error("cannot fail job", logging.Error(err))
			return
		}
		event = "job_failed"
	}

	if err := r.m.store.Save(r.persist, job); err != nil {
		r.m.setLastError(err)
		r.logger.Error("failed to persist terminal job state",
			logging.Error(err),
			logging.Event("job_persist_failed"),
			logging.Hint("check status database access"),
		)
		return
	}
	r.m.setLastJob(job)
	metrics.JobsFinished.WithLabelValues(string(job.Kind), string(job.State)).Inc()

	attrs := []logging.Attr{
		logging.String("state", string(job.State)),
		logging.Int("attempts", len(job.Attempts)),
		logging.Duration("duration", elapsed),
	}
	switch job.State {
	case jobs.StateCompleted:
		attrs = append(attrs, logging.Event(event), logging.Int("count", job.Result.Count))
		r.logger.LogAttrs(ctx, slog.LevelInfo, "job completed", attrs...)
	case jobs.StateCancelled:
		attrs = append(attrs, logging.Event(event), logging.String("cancel_point", job.CancelPoint))
		r.logger.LogAttrs(ctx, slog.LevelInfo, "job cancelled", attrs...)
	default:
		r.m.setLastError(execErr)
		attrs = append(attrs, logging.Hint(job.Error.Hint))
		logging.Problem(ctx, r.logger, slog.LevelError, event, "job failed", execErr, attrs...)
	}
}

// storable turns a cancellation nobody asked for into an internal error, so
// the cancelled kind only ever describes the cancelled state.
func storable(name string, err error) error {
	if services.KindOf(err) != services.KindCancelled {
		return err
	}
	return services.Wrap(services.ErrInternal, name, "call", "cancelled without a cancel request: "+err.Error(), nil)
}

func (r *jobRun) saveLocked() error {
	if err := r.m.store.Save(r.persist, r.job); err != nil {
		return fmt.Errorf("persist job %s: %w", r.job.ID, err)
	}
	r.lastSave = time.Now()
	return nil
}
