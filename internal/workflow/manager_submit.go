package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retriever/internal/jobs"
	"retriever/internal/logging"
	"retriever/internal/metrics"
	"retriever/internal/policy"
)

// Submit orders the candidate backends, persists a queued job and returns
// without waiting for it to run. A capability mismatch fails here and no job
// is created.
func (m *Manager) Submit(ctx context.Context, req Request) (*jobs.Job, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	candidates, err := m.order(req.Kind, req.Preference)
	if err != nil {
		return nil, err
	}
	job := jobs.New(req.Kind, req.Target, candidates, m.now())
	if err := m.store.Create(ctx, job); err != nil {
		return nil, err
	}
	metrics.JobsSubmitted.WithLabelValues(string(job.Kind)).Inc()
	m.logger.Info("job submitted",
		logging.Event("job_submitted"),
		logging.JobID(job.ID),
		logging.String("kind", string(job.Kind)),
		logging.String("candidates", strings.Join(candidates, ",")),
	)
	m.signal()
	return job.Clone(), nil
}

// Get returns the stored job.
func (m *Manager) Get(ctx context.Context, id string) (*jobs.Job, error) {
	return m.store.Get(ctx, id)
}

// Wait polls the store until the job reaches a terminal state.
func (m *Manager) Wait(ctx context.Context, id string, interval time.Duration) (*jobs.Job, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.State.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel requests cancellation. Queued jobs are cancelled at once; running
// jobs stop at their next checkpoint. It reports false for terminal jobs.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if job.State == jobs.StateQueued {
		ok, err := m.store.CancelQueued(ctx, id, pointBeforeStart)
		if err != nil {
			return false, err
		}
		if ok {
			metrics.JobsFinished.WithLabelValues(string(job.Kind), string(jobs.StateCancelled)).Inc()
			m.logger.Info("queued job cancelled",
				logging.Event("job_cancelled"),
				logging.JobID(id),
			)
			return true, nil
		}
		// A worker claimed it in the meantime.
		if job, err = m.store.Get(ctx, id); err != nil {
			return false, err
		}
	}
	if job.State != jobs.StateRunning {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.active[id]; ok {
		cancel(errCancelRequested)
	} else {
		// Settle persists before unregistering, so a job no longer running
		// here has finished and must not leave a flag behind.
		current, err := m.store.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if current.State != jobs.StateRunning {
			return false, nil
		}
		m.cancelled[id] = true
	}
	m.logger.Info("running job cancel requested",
		logging.Event("job_cancel_requested"),
		logging.JobID(id),
	)
	return true, nil
}

// Retry moves a failed job back to queued, re-ordering its backends. The
// attempt history is kept.
func (m *Manager) Retry(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State != jobs.StateFailed {
		return nil, fmt.Errorf("%w: only failed jobs can be retried, job %s is %s", jobs.ErrInvalidTransition, id, job.State)
	}
	candidates, err := m.order(job.Kind, job.Candidates)
	if err != nil {
		return nil, err
	}
	if err := job.Transition(jobs.StateQueued, m.now()); err != nil {
		return nil, err
	}
	job.Candidates = candidates
	job.Progress = jobs.Progress{}
	m.mu.Lock()
	delete(m.cancelled, id)
	m.mu.Unlock()
	if err := m.store.Save(ctx, job); err != nil {
		return nil, err
	}
	m.logger.Info("job requeued",
		logging.Event("job_retried"),
		logging.JobID(id),
		logging.Int("attempts", len(job.Attempts)),
	)
	m.signal()
	return job.Clone(), nil
}

// Purge deletes a terminal job.
func (m *Manager) Purge(ctx context.Context, id string) error {
	return m.store.Purge(ctx, id)
}

// PurgeFinished deletes terminal jobs whose last update is older than age.
func (m *Manager) PurgeFinished(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, fmt.Errorf("%w: purge age must be positive", ErrInvalidRequest)
	}
	removed, err := m.store.PurgeFinishedBefore(ctx, m.now().Add(-age))
	if err != nil {
		return 0, err
	}
	m.logger.Info("finished jobs purged",
		logging.Event("jobs_purged"),
		logging.Duration("older_than", age),
		logging.Int("count", int(removed)),
	)
	return removed, nil
}

// Recover fails jobs left queued or running by a previous daemon.
func (m *Manager) Recover(ctx context.Context) ([]*jobs.Job, error) {
	recovered, err := m.store.RecoverInterrupted(ctx)
	for _, job := range recovered {
		m.logger.Warn("interrupted job marked failed",
			logging.Event("job_recovered"),
			logging.JobID(job.ID),
			logging.String("kind", string(job.Kind)),
			logging.Hint(jobs.RecoverHint),
		)
		metrics.JobsFinished.WithLabelValues(string(job.Kind), string(jobs.StateFailed)).Inc()
	}
	return recovered, err
}

// Order returns the backends a job of kind would walk right now.
func (m *Manager) Order(kind jobs.Kind, preference []string) ([]string, error) {
	return m.order(kind, preference)
}

func (m *Manager) order(kind jobs.Kind, preference []string) ([]string, error) {
	return policy.Order(policy.Input{
		Kind:           kind,
		Preference:     preference,
		Default:        m.cfg.Preference(string(kind)),
		AppendUnlisted: m.cfg.Policy.AppendUnlisted,
		Capable:        m.registry.Capable(kind),
		Health:         m.health.Snapshot(),
		Exhausted:      m.exhaustedSet(),
		Now:            m.now(),
		Window:         m.cfg.RecoveryWindow(),
	})
}

// Exhausted lists backends that hit a quota limit this session.
func (m *Manager) Exhausted() map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time, len(m.exhausted))
	for name, at := range m.exhausted {
		out[name] = at
	}
	return out
}

func (m *Manager) exhaustedSet() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.exhausted))
	for name := range m.exhausted {
		out[name] = true
	}
	return out
}

func (m *Manager) markExhausted(name string) {
	m.mu.Lock()
	if _, ok := m.exhausted[name]; !ok {
		m.exhausted[name] = m.now().UTC()
	}
	m.mu.Unlock()
}

func isCancelRequest(err error) bool {
	return errors.Is(err, errCancelRequested)
}
