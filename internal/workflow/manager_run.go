package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"retriever/internal/jobs"
	"retriever/internal/logging"
)

const claimErrorBackoff = 2 * time.Second

// Start launches the worker pool and, when configured, the periodic backend
// health probe.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.store == nil {
		m.mu.Unlock()
		return errors.New("workflow store not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	for i := 0; i < m.workers; i++ {
		logger := m.logger.With(logging.String("worker", fmt.Sprintf("w%d", i+1)))
		go m.runWorker(runCtx, logger)
	}
	if m.probeInterval > 0 {
		m.wg.Add(1)
		go m.runHealthProbes(runCtx)
	}
	m.logger.Info("workflow started",
		logging.Event("workflow_started"),
		logging.Int("workers", m.workers),
	)
	return nil
}

// Stop cancels every worker and waits for them to return. Jobs still running
// are left for startup recovery.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether workers are active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) runWorker(ctx context.Context, logger *slog.Logger) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.ClaimNext(ctx)
		if err != nil {
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}
		m.process(ctx, logger, job)
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	if ctx.Err() != nil {
		return
	}
	m.setLastError(err)
	logger.Error("failed to claim next job",
		logging.Error(err),
		logging.Event("job_claim_failed"),
		logging.Hint("check status database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(claimErrorBackoff):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-time.After(m.pollInterval):
	}
}

// register exposes the job's cancel function to Cancel. A cancel that
// arrived between claim and register is applied immediately.
func (m *Manager) register(id string, cancel context.CancelCauseFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[id] = cancel
	if m.cancelled[id] {
		delete(m.cancelled, id)
		cancel(errCancelRequested)
	}
}

func (m *Manager) unregister(id string) {
	m.mu.Lock()
	delete(m.active, id)
	delete(m.cancelled, id)
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *jobs.Job) {
	m.mu.Lock()
	m.lastJob = job.Clone()
	m.mu.Unlock()
}
