package workflow

import (
	"context"
	"slices"

	"retriever/internal/backend"
	"retriever/internal/jobs"
	"retriever/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool                      `json:"running"`
	Workers    int                       `json:"workers"`
	LastError  string                    `json:"last_error,omitempty"`
	LastJob    *jobs.Job                 `json:"last_job,omitempty"`
	JobStats   map[jobs.State]int        `json:"job_stats"`
	Backends   map[string]backend.Health `json:"backends"`
	Exhausted  []string                  `json:"exhausted,omitempty"`
	ActiveJobs int                       `json:"active_jobs"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.Lock()
	summary := StatusSummary{
		Running:    m.running,
		Workers:    m.workers,
		LastJob:    m.lastJob.Clone(),
		ActiveJobs: len(m.active),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	for name := range m.exhausted {
		summary.Exhausted = append(summary.Exhausted, name)
	}
	m.mu.Unlock()
	slices.Sort(summary.Exhausted)

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
	}
	summary.JobStats = stats
	summary.Backends = m.health.Snapshot()
	return summary
}
