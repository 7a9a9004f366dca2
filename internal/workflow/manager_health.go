package workflow

import (
	"context"
	"time"

	"retriever/internal/backend"
	"retriever/internal/logging"
)

const probeTimeout = 20 * time.Second

// ProbeBackends runs every adapter health check and records the results.
// Adapters without a health check keep their observed health.
func (m *Manager) ProbeBackends(ctx context.Context) map[string]backend.Health {
	for _, name := range m.registry.Names() {
		adapter, ok := m.registry.Get(name)
		if !ok {
			continue
		}
		checker, ok := adapter.(backend.HealthChecker)
		if !ok {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		h := checker.HealthCheck(probeCtx)
		cancel()
		if h.Name == "" {
			h.Name = name
		}
		now := m.now().UTC()
		if h.Status == backend.HealthAvailable {
			h.LastSuccess = &now
		} else {
			h.LastFailure = &now
		}
		m.health.Set(h)

		if h.Status != backend.HealthAvailable {
			m.logger.Warn("backend health check failed",
				logging.Event("backend_unhealthy"),
				logging.Backend(name),
				logging.String("status", string(h.Status)),
				logging.String("detail", h.Detail),
				logging.Hint("jobs fall back to other backends until this one recovers"),
			)
		} else {
			m.logger.Debug("backend healthy",
				logging.Backend(name),
				logging.String("detail", h.Detail),
			)
		}
	}
	return m.health.Snapshot()
}

func (m *Manager) runHealthProbes(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeBackends(ctx)
		}
	}
}
