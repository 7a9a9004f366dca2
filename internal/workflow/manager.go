package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"retriever/internal/backend"
	"retriever/internal/config"
	"retriever/internal/jobs"
	"retriever/internal/logging"
	"retriever/internal/validation"
)

// Manager coordinates job submission and the worker pool.
type Manager struct {
	cfg      *config.Config
	store    *jobs.Store
	registry *backend.Registry
	health   *backend.HealthTracker
	pipeline *validation.Pipeline
	logger   *slog.Logger
	now      func() time.Time

	workers          int
	pollInterval     time.Duration
	callTimeout      time.Duration
	retryDelay       time.Duration
	progressInterval time.Duration
	probeInterval    time.Duration

	wake chan struct{}

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	active    map[string]context.CancelCauseFunc
	cancelled map[string]bool
	exhausted map[string]time.Time
	lastErr   error
	lastJob   *jobs.Job
}

// Dependencies are the collaborators a Manager drives.
type Dependencies struct {
	Store    *jobs.Store
	Registry *backend.Registry
	Health   *backend.HealthTracker
	// Pipeline is shared with the API so the validation cap spans both.
	Pipeline *validation.Pipeline
	Logger   *slog.Logger
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithClock replaces the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithProbeInterval sets how often backend health checks rerun while the
// manager is started. Zero disables periodic probes.
func WithProbeInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.probeInterval = d }
}

// WithCallTimeout overrides the hard limit on one adapter call.
func WithCallTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.callTimeout = d }
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, deps Dependencies, opts ...ManagerOption) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	registry := deps.Registry
	if registry == nil {
		registry, _ = backend.NewRegistry()
	}
	health := deps.Health
	if health == nil {
		health = backend.NewHealthTracker(registry.Names()...)
	}
	pipeline := deps.Pipeline
	if pipeline == nil {
		pipeline = validation.New(cfg.Validation.MaxInFlight, cfg.ValidationTimeout(), logger)
	}

	m := &Manager{
		cfg:              cfg,
		store:            deps.Store,
		registry:         registry,
		health:           health,
		pipeline:         pipeline,
		logger:           logging.NewComponentLogger(logger, "workflow"),
		now:              time.Now,
		workers:          cfg.Workflow.Workers,
		pollInterval:     cfg.PollInterval(),
		callTimeout:      cfg.CallTimeout(),
		retryDelay:       cfg.RetryDelay(),
		progressInterval: cfg.ProgressInterval(),
		probeInterval:    cfg.RecoveryWindow(),
		wake:             make(chan struct{}, 1),
		active:           make(map[string]context.CancelCauseFunc),
		cancelled:        make(map[string]bool),
		exhausted:        make(map[string]time.Time),
	}
	if m.workers <= 0 {
		m.workers = 1
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 200 * time.Millisecond
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry exposes the adapter registry.
func (m *Manager) Registry() *backend.Registry { return m.registry }

// Health exposes the backend health tracker.
func (m *Manager) Health() *backend.HealthTracker { return m.health }

// Pipeline exposes the shared validation pipeline.
func (m *Manager) Pipeline() *validation.Pipeline { return m.pipeline }

// signal wakes one idle worker without blocking.
func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
