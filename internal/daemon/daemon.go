package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"retriever/internal/api"
	"retriever/internal/config"
	"retriever/internal/feed"
	"retriever/internal/jobs"
	"retriever/internal/logging"
	"retriever/internal/preflight"
	"retriever/internal/workflow"
)

// Daemon owns the process lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobs.Store
	workflow *workflow.Manager
	feed     *feed.Feed
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	preflight []preflight.Result

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		feed:     feed.New(store, wf.Health(), wf.Registry().Describe()),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, recovers interrupted jobs, probes backend
// health, and launches the workers and the API listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another retriever daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	fail := func(err error) error {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	recovered, err := d.workflow.Recover(runCtx)
	if err != nil {
		return fail(fmt.Errorf("recover interrupted jobs: %w", err))
	}
	if len(recovered) > 0 {
		d.logger.Warn("interrupted jobs marked failed",
			logging.Event("startup_recovery"),
			logging.Int("count", len(recovered)),
			logging.Hint(jobs.RecoverHint),
		)
	}

	d.workflow.ProbeBackends(runCtx)

	if err := d.workflow.Start(runCtx); err != nil {
		return fail(fmt.Errorf("start workflow: %w", err))
	}
	if err := d.api.start(runCtx); err != nil {
		d.workflow.Stop()
		return fail(err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("retriever daemon started",
		logging.Event("daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock. Running
// jobs are left running in the store and recovered on the next start.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("retriever daemon stopped", logging.Event("daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// SetPreflight records the startup readiness checks reported by Status.
func (d *Daemon) SetPreflight(results []preflight.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preflight = append([]preflight.Result(nil), results...)
}

// APIAddress returns the bound listener address, or "" before Start.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Feed returns the read-only status feed.
func (d *Daemon) Feed() *feed.Feed { return d.feed }

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	d.mu.Lock()
	checks := append([]preflight.Result(nil), d.preflight...)
	d.mu.Unlock()
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockPath:     d.lockPath,
		LogPath:      d.cfg.LogPath(),
		Workflow:     d.workflow.Status(ctx),
		Preflight:    checks,
	}
}
