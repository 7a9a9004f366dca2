package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"retriever/internal/backend"
	"retriever/internal/backend/qobuz"
	"retriever/internal/backend/quark"
	"retriever/internal/backend/tidal"
	"retriever/internal/config"
	"retriever/internal/daemon"
	"retriever/internal/jobs"
	"retriever/internal/logging"
	"retriever/internal/preflight"
	"retriever/internal/validation"
	"retriever/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the retriever daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogPath()},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("run_id", uuid.NewString()))

	pidPath := filepath.Join(cfg.Paths.StateDir, "retriever.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}

	registry, closers, err := BuildRegistry(cfg, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("build backend registry: %w", err)
	}
	defer closeAll(logger, closers)

	pipeline := validation.New(cfg.Validation.MaxInFlight, cfg.ValidationTimeout(), logger)
	manager := workflow.NewManager(cfg, workflow.Dependencies{
		Store:    store,
		Registry: registry,
		Pipeline: pipeline,
		Logger:   logger,
	})

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	results := preflight.RunAll(signalCtx, cfg)
	d.SetPreflight(results)
	for _, failed := range preflight.Failed(results) {
		logger.Warn("preflight check failed",
			logging.Event("preflight_failed"),
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.Hint("affected backends will be skipped until healthy"),
		)
	}

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.Event("daemon_start_failed"),
			logging.Hint("check the api bind address and state directory access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("retriever daemon shutting down", logging.Event("daemon_shutdown"))
	return nil
}

// BuildRegistry registers every enabled built-in adapter. The returned
// closers release adapter background resources.
func BuildRegistry(cfg *config.Config, logger *slog.Logger) (*backend.Registry, []io.Closer, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is required")
	}
	var (
		adapters []backend.Adapter
		closers  []io.Closer
	)
	if cfg.Qobuz.Enabled {
		adapters = append(adapters, qobuz.New(cfg.Qobuz, qobuz.WithLogger(logger), qobuz.WithTimeout(cfg.CallTimeout())))
	}
	if cfg.Tidal.Enabled {
		adapters = append(adapters, tidal.New(cfg.Tidal, tidal.WithLogger(logger), tidal.WithTimeout(cfg.CallTimeout())))
	}
	if cfg.Quark.Enabled {
		q := quark.New(cfg.Quark, quark.WithLogger(logger))
		adapters = append(adapters, q)
		closers = append(closers, q)
	}
	registry, err := backend.NewRegistry(adapters...)
	if err != nil {
		closeAll(logger, closers)
		return nil, nil, err
	}
	return registry, closers, nil
}

func closeAll(logger *slog.Logger, closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil && logger != nil {
			logger.Warn("close adapter", logging.Error(err))
		}
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
