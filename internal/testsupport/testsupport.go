// Package testsupport builds isolated configs, stores and jobs for tests.
package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"retriever/internal/config"
	"retriever/internal/jobs"
)

// Option adjusts a config produced by NewConfig.
type Option func(t testing.TB, cfg *config.Config)

// NewConfig returns the default config rooted in a fresh temp directory,
// with an ephemeral API port and per-job log files disabled.
func NewConfig(t testing.TB, opts ...Option) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(root, "state")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.DownloadDir = filepath.Join(root, "downloads")
	cfg.Qobuz.DownloadDir = filepath.Join(cfg.Paths.DownloadDir, "qobuz")
	cfg.Tidal.DownloadDir = filepath.Join(cfg.Paths.DownloadDir, "tidal")
	cfg.API.Bind = "127.0.0.1:0"
	cfg.Logging.JobLog = false

	for _, opt := range opts {
		opt(t, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp root behind a NewConfig config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WithWorkers overrides the worker count.
func WithWorkers(n int) Option {
	return func(_ testing.TB, cfg *config.Config) { cfg.Workflow.Workers = n }
}

// WithQuarkEndpoints points the quark adapter at test servers.
func WithQuarkEndpoints(pansou, share, desktop string) Option {
	return func(_ testing.TB, cfg *config.Config) {
		cfg.Quark.PanSouURL = pansou
		cfg.Quark.ShareURL = share
		cfg.Quark.DesktopURL = desktop
	}
}

// WithStubbedBinaries puts no-op executables named names first on PATH for
// the rest of the test. No names stubs both download tools.
func WithStubbedBinaries(names ...string) Option {
	return func(t testing.TB, cfg *config.Config) {
		t.Helper()
		if len(names) == 0 {
			names = []string{cfg.Qobuz.Binary, cfg.Tidal.Binary}
		}
		bin := filepath.Join(BaseDir(cfg), "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", bin, err)
		}
		for _, name := range names {
			path := filepath.Join(bin, name)
			if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", path, err)
			}
		}
		t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// MustOpenStore opens the job store for cfg and closes it at cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()
	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// NewJob persists a queued job and returns it.
func NewJob(t testing.TB, store *jobs.Store, kind jobs.Kind, target jobs.Target, candidates ...string) *jobs.Job {
	t.Helper()
	job := jobs.New(kind, target, candidates, time.Now())
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("create %s job: %v", kind, err)
	}
	return job
}
