package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"retriever/internal/backend"
	"retriever/internal/backend/backendtest"
	"retriever/internal/config"
	"retriever/internal/daemon"
	"retriever/internal/jobs"
	"retriever/internal/testsupport"
	"retriever/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *jobs.Store
	daemon     *daemon.Daemon
	configPath string
	apiAddr    string
	qobuz      *backendtest.Fake
	quark      *backendtest.Fake
}

func setupCLITestEnv(t *testing.T, adapters ...backend.Adapter) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Workflow.RetryDelay = 0
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{cfg: cfg, configPath: configPath}
	if len(adapters) == 0 {
		env.qobuz = backendtest.New("qobuz")
		env.qobuz.FetchFunc = backendtest.FetchOK()
		env.quark = backendtest.New("quark")
		env.quark.SearchFunc = func(context.Context, backend.Query) (backend.Iterator, error) {
			return backend.NewSliceIterator([]jobs.Candidate{
				{ID: "s1", Backend: "quark", Title: "Blue Train", URL: "https://pan.quark.cn/s/s1"},
				{ID: "s2", Backend: "quark", Title: "Giant Steps", URL: "https://pan.quark.cn/s/s2"},
			}), nil
		}
		env.quark.ValidateFunc = backendtest.ValidateStatuses(map[string]jobs.ValidationStatus{"s2": jobs.ValidationExpired})
		adapters = []backend.Adapter{env.qobuz, env.quark}
	}

	env.store = testsupport.MustOpenStore(t, cfg)
	registry, err := backend.NewRegistry(adapters...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	mgr := workflow.NewManager(cfg, workflow.Dependencies{Store: env.store, Registry: registry}, workflow.WithProbeInterval(0))
	d, err := daemon.New(cfg, env.store, nil, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)
	env.daemon = d
	env.apiAddr = d.APIAddress()
	return env
}

// run executes the CLI against the test daemon and returns its exit code.
func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	flags := []string{"--config", e.configPath, "--api", e.apiAddr}
	return runCLI(t, append(flags, args...))
}

func runCLI(t *testing.T, args []string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\nlog_dir = %q\ndownload_dir = %q\n\n[api]\nbind = %q\n\n[workflow]\nretry_delay = 0\n",
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.DownloadDir,
		cfg.API.Bind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
