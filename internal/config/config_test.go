package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"retriever/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "retriever")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "jobs.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.API.Bind != "127.0.0.1:7489" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Qobuz.DownloadDir != filepath.Join(tempHome, "Music", "retriever", "qobuz") {
		t.Fatalf("unexpected qobuz download dir: %q", cfg.Qobuz.DownloadDir)
	}
	if got := cfg.Preference("download"); len(got) != 2 || got[0] != "qobuz" || got[1] != "tidal" {
		t.Fatalf("unexpected download preference: %v", got)
	}
	if cfg.Workflow.Workers != config.Default().Workflow.Workers {
		t.Fatalf("unexpected worker count: %d", cfg.Workflow.Workers)
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
state_dir = "~/state"
download_dir = "~/downloads"

[workflow]
workers = 4
call_timeout = 60

[policy.preferences]
fetch = ["TIDAL", "qobuz", "tidal"]

[tidal]
quality = "HiFi"

[logging]
format = "JSON"
level = "debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected explicit config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, ".local", "share", "retriever", "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Tidal.DownloadDir != filepath.Join(tempHome, "downloads", "tidal") {
		t.Fatalf("unexpected tidal dir: %q", cfg.Tidal.DownloadDir)
	}
	if cfg.Workflow.Workers != 4 || cfg.CallTimeout().Seconds() != 60 {
		t.Fatalf("unexpected workflow: %+v", cfg.Workflow)
	}
	got := cfg.Preference("download")
	if len(got) < 2 || got[0] != "tidal" || got[1] != "qobuz" {
		t.Fatalf("expected fetch alias folded into download with dedupe, got %v", got)
	}
	if cfg.Tidal.Quality != "high" {
		t.Fatalf("expected HiFi to map to high, got %q", cfg.Tidal.Quality)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("QOBUZ_QUALITY", "6")
	t.Setenv("TIDAL_QUALITY", "master")
	t.Setenv("RETRIEVER_API_BIND", "127.0.0.1:9999")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Qobuz.Quality != 6 {
		t.Fatalf("expected qobuz quality from env, got %d", cfg.Qobuz.Quality)
	}
	if cfg.Tidal.Quality != "master" {
		t.Fatalf("expected tidal quality from env, got %q", cfg.Tidal.Quality)
	}
	if cfg.API.Bind != "127.0.0.1:9999" {
		t.Fatalf("expected api bind from env, got %q", cfg.API.Bind)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "zero workers",
			mutate:  func(c *config.Config) { c.Workflow.Workers = 0 },
			wantErr: "workflow.workers must be positive",
		},
		{
			name:    "zero validation timeout",
			mutate:  func(c *config.Config) { c.Validation.Timeout = 0 },
			wantErr: "validation.timeout must be positive",
		},
		{
			name: "unknown kind",
			mutate: func(c *config.Config) {
				c.Policy.Preferences["stream"] = []string{"qobuz"}
			},
			wantErr: "unknown job kind",
		},
		{
			name:    "bad qobuz quality",
			mutate:  func(c *config.Config) { c.Qobuz.Quality = 9 },
			wantErr: "qobuz.quality",
		},
		{
			name: "no backends",
			mutate: func(c *config.Config) {
				c.Qobuz.Enabled = false
				c.Tidal.Enabled = false
				c.Quark.Enabled = false
			},
			wantErr: "at least one backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded map[string]any
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}
