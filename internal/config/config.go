package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	DownloadDir string `toml:"download_dir"`
}

// API contains the daemon HTTP listener configuration.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Workflow contains configuration for the worker pool and timing.
type Workflow struct {
	Workers          int `toml:"workers"`
	PollInterval     int `toml:"poll_interval"`
	CallTimeout      int `toml:"call_timeout"`
	RetryDelay       int `toml:"retry_delay"`
	ProgressInterval int `toml:"progress_interval"`
	SearchLimit      int `toml:"search_limit"`
}

// Validation contains configuration for the candidate validation pipeline.
type Validation struct {
	MaxInFlight int `toml:"max_in_flight"`
	Timeout     int `toml:"timeout"`
}

// Policy contains backend ordering preferences used for degradation.
type Policy struct {
	Preferences    map[string][]string `toml:"preferences"`
	AppendUnlisted bool                `toml:"append_unlisted"`
	RecoveryWindow int                 `toml:"recovery_window"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	JobLog bool   `toml:"job_log"`
}

// Qobuz contains configuration for the qobuz-dl backed adapter.
type Qobuz struct {
	Enabled     bool   `toml:"enabled"`
	Binary      string `toml:"binary"`
	Quality     int    `toml:"quality"`
	DownloadDir string `toml:"download_dir"`
}

// Tidal contains configuration for the tiddl backed adapter.
type Tidal struct {
	Enabled     bool   `toml:"enabled"`
	Binary      string `toml:"binary"`
	Quality     string `toml:"quality"`
	DownloadDir string `toml:"download_dir"`
}

// Quark contains configuration for PanSou search and Quark share handling.
type Quark struct {
	Enabled        bool   `toml:"enabled"`
	PanSouURL      string `toml:"pansou_url"`
	ShareURL       string `toml:"share_url"`
	DesktopURL     string `toml:"desktop_url"`
	RequestTimeout int    `toml:"request_timeout"`
	HealthTTL      int    `toml:"health_ttl"`
	UserAgent      string `toml:"user_agent"`
}

// Config is the whole retriever configuration. Durations are stored as
// seconds and read through the accessor methods.
type Config struct {
	Paths      Paths      `toml:"paths"`
	API        API        `toml:"api"`
	Workflow   Workflow   `toml:"workflow"`
	Validation Validation `toml:"validation"`
	Policy     Policy     `toml:"policy"`
	Logging    Logging    `toml:"logging"`
	Qobuz      Qobuz      `toml:"qobuz"`
	Tidal      Tidal      `toml:"tidal"`
	Quark      Quark      `toml:"quark"`
}

// DefaultConfigPath returns the expanded ~/.config/retriever/config.toml.
func DefaultConfigPath() (string, error) {
	return ExpandPath(defaultConfigPath)
}

// Load reads the config at path, or the first existing default location when
// path is empty, over the built-in defaults. It returns the resolved path and
// whether a file was found there. A missing file is not an error.
func Load(path string) (*Config, string, bool, error) {
	resolved, found, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if found {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, found, nil
}

// locate resolves an explicit path as given. Otherwise it tries the user
// config location, then ./retriever.toml, and falls back to the user path.
func locate(explicit string) (string, bool, error) {
	var candidates []string
	if explicit != "" {
		candidates = []string{explicit}
	} else {
		candidates = []string{defaultConfigPath, "retriever.toml"}
	}

	first := ""
	for _, candidate := range candidates {
		path, err := ExpandPath(candidate)
		if err != nil {
			return "", false, err
		}
		if first == "" {
			first = path
		}
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			return path, true, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}
	return first, false, nil
}

// EnsureDirectories creates the state, log and download roots. Per-backend
// download directories are created by the adapters when they first write.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.DownloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) DatabasePath() string { return filepath.Join(c.Paths.StateDir, "jobs.db") }
func (c *Config) LockPath() string { return filepath.Join(c.Paths.StateDir, "retriever.lock") }
func (c *Config) LogPath() string { return filepath.Join(c.Paths.LogDir, "retriever.log") }
func (c *Config) JobLogDir() string { return filepath.Join(c.Paths.LogDir, "jobs") }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// CallTimeout is the hard limit on one adapter call.
func (c *Config) CallTimeout() time.Duration { return seconds(c.Workflow.CallTimeout) }

// RetryDelay is the wait before the single same-backend network retry.
func (c *Config) RetryDelay() time.Duration { return seconds(c.Workflow.RetryDelay) }

func (c *Config) PollInterval() time.Duration { return seconds(c.Workflow.PollInterval) }
func (c *Config) ProgressInterval() time.Duration { return seconds(c.Workflow.ProgressInterval) }
func (c *Config) ValidationTimeout() time.Duration { return seconds(c.Validation.Timeout) }

// RecoveryWindow is how long an unavailable backend is skipped by selection.
func (c *Config) RecoveryWindow() time.Duration { return seconds(c.Policy.RecoveryWindow) }

// Preference returns a copy of the configured backend order for kind.
func (c *Config) Preference(kind string) []string {
	return append([]string(nil), c.Policy.Preferences[kind]...)
}

// ExpandPath resolves a leading ~ and returns a cleaned absolute path.
// An empty value stays empty.
func ExpandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, strings.TrimPrefix(value, "~"))
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
