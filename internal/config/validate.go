package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// KnownKinds lists the job kinds accepted as policy preference keys.
var KnownKinds = []string{"search", "download", "validate", "save"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validatePolicy(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":           c.Workflow.Workers,
		"workflow.poll_interval":     c.Workflow.PollInterval,
		"workflow.call_timeout":      c.Workflow.CallTimeout,
		"workflow.progress_interval": c.Workflow.ProgressInterval,
		"workflow.search_limit":      c.Workflow.SearchLimit,
	}); err != nil {
		return err
	}
	if c.Workflow.RetryDelay < 0 {
		return errors.New("workflow.retry_delay must not be negative")
	}
	return nil
}

func (c *Config) validateValidation() error {
	return ensurePositiveMap(map[string]int{
		"validation.max_in_flight": c.Validation.MaxInFlight,
		"validation.timeout":       c.Validation.Timeout,
	})
}

func (c *Config) validatePolicy() error {
	for kind := range c.Policy.Preferences {
		if !slices.Contains(KnownKinds, kind) {
			return fmt.Errorf("policy.preferences: unknown job kind %q (expected one of %s)", kind, strings.Join(KnownKinds, ", "))
		}
	}
	if c.Policy.RecoveryWindow < 0 {
		return errors.New("policy.recovery_window must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported level %q", c.Logging.Level)
	}
}

func (c *Config) validateBackends() error {
	if c.Qobuz.Enabled {
		switch c.Qobuz.Quality {
		case 5, 6, 7, 27:
		default:
			return fmt.Errorf("qobuz.quality must be one of 5, 6, 7, 27 (got %d)", c.Qobuz.Quality)
		}
	}
	if c.Tidal.Enabled {
		switch c.Tidal.Quality {
		case "normal", "high", "master":
		default:
			return fmt.Errorf("tidal.quality must be one of normal, high, master (got %q)", c.Tidal.Quality)
		}
	}
	if !c.Qobuz.Enabled && !c.Tidal.Enabled && !c.Quark.Enabled {
		return errors.New("at least one backend (qobuz, tidal, quark) must be enabled")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
