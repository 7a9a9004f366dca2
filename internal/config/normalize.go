package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizePolicy()
	if err := c.normalizeQobuz(); err != nil {
		return err
	}
	if err := c.normalizeTidal(); err != nil {
		return err
	}
	c.normalizeQuark()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = ExpandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = ExpandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if value, ok := os.LookupEnv("RETRIEVER_API_BIND"); ok && strings.TrimSpace(value) != "" {
		c.API.Bind = strings.TrimSpace(value)
	}
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if value, ok := os.LookupEnv("RETRIEVER_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.API.Token = strings.TrimSpace(value)
	}
}

func (c *Config) normalizePolicy() {
	normalized := make(map[string][]string, len(c.Policy.Preferences))
	var alias []string
	for kind, names := range c.Policy.Preferences {
		key := strings.ToLower(strings.TrimSpace(kind))
		switch key {
		case "":
			continue
		case "fetch":
			alias = names
			continue
		}
		normalized[key] = dedupeNames(names)
	}
	// "fetch" is the legacy spelling of download and wins when both are present.
	if alias != nil {
		normalized["download"] = dedupeNames(alias)
	}
	c.Policy.Preferences = normalized
}

func dedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	ordered := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		ordered = append(ordered, name)
	}
	return ordered
}

func (c *Config) normalizeQobuz() error {
	var err error
	c.Qobuz.Binary = strings.TrimSpace(c.Qobuz.Binary)
	if c.Qobuz.Binary == "" {
		c.Qobuz.Binary = defaultQobuzBinary
	}
	if value, ok := os.LookupEnv("QOBUZ_QUALITY"); ok && strings.TrimSpace(value) != "" {
		quality, convErr := strconv.Atoi(strings.TrimSpace(value))
		if convErr != nil {
			return fmt.Errorf("QOBUZ_QUALITY: %w", convErr)
		}
		c.Qobuz.Quality = quality
	}
	if c.Qobuz.Quality == 0 {
		c.Qobuz.Quality = defaultQobuzQuality
	}
	if strings.TrimSpace(c.Qobuz.DownloadDir) == "" {
		c.Qobuz.DownloadDir = filepath.Join(c.Paths.DownloadDir, "qobuz")
	}
	if c.Qobuz.DownloadDir, err = ExpandPath(c.Qobuz.DownloadDir); err != nil {
		return fmt.Errorf("qobuz.download_dir: %w", err)
	}
	return nil
}

// tidalQualities maps accepted spellings onto the tiddl quality flags.
var tidalQualities = map[string]string{
	"normal": "normal",
	"high":   "high",
	"hifi":   "high",
	"master": "master",
}

func (c *Config) normalizeTidal() error {
	var err error
	c.Tidal.Binary = strings.TrimSpace(c.Tidal.Binary)
	if c.Tidal.Binary == "" {
		c.Tidal.Binary = defaultTidalBinary
	}
	if value, ok := os.LookupEnv("TIDAL_QUALITY"); ok && strings.TrimSpace(value) != "" {
		c.Tidal.Quality = value
	}
	c.Tidal.Quality = strings.ToLower(strings.TrimSpace(c.Tidal.Quality))
	if c.Tidal.Quality == "" {
		c.Tidal.Quality = defaultTidalQuality
	}
	if mapped, ok := tidalQualities[c.Tidal.Quality]; ok {
		c.Tidal.Quality = mapped
	}
	if strings.TrimSpace(c.Tidal.DownloadDir) == "" {
		c.Tidal.DownloadDir = filepath.Join(c.Paths.DownloadDir, "tidal")
	}
	if c.Tidal.DownloadDir, err = ExpandPath(c.Tidal.DownloadDir); err != nil {
		return fmt.Errorf("tidal.download_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeQuark() {
	c.Quark.PanSouURL = strings.TrimRight(strings.TrimSpace(c.Quark.PanSouURL), "/")
	if c.Quark.PanSouURL == "" {
		c.Quark.PanSouURL = defaultPanSouURL
	}
	c.Quark.ShareURL = strings.TrimRight(strings.TrimSpace(c.Quark.ShareURL), "/")
	if c.Quark.ShareURL == "" {
		c.Quark.ShareURL = defaultQuarkShareURL
	}
	c.Quark.DesktopURL = strings.TrimRight(strings.TrimSpace(c.Quark.DesktopURL), "/")
	if c.Quark.DesktopURL == "" {
		c.Quark.DesktopURL = defaultQuarkDesktopURL
	}
	if c.Quark.RequestTimeout <= 0 {
		c.Quark.RequestTimeout = defaultQuarkTimeout
	}
	if c.Quark.HealthTTL <= 0 {
		c.Quark.HealthTTL = defaultQuarkHealthTTL
	}
	c.Quark.UserAgent = strings.TrimSpace(c.Quark.UserAgent)
	if c.Quark.UserAgent == "" {
		c.Quark.UserAgent = defaultQuarkUserAgent
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
