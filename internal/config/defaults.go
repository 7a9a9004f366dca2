package config

const (
	defaultConfigPath        = "~/.config/retriever/config.toml"
	defaultStateDir          = "~/.local/share/retriever"
	defaultLogDir            = "~/.local/share/retriever/logs"
	defaultDownloadDir       = "~/Music/retriever"
	defaultAPIBind           = "127.0.0.1:7489"
	defaultWorkers           = 2
	defaultPollInterval      = 5
	defaultCallTimeout       = 1800
	defaultRetryDelay        = 2
	defaultProgressInterval  = 1
	defaultSearchLimit       = 30
	defaultValidationWorkers = 6
	defaultValidationTimeout = 15
	defaultRecoveryWindow    = 600
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultQobuzBinary       = "qobuz-dl"
	defaultQobuzQuality      = 27
	defaultTidalBinary       = "tiddl"
	defaultTidalQuality      = "high"
	defaultPanSouURL         = "https://s.panhunt.com/api"
	defaultQuarkShareURL     = "https://drive-pc.quark.cn/1/clouddrive/share/sharepage"
	defaultQuarkDesktopURL   = "http://localhost:9128"
	defaultQuarkTimeout      = 15
	defaultQuarkHealthTTL    = 86400
	defaultQuarkUserAgent    = "retriever/dev"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			DownloadDir: defaultDownloadDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Workflow: Workflow{
			Workers:          defaultWorkers,
			PollInterval:     defaultPollInterval,
			CallTimeout:      defaultCallTimeout,
			RetryDelay:       defaultRetryDelay,
			ProgressInterval: defaultProgressInterval,
			SearchLimit:      defaultSearchLimit,
		},
		Validation: Validation{
			MaxInFlight: defaultValidationWorkers,
			Timeout:     defaultValidationTimeout,
		},
		Policy: Policy{
			Preferences: map[string][]string{
				"search":   {"quark"},
				"download": {"qobuz", "tidal"},
				"validate": {"quark"},
				"save":     {"quark"},
			},
			AppendUnlisted: true,
			RecoveryWindow: defaultRecoveryWindow,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			JobLog: true,
		},
		Qobuz: Qobuz{
			Enabled: true,
			Binary:  defaultQobuzBinary,
			Quality: defaultQobuzQuality,
		},
		Tidal: Tidal{
			Enabled: true,
			Binary:  defaultTidalBinary,
			Quality: defaultTidalQuality,
		},
		Quark: Quark{
			Enabled:        true,
			PanSouURL:      defaultPanSouURL,
			ShareURL:       defaultQuarkShareURL,
			DesktopURL:     defaultQuarkDesktopURL,
			RequestTimeout: defaultQuarkTimeout,
			HealthTTL:      defaultQuarkHealthTTL,
			UserAgent:      defaultQuarkUserAgent,
		},
	}
}
