package config

const (
	defaultConfigPath          = "~/.config/agilentuimf/config.toml"
	defaultWorkDir             = "~/.local/share/agilentuimf/work"
	defaultLockDir             = "~/.local/share/agilentuimf/locks"
	defaultLogDir              = "~/.local/share/agilentuimf/logs"
	defaultConverterPath       = "AgilentToUIMFConverter"
	defaultMaxRuntimeMinutes   = 180
	defaultPollIntervalSeconds = 2
	defaultManagerName         = "local"
	defaultLargeFileMB         = 20
	defaultFreeSpaceMarginMB   = 1024
	defaultStaleHours          = 72
	defaultMinSizeKB           = 5
	defaultSmallSizeKB         = 50
	defaultNtfyTimeoutSeconds  = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LockDir: defaultLockDir,
			LogDir:  defaultLogDir,
		},
		Converter: Converter{
			Path:                defaultConverterPath,
			MaxRuntimeMinutes:   defaultMaxRuntimeMinutes,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			ManagerName:         defaultManagerName,
		},
		Staging: Staging{
			RequireFiles:      true,
			LargeFileMB:       defaultLargeFileMB,
			FreeSpaceMarginMB: defaultFreeSpaceMarginMB,
			StaleHours:        defaultStaleHours,
		},
		Validation: Validation{
			MinSizeKB:   defaultMinSizeKB,
			SmallSizeKB: defaultSmallSizeKB,
			Classify:    true,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
			NotifySuccess:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
