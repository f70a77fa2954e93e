package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeConverter(); err != nil {
		return err
	}
	c.normalizeStaging()
	c.normalizeValidation()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if value, ok := os.LookupEnv("AGILENTUIMF_REMOTE_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Paths.RemoteRoot = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.RemoteRoot, err = expandPath(strings.TrimSpace(c.Paths.RemoteRoot)); err != nil {
		return fmt.Errorf("paths.remote_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockDir) == "" {
		c.Paths.LockDir = defaultLockDir
	}
	if c.Paths.LockDir, err = expandPath(c.Paths.LockDir); err != nil {
		return fmt.Errorf("paths.lock_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeConverter() error {
	if value, ok := os.LookupEnv("AGILENTUIMF_CONVERTER"); ok && strings.TrimSpace(value) != "" {
		c.Converter.Path = strings.TrimSpace(value)
	}
	c.Converter.Path = strings.TrimSpace(c.Converter.Path)
	if c.Converter.Path == "" {
		c.Converter.Path = defaultConverterPath
	}
	// Bare executable names are resolved on PATH at preflight time.
	if strings.ContainsAny(c.Converter.Path, `/\`) || strings.HasPrefix(c.Converter.Path, "~") {
		expanded, err := expandPath(c.Converter.Path)
		if err != nil {
			return fmt.Errorf("converter.path: %w", err)
		}
		c.Converter.Path = expanded
	}
	if c.Converter.MaxRuntimeMinutes <= 0 {
		c.Converter.MaxRuntimeMinutes = defaultMaxRuntimeMinutes
	}
	if c.Converter.PollIntervalSeconds <= 0 {
		c.Converter.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	c.Converter.ManagerName = strings.TrimSpace(c.Converter.ManagerName)
	if c.Converter.ManagerName == "" {
		c.Converter.ManagerName = defaultManagerName
	}
	return nil
}

func (c *Config) normalizeStaging() {
	if c.Staging.LargeFileMB <= 0 {
		c.Staging.LargeFileMB = defaultLargeFileMB
	}
	if c.Staging.FreeSpaceMarginMB < 0 {
		c.Staging.FreeSpaceMarginMB = 0
	}
	if c.Staging.StaleHours <= 0 {
		c.Staging.StaleHours = defaultStaleHours
	}
}

func (c *Config) normalizeValidation() {
	if c.Validation.MinSizeKB <= 0 {
		c.Validation.MinSizeKB = defaultMinSizeKB
	}
	if c.Validation.SmallSizeKB <= 0 {
		c.Validation.SmallSizeKB = defaultSmallSizeKB
	}
}

func (c *Config) normalizeNotifications() {
	if value, ok := os.LookupEnv("AGILENTUIMF_NTFY_TOPIC"); ok {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.DebugLevel >= 2 {
		c.Logging.Level = "debug"
	}
}
