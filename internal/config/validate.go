package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateConverter(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.RemoteRoot != "" && c.Paths.RemoteRoot == c.Paths.WorkDir {
		return errors.New("paths.remote_root must differ from paths.work_dir")
	}
	return nil
}

func (c *Config) validateConverter() error {
	if c.Converter.Path == "" {
		return errors.New("converter.path must be set")
	}
	if c.Converter.PollIntervalSeconds >= c.Converter.MaxRuntimeMinutes*60 {
		return errors.New("converter.poll_interval_seconds must be shorter than converter.max_runtime_minutes")
	}
	return nil
}

func (c *Config) validateValidation() error {
	if c.Validation.SmallSizeKB < c.Validation.MinSizeKB {
		return fmt.Errorf("validation.small_size_kb (%d) must not be below validation.min_size_kb (%d)",
			c.Validation.SmallSizeKB, c.Validation.MinSizeKB)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.DebugLevel < 0 || c.Logging.DebugLevel > 5 {
		return errors.New("logging.debug_level must be between 0 and 5")
	}
	return nil
}
