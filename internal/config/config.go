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
	WorkDir    string `toml:"work_dir"`
	RemoteRoot string `toml:"remote_root"`
	LockDir    string `toml:"lock_dir"`
	LogDir     string `toml:"log_dir"`
}

// Converter contains configuration for the external AgilentToUIMF converter.
type Converter struct {
	Path                string `toml:"path"`
	MaxRuntimeMinutes   int    `toml:"max_runtime_minutes"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	ManagerName         string `toml:"manager_name"`
}

// Staging contains configuration for copying datasets to and from remote storage.
type Staging struct {
	RequireFiles      bool `toml:"require_files"`
	LargeFileMB       int  `toml:"large_file_mb"`
	FreeSpaceMarginMB int  `toml:"free_space_margin_mb"`
	StaleHours        int  `toml:"stale_hours"`
}

// Validation contains thresholds applied to the produced UIMF file.
type Validation struct {
	MinSizeKB   int64 `toml:"min_size_kb"`
	SmallSizeKB int64 `toml:"small_size_kb"`
	Classify    bool  `toml:"classify"`
}

// Notifications contains ntfy settings for conversion closeout messages.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifySuccess         bool   `toml:"notify_success"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// DebugLevel mirrors the task-parameter verbosity (0-5); values of 2 or
	// more force debug output regardless of Level.
	DebugLevel int `toml:"debug_level"`
}

// Config encapsulates all configuration values for agilentuimf.
//
// Configuration sections by subsystem:
//   - Paths: local working area, remote dataset root, lock and log directories
//   - Converter: external converter location and runtime limits
//   - Staging: required source files, large-file locking, free space margin
//   - Validation: size thresholds and post-validation classification
//   - Notifications: optional ntfy endpoint for closeout messages
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Converter     Converter     `toml:"converter"`
	Staging       Staging       `toml:"staging"`
	Validation    Validation    `toml:"validation"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("agilentuimf.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local directories a conversion needs.
// The remote root is never created; it belongs to the storage server.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir, c.Paths.LockDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MaxRuntime returns the converter runtime ceiling.
func (c *Config) MaxRuntime() time.Duration {
	return time.Duration(c.Converter.MaxRuntimeMinutes) * time.Minute
}

// PollInterval returns how often the converter supervisor wakes up.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Converter.PollIntervalSeconds) * time.Second
}

// LargeFileBytes returns the size at which copies coordinate through the lock directory.
func (c *Config) LargeFileBytes() int64 {
	return int64(c.Staging.LargeFileMB) * 1024 * 1024
}

// StaleAge returns the age after which local work directories are considered abandoned.
func (c *Config) StaleAge() time.Duration {
	return time.Duration(c.Staging.StaleHours) * time.Hour
}

// NotificationTimeout returns the ntfy request timeout.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

// ConsoleOutputName returns the file name the converter's console output is captured to.
func (c *Config) ConsoleOutputName() string {
	return ConsoleOutputFileName(c.Converter.ManagerName)
}

// ConsoleOutputFileName builds the console capture file name for a manager.
func ConsoleOutputFileName(manager string) string {
	manager = strings.TrimSpace(manager)
	if manager == "" {
		manager = defaultManagerName
	}
	return "AgilentToUIMF_ConsoleOutput_" + manager + ".txt"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
