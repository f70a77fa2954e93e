package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"agilentuimf/internal/config"
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

	wantWork := filepath.Join(tempHome, ".local", "share", "agilentuimf", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.MaxRuntime() != 180*time.Minute {
		t.Fatalf("unexpected max runtime: %s", cfg.MaxRuntime())
	}
	if cfg.Validation.MinSizeKB != 5 || cfg.Validation.SmallSizeKB != 50 {
		t.Fatalf("unexpected validation thresholds: %+v", cfg.Validation)
	}
	if !cfg.Staging.RequireFiles {
		t.Fatal("expected required files check enabled by default")
	}
	if got := cfg.ConsoleOutputName(); got != "AgilentToUIMF_ConsoleOutput_local.txt" {
		t.Fatalf("unexpected console output name %q", got)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.LogDir, cfg.Paths.LockDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "agilentuimf.toml")

	type payload struct {
		Paths struct {
			WorkDir    string `toml:"work_dir"`
			RemoteRoot string `toml:"remote_root"`
		} `toml:"paths"`
		Converter struct {
			MaxRuntimeMinutes int    `toml:"max_runtime_minutes"`
			ManagerName       string `toml:"manager_name"`
		} `toml:"converter"`
		Logging struct {
			DebugLevel int `toml:"debug_level"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.WorkDir = filepath.Join(tempDir, "work")
	custom.Paths.RemoteRoot = filepath.Join(tempDir, "remote")
	custom.Converter.MaxRuntimeMinutes = 90
	custom.Converter.ManagerName = "Pub-12-3"
	custom.Logging.DebugLevel = 2
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.RemoteRoot != custom.Paths.RemoteRoot {
		t.Fatalf("unexpected remote root %q", cfg.Paths.RemoteRoot)
	}
	if cfg.MaxRuntime() != 90*time.Minute {
		t.Fatalf("expected 90 minute ceiling, got %s", cfg.MaxRuntime())
	}
	if got := cfg.ConsoleOutputName(); got != "AgilentToUIMF_ConsoleOutput_Pub-12-3.txt" {
		t.Fatalf("unexpected console output name %q", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug_level 2 to force debug logging, got %q", cfg.Logging.Level)
	}
}

func TestEnvVarOverridesConverterPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "agilentuimf.toml")
	if err := os.WriteFile(configPath, []byte("[converter]\npath = \"/opt/file/AgilentToUIMFConverter\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	envPath := filepath.Join(tempDir, "bin", "converter")
	t.Setenv("AGILENTUIMF_CONVERTER", envPath)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Converter.Path != envPath {
		t.Fatalf("expected converter path from env, got %q", cfg.Converter.Path)
	}
}

func TestValidateRejectsInvertedSizeThresholds(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "agilentuimf.toml")
	body := "[validation]\nmin_size_kb = 100\nsmall_size_kb = 50\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "small_size_kb") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "agilentuimf.toml")
	if err := os.WriteFile(configPath, []byte("[logging]\nformat = \"xml\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample to load, exists=%v err=%v", exists, err)
	}
}

func TestValidateRejectsNonURLNtfyTopic(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "agilentuimf.toml")
	if err := os.WriteFile(configPath, []byte("[notifications]\nntfy_topic = \"my-topic\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "ntfy_topic") {
		t.Fatalf("expected ntfy_topic error, got %v", err)
	}
}
