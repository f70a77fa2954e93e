package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"agilentuimf/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.RemoteRoot = filepath.Join(base, "remote")
	cfgVal.Paths.LockDir = filepath.Join(base, "locks")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Converter.Path = filepath.Join(base, "bin", "AgilentToUIMFConverter")
	cfgVal.Staging.FreeSpaceMarginMB = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithManagerName sets the manager name used in the console output file name.
func WithManagerName(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Converter.ManagerName = name
	}
}

// WithConverterScript writes body as the converter executable.
func WithConverterScript(body string) ConfigOption {
	return func(b *configBuilder) {
		target := b.cfg.Converter.Path
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		if err := os.WriteFile(target, []byte(body), 0o755); err != nil {
			b.t.Fatalf("write converter stub: %v", err)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
