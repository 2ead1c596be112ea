package testsupport

import (
	"path/filepath"
	"testing"

	"threadrelay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a default config whose state and archive directories
// live under a per-test temp directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.ArchiveDir = filepath.Join(base, "archive")
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// NewStore wraps NewConfig in a config.Store with no backing file.
func NewStore(t testing.TB, opts ...ConfigOption) *config.Store {
	t.Helper()
	return config.NewStore(NewConfig(t, opts...), "")
}

// WithSpeechTitleKeyword sets the title keyword that auto-starts speech.
func WithSpeechTitleKeyword(keyword string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Speech.AutoStartTitleKeyword = keyword
	}
}

// WithStream turns stream support on or off.
func WithStream(enabled bool) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Stream.Enabled = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
