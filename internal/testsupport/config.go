package testsupport

import (
	"path/filepath"
	"testing"

	"dynq/internal/config"
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
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Telemetry.MetricsEnabled = false

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

// WithMaxConcurrent overrides the scheduler concurrency limit.
func WithMaxConcurrent(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.MaxConcurrent = n
	}
}

// WithPriorityTiers enables the priority tier barrier.
func WithPriorityTiers() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.PriorityTiers = true
	}
}

// WithEnvironment registers a target environment.
func WithEnvironment(name, url, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Environments = append(b.cfg.Environments, config.Environment{
			Name:           name,
			URL:            url,
			Token:          token,
			TimeoutSeconds: 5,
			MaxAttempts:    1,
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
