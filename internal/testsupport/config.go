package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tipflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The repository and state directories exist; no model, mail or ntfy
// endpoint is configured.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RepoDir = filepath.Join(base, "repo")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Server.Host = "127.0.0.1"
	cfgVal.Server.Port = 5000
	cfgVal.Server.PublicURL = "http://tips.test"
	cfgVal.Repository.RemoteURL = "https://github.com/acme/tips"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithStoreBackend selects the approval store backend.
func WithStoreBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = backend
	}
}

// WithRemoteURL overrides the repository remote URL.
func WithRemoteURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Repository.RemoteURL = url
	}
}

// WithPoolFile writes a YAML pool file and points the generator at it.
func WithPoolFile(yamlBody string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "pool.yaml")
		if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
			b.t.Fatalf("write pool file: %v", err)
		}
		b.cfg.Generator.PoolFile = path
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.RepoDir)
}
