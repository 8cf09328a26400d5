package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"reqtrack/internal/config"
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
	cfgVal.Library.URL = "http://127.0.0.1:1"
	cfgVal.Library.DeviceID = "test-device"
	cfgVal.Auth.JWTSecret = "test-secret"

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

// WithLibraryURL points the library client at url, typically an httptest server.
func WithLibraryURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Library.URL = url
	}
}

// WithMediaTypes replaces the accepted media types.
func WithMediaTypes(types ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Requests.MediaTypes = append([]string(nil), types...)
	}
}

// WithJWTSecret sets the API token secret.
func WithJWTSecret(secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Auth.JWTSecret = secret
	}
}

// WithReconcileDisabled turns off the background loop.
func WithReconcileDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Reconcile.Enabled = false
	}
}

// WithNtfyTopic enables push notifications to topic.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
		b.cfg.Notifications.RequestTimeout = 5
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WriteConfig encodes cfg into a TOML file under the config's base directory
// and returns its path.
func WriteConfig(t testing.TB, cfg *config.Config) string {
	t.Helper()

	encoded, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, []byte(encoded), 0o644); err != nil {
		t.Fatalf("write config %s: %v", path, err)
	}
	return path
}
