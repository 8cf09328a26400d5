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

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Library contains configuration for the Jellyfin library service that
// reconciliation queries.
type Library struct {
	URL            string            `toml:"url"`
	ClientName     string            `toml:"client_name"`
	DeviceID       string            `toml:"device_id"`
	ProviderKey    string            `toml:"provider_key"`
	SearchLimit    int               `toml:"search_limit"`
	RequestTimeout int               `toml:"request_timeout"`
	ItemTypes      map[string]string `toml:"item_types"`
}

// Requests contains configuration for request intake and browsing.
type Requests struct {
	MediaTypes      []string `toml:"media_types"`
	DefaultPageSize int      `toml:"default_page_size"`
	MaxPageSize     int      `toml:"max_page_size"`
}

// Reconcile contains configuration for the background library reconciliation loop.
type Reconcile struct {
	Enabled           bool `toml:"enabled"`
	Interval          int  `toml:"interval"`
	TransitionTimeout int  `toml:"transition_timeout"`
	RunOnStart        bool `toml:"run_on_start"`
}

// Auth contains configuration for verifying bearer tokens on the HTTP API.
type Auth struct {
	JWTSecret string `toml:"jwt_secret"`
	JWTIssuer string `toml:"jwt_issuer"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reqtrack.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Library: Jellyfin connection and search settings
//   - Requests: accepted media types and pagination limits
//   - Reconcile: background auto-fulfillment cadence
//   - Auth: API bearer token verification
//   - Notifications: ntfy delivery for request events
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Library       Library       `toml:"library"`
	Requests      Requests      `toml:"requests"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Auth          Auth          `toml:"auth"`
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

	projectPath, err := filepath.Abs("reqtrack.toml")
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

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the request database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "requests.db")
}

// LockPath returns the location of the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "reqtrackd.lock")
}

// ReconcileInterval returns the pass cadence as a duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.Interval) * time.Second
}

// TransitionTimeout bounds a single auto-fulfillment write.
func (c *Config) TransitionTimeout() time.Duration {
	return time.Duration(c.Reconcile.TransitionTimeout) * time.Second
}

// LibraryTimeout bounds each call to the library service.
func (c *Config) LibraryTimeout() time.Duration {
	return time.Duration(c.Library.RequestTimeout) * time.Second
}

// MediaTypeSupported reports whether the value is one of the configured media types.
func (c *Config) MediaTypeSupported(value string) bool {
	for _, mt := range c.Requests.MediaTypes {
		if mt == value {
			return true
		}
	}
	return false
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

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
