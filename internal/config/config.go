// Package config loads the turnstile configuration: defaults, then the
// YAML file, then environment overrides, in that precedence order. Secrets
// (the API token, the organization's private key) are environment-only and
// never read from or written to YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	API          APIConfig          `yaml:"api"`
	Storage      StorageConfig      `yaml:"storage"`
	Sync         SyncConfig         `yaml:"sync"`
	Organization OrganizationConfig `yaml:"organization"`
	Shops        []string           `yaml:"shops"`
	Log          LogConfig          `yaml:"log"`
	DevServer    DevServerConfig    `yaml:"devserver"`
}

// APIConfig describes the remote shop API.
type APIConfig struct {
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"-"` // env-only, never in YAML
	Timeout Duration `yaml:"timeout"`
}

// StorageConfig locates the local mirror databases.
type StorageConfig struct {
	RootPath string `yaml:"root_path"`
}

// SyncConfig tunes the refresh and flush cycles.
type SyncConfig struct {
	RefreshInterval Duration `yaml:"refresh_interval"`
	FlushInterval   Duration `yaml:"flush_interval"`
	PageLimit       int      `yaml:"page_limit"`
	TaskQueueSize   int      `yaml:"task_queue_size"`
}

// OrganizationConfig identifies the organization and carries its sealed-box
// key pair. Keys are base64; the private key is environment-only.
type OrganizationConfig struct {
	ID         string `yaml:"id"`
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DevServerConfig configures the development shop server.
type DevServerConfig struct {
	Port  int    `yaml:"port"`
	Token string `yaml:"-"` // env-only, never in YAML
	Seed  int64  `yaml:"seed"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("TURNSTILE_CONFIG_PATH", "config/turnstile.yaml")

	// Missing file is not an error; defaults plus env carry a dev setup.
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultDataDir resolves the platform data directory for mirror databases.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "turnstile", "shops")
	}
	return "~/.turnstile/shops"
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		API: APIConfig{
			Timeout: Duration(30 * time.Second),
		},
		Storage: StorageConfig{
			RootPath: DefaultDataDir(),
		},
		Sync: SyncConfig{
			RefreshInterval: Duration(30 * time.Second),
			FlushInterval:   Duration(15 * time.Second),
			PageLimit:       100,
			TaskQueueSize:   64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		DevServer: DevServerConfig{
			Port: 8733,
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv("TURNSTILE_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("TURNSTILE_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("TURNSTILE_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.Timeout = Duration(d)
		}
	}

	// Storage
	if v := os.Getenv("TURNSTILE_DATA_DIR"); v != "" {
		cfg.Storage.RootPath = v
	}

	// Sync
	if v := os.Getenv("TURNSTILE_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.RefreshInterval = Duration(d)
		}
	}
	if v := os.Getenv("TURNSTILE_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.FlushInterval = Duration(d)
		}
	}
	if v := os.Getenv("TURNSTILE_PAGE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.PageLimit = n
		}
	}

	// Organization
	if v := os.Getenv("TURNSTILE_ORG_ID"); v != "" {
		cfg.Organization.ID = v
	}
	if v := os.Getenv("TURNSTILE_ORG_PUBLIC_KEY"); v != "" {
		cfg.Organization.PublicKey = v
	}
	if v := os.Getenv("TURNSTILE_ORG_PRIVATE_KEY"); v != "" {
		cfg.Organization.PrivateKey = v
	}

	// Shops
	if v := os.Getenv("TURNSTILE_SHOPS"); v != "" {
		var shops []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				shops = append(shops, s)
			}
		}
		cfg.Shops = shops
	}

	// Log
	if v := os.Getenv("TURNSTILE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TURNSTILE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Devserver
	if v := os.Getenv("TURNSTILE_DEVSERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.DevServer.Port = port
		}
	}
	if v := os.Getenv("TURNSTILE_DEVSERVER_TOKEN"); v != "" {
		cfg.DevServer.Token = v
	}
	if v := os.Getenv("TURNSTILE_DEVSERVER_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.DevServer.Seed = seed
		}
	}
}

// validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior. Presence of the API URL and token is checked
// by the commands that need them, not here, so devserver-only setups work.
func (c *Config) validate() error {
	if c.Sync.PageLimit <= 0 {
		return errors.New("sync.page_limit must be positive")
	}
	if time.Duration(c.Sync.RefreshInterval) <= 0 {
		return errors.New("sync.refresh_interval must be positive")
	}
	if time.Duration(c.Sync.FlushInterval) <= 0 {
		return errors.New("sync.flush_interval must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
