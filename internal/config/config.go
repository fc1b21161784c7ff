package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "MEDIA_SIDECAR_CONFIG"

// Config holds the persisted settings for media-sidecar.
type Config struct {
	// OMDb settings
	OMDBAPIKey            string  `json:"omdb_api_key"`
	OMDBBaseURL           string  `json:"omdb_base_url,omitempty"`
	RequestTimeoutSeconds int     `json:"request_timeout_seconds"`
	PosterTimeoutSeconds  int     `json:"poster_timeout_seconds"`
	RequestsPerSecond     float64 `json:"requests_per_second"`

	// Logging
	LogLevel         string `json:"log_level"`
	EnableLogging    bool   `json:"enable_logging"`
	LogRetentionDays int    `json:"log_retention_days"`

	// Watch mode
	WatchDebounceMS int `json:"watch_debounce_ms"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		OMDBAPIKey:            "",
		RequestTimeoutSeconds: 10,
		PosterTimeoutSeconds:  10,
		RequestsPerSecond:     0,
		LogLevel:              "info",
		EnableLogging:         true,
		LogRetentionDays:      30,
		WatchDebounceMS:       1500,
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".media-sidecar", "config.json"), nil
}

// Load reads the configuration from disk
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration at path. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Decoding over the defaults keeps fields the file does not mention.
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Fill in any zeroed fields with defaults
	defaults := DefaultConfig()
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = defaults.RequestTimeoutSeconds
	}
	if cfg.PosterTimeoutSeconds <= 0 {
		cfg.PosterTimeoutSeconds = defaults.PosterTimeoutSeconds
	}
	if cfg.RequestsPerSecond < 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.LogRetentionDays == 0 {
		cfg.LogRetentionDays = defaults.LogRetentionDays
	}
	if cfg.WatchDebounceMS <= 0 {
		cfg.WatchDebounceMS = defaults.WatchDebounceMS
	}

	return cfg, nil
}

// Save writes the configuration to disk
func (cfg *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return cfg.SaveTo(path)
}

// SaveTo writes the configuration to path, creating its directory.
func (cfg *Config) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file can hold an API key.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// RequestTimeout returns the catalog request timeout.
func (cfg *Config) RequestTimeout() time.Duration {
	return time.Duration(cfg.RequestTimeoutSeconds) * time.Second
}

// PosterTimeout returns the poster download timeout.
func (cfg *Config) PosterTimeout() time.Duration {
	return time.Duration(cfg.PosterTimeoutSeconds) * time.Second
}

// WatchDebounce returns how long watch mode waits for a file to settle.
func (cfg *Config) WatchDebounce() time.Duration {
	return time.Duration(cfg.WatchDebounceMS) * time.Millisecond
}

// setters maps config keys to parsers that apply a string value.
var setters = map[string]func(*Config, string) error{
	"omdb_api_key": func(c *Config, v string) error {
		c.OMDBAPIKey = strings.TrimSpace(v)
		return nil
	},
	"omdb_base_url": func(c *Config, v string) error {
		v = strings.TrimSpace(v)
		if v != "" {
			u, err := url.Parse(v)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("omdb_base_url must be an absolute URL")
			}
		}
		c.OMDBBaseURL = v
		return nil
	},
	"request_timeout_seconds": intSetter(func(c *Config, n int) { c.RequestTimeoutSeconds = n }, 1),
	"poster_timeout_seconds":  intSetter(func(c *Config, n int) { c.PosterTimeoutSeconds = n }, 1),
	"requests_per_second": func(c *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 {
			return fmt.Errorf("requests_per_second must be a non-negative number")
		}
		c.RequestsPerSecond = f
		return nil
	},
	"log_level": func(c *Config, v string) error {
		v = strings.ToLower(strings.TrimSpace(v))
		switch v {
		case "debug", "info", "warn", "error":
			c.LogLevel = v
			return nil
		}
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	},
	"enable_logging": func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("enable_logging must be true or false")
		}
		c.EnableLogging = b
		return nil
	},
	"log_retention_days": intSetter(func(c *Config, n int) { c.LogRetentionDays = n }, 1),
	"watch_debounce_ms":  intSetter(func(c *Config, n int) { c.WatchDebounceMS = n }, 1),
}

func intSetter(apply func(*Config, int), minValue int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < minValue {
			return fmt.Errorf("value must be an integer >= %d", minValue)
		}
		apply(c, n)
		return nil
	}
}

// Keys lists the settable config keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set parses value and assigns it to the field named by key.
func (cfg *Config) Set(key, value string) error {
	set, ok := setters[strings.TrimSpace(key)]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}
	if err := set(cfg, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Masked returns a copy safe to print, with the API key obscured.
func (cfg *Config) Masked() *Config {
	out := *cfg
	out.OMDBAPIKey = MaskSecret(cfg.OMDBAPIKey)
	return &out
}

// MaskSecret keeps the last four characters of s.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
