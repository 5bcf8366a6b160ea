// Package config loads convolens settings from config.yaml and CONVOLENS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when Load is given no explicit file.
const DefaultPath = "config.yaml"

const envPrefix = "CONVOLENS_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Provider  ProviderConfig  `koanf:"provider"`
	Registry  RegistryConfig  `koanf:"registry"`
	Storage   StorageConfig   `koanf:"storage"`
	Analysis  AnalysisConfig  `koanf:"analysis"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxSessions    int           `koanf:"max_sessions"`
	SessionIdleTTL time.Duration `koanf:"session_idle_ttl"`
	// RateLimit is requests per second per client address. Zero disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// ProviderConfig holds the defaults used when a request omits them.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	// DemoKey is the credential that switches every call to canned responses.
	DemoKey string `koanf:"demo_key"`
	// BlockPrivateNetworks refuses caller-chosen base URLs that resolve to
	// loopback or private addresses.
	BlockPrivateNetworks bool          `koanf:"block_private_networks"`
	Timeout              time.Duration `koanf:"timeout"`
	// ShareAPIKey lets HTTP callers that send no apiKey run on APIKey.
	// Without it APIKey only serves the CLI.
	ShareAPIKey bool `koanf:"share_api_key"`
}

// SharedAPIKey is the key HTTP requests fall back to when they carry none.
func (p ProviderConfig) SharedAPIKey() string {
	if !p.ShareAPIKey {
		return ""
	}
	return p.APIKey
}

type RegistryConfig struct {
	Preset string `koanf:"preset"` // general, mental-health
	File   string `koanf:"file"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // none, memory, sqlite
	Memory MemoryConfig `koanf:"memory"`
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type MemoryConfig struct {
	MaxEntries int `koanf:"max_entries"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type AnalysisConfig struct {
	Enabled          bool          `koanf:"enabled"`
	ContextWindow    int           `koanf:"context_window"`
	Timeout          time.Duration `koanf:"timeout"`
	BatchDelay       time.Duration `koanf:"batch_delay"`
	RateLimitBackoff time.Duration `koanf:"rate_limit_backoff"`
	GlobalFlagDedup  bool          `koanf:"global_flag_dedup"`
	TokenBudget      int           `koanf:"token_budget"`
}

type TelemetryConfig struct {
	Tracing  bool   `koanf:"tracing"`
	LogLevel string `koanf:"log_level"`
}

var defaults = map[string]any{
	"server.port":                 8080,
	"server.request_timeout":      "120s",
	"server.max_sessions":         100,
	"server.session_idle_ttl":     "2h",
	"server.rate_burst":           10,
	"provider.model":              "gpt-4o-mini",
	"provider.demo_key":           "test",
	"provider.timeout":            "90s",
	"registry.preset":             "general",
	"storage.type":                "memory",
	"storage.memory.max_entries":  1000,
	"storage.sqlite.path":         "convolens.db",
	"analysis.enabled":            true,
	"analysis.context_window":     5,
	"analysis.timeout":            "60s",
	"analysis.batch_delay":        "1s",
	"analysis.rate_limit_backoff": "10s",
	"analysis.token_budget":       6000,
	"telemetry.log_level":         "info",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (or DefaultPath when empty), then applies environment
// overrides such as CONVOLENS_SERVER__PORT. A missing DefaultPath is not an
// error; a missing explicit path is.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Provider.APIKey = substituteEnvVars(cfg.Provider.APIKey)
	cfg.Provider.BaseURL = substituteEnvVars(cfg.Provider.BaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Type {
	case "none", "memory", "sqlite":
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path == "" {
		return errors.New("storage.sqlite.path is required for sqlite storage")
	}
	if c.Analysis.ContextWindow < 1 {
		return fmt.Errorf("analysis.context_window must be at least 1, got %d", c.Analysis.ContextWindow)
	}
	if c.Analysis.BatchDelay < 0 || c.Analysis.RateLimitBackoff < 0 || c.Analysis.Timeout < 0 {
		return errors.New("analysis durations must not be negative")
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
