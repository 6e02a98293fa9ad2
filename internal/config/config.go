// Package config loads and validates the engine configuration.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5m".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
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

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library form.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration for the consulta engine.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Cache    CacheConfig    `yaml:"cache,omitempty"`
	NLU      NLUConfig      `yaml:"nlu,omitempty"`
	Upstream UpstreamConfig `yaml:"upstream,omitempty"`
	Server   ServerConfig   `yaml:"server,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // trace..fatal, silent
}

// StoreConfig controls the durable session store.
type StoreConfig struct {
	Path string   `yaml:"path,omitempty"` // SQLite file, ":memory:" for ephemeral
	TTL  Duration `yaml:"ttl,omitempty"`  // hard record expiry
}

// SessionConfig controls per-session behavior.
type SessionConfig struct {
	InactivityWindow Duration `yaml:"inactivityWindow,omitempty"` // soft staleness on read
	MaxRetries       int      `yaml:"maxRetries,omitempty"`       // per-field extraction budget
}

// CacheConfig controls the identity and results caches.
type CacheConfig struct {
	IdentityTTL Duration `yaml:"identityTtl,omitempty"`
	ResultsTTL  Duration `yaml:"resultsTtl,omitempty"`
	MaxEntries  int      `yaml:"maxEntries,omitempty"`
}

// NLUProviderEntry configures one NLU provider endpoint.
type NLUProviderEntry struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	APIKey   string `yaml:"apiKey,omitempty"`
	Model    string `yaml:"model,omitempty"`
}

// NLUConfig configures the NLU collaborator.
type NLUConfig struct {
	Provider  string                      `yaml:"provider,omitempty"`  // primary provider name
	Fallbacks []string                    `yaml:"fallbacks,omitempty"` // tried in order on retryable errors
	Timeout   Duration                    `yaml:"timeout,omitempty"`
	Providers map[string]NLUProviderEntry `yaml:"providers,omitempty"`
}

// UpstreamConfig configures the scheduling data source.
type UpstreamConfig struct {
	BaseURL string   `yaml:"baseUrl,omitempty"`
	APIKey  string   `yaml:"apiKey,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port int    `yaml:"port,omitempty"`
	Bind string `yaml:"bind,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Store: StoreConfig{
			Path: "consulta.db",
			TTL:  Duration(24 * time.Hour),
		},
		Session: SessionConfig{
			InactivityWindow: Duration(30 * time.Minute),
			MaxRetries:       3,
		},
		Cache: CacheConfig{
			IdentityTTL: Duration(24 * time.Hour),
			ResultsTTL:  Duration(5 * time.Minute),
			MaxEntries:  1024,
		},
		NLU: NLUConfig{
			Timeout: Duration(8 * time.Second),
		},
		Upstream: UpstreamConfig{
			Timeout: Duration(5 * time.Second),
		},
		Server: ServerConfig{
			Port: 8320,
			Bind: "127.0.0.1",
		},
	}
}

// applyDefaults fills zero values after YAML decoding.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = def.Store.Path
	}
	if cfg.Store.TTL == 0 {
		cfg.Store.TTL = def.Store.TTL
	}
	if cfg.Session.InactivityWindow == 0 {
		cfg.Session.InactivityWindow = def.Session.InactivityWindow
	}
	if cfg.Session.MaxRetries == 0 {
		cfg.Session.MaxRetries = def.Session.MaxRetries
	}
	if cfg.Cache.IdentityTTL == 0 {
		cfg.Cache.IdentityTTL = def.Cache.IdentityTTL
	}
	if cfg.Cache.ResultsTTL == 0 {
		cfg.Cache.ResultsTTL = def.Cache.ResultsTTL
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = def.Cache.MaxEntries
	}
	if cfg.NLU.Timeout == 0 {
		cfg.NLU.Timeout = def.NLU.Timeout
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = def.Upstream.Timeout
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = def.Server.Bind
	}
}
