package config

import (
	"fmt"
	"time"
)

// Validate checks the configuration for values the engine cannot run with.
func Validate(cfg Config) error {
	if cfg.Session.MaxRetries < 1 {
		return &ConfigError{Message: "session.maxRetries must be at least 1"}
	}
	if cfg.Session.InactivityWindow.Std() < time.Minute {
		return &ConfigError{Message: "session.inactivityWindow must be at least 1m"}
	}
	if cfg.Cache.ResultsTTL.Std() >= cfg.Cache.IdentityTTL.Std() {
		return &ConfigError{Message: "cache.resultsTtl must be shorter than cache.identityTtl"}
	}
	if cfg.Cache.MaxEntries < 1 {
		return &ConfigError{Message: "cache.maxEntries must be positive"}
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return &ConfigError{Message: fmt.Sprintf("server.port out of range: %d", cfg.Server.Port)}
	}
	if cfg.NLU.Provider != "" {
		if _, ok := cfg.NLU.Providers[cfg.NLU.Provider]; !ok {
			return &ConfigError{Message: fmt.Sprintf("nlu.provider %q has no entry under nlu.providers", cfg.NLU.Provider)}
		}
	}
	for _, name := range cfg.NLU.Fallbacks {
		if _, ok := cfg.NLU.Providers[name]; !ok {
			return &ConfigError{Message: fmt.Sprintf("nlu fallback %q has no entry under nlu.providers", name)}
		}
	}
	return nil
}
