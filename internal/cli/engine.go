package cli

import (
	"fmt"

	"github.com/agendahealth/consulta/internal/config"
	"github.com/agendahealth/consulta/internal/nlu"
	"github.com/agendahealth/consulta/internal/upstream"
)

// buildNLU resolves the configured NLU client, wrapping it in failover when
// fallbacks are configured.
func buildNLU(cfg config.Config) (nlu.Client, error) {
	if cfg.NLU.Provider == "" {
		return nil, fmt.Errorf("no NLU provider configured (set nlu.provider)")
	}

	registry := nlu.NewRegistryFromConfig(cfg.NLU, log)
	if len(cfg.NLU.Fallbacks) > 0 {
		return nlu.NewFailoverClient(registry, cfg.NLU.Provider, cfg.NLU.Fallbacks, log), nil
	}
	return registry.Resolve(cfg.NLU.Provider)
}

// buildSource picks the scheduling source: the configured ERP adapter, or
// the built-in demo schedule when no upstream is configured.
func buildSource(cfg config.Config) upstream.Source {
	if cfg.Upstream.BaseURL != "" {
		return upstream.NewHTTPSource(upstream.HTTPConfig{
			BaseURL: cfg.Upstream.BaseURL,
			APIKey:  cfg.Upstream.APIKey,
			Timeout: cfg.Upstream.Timeout.Std(),
		}, log)
	}
	log.Warn().Msg("no upstream configured, using the static demo schedule")
	return upstream.NewStaticSource()
}
