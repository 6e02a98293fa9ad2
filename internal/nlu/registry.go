package nlu

import (
	"fmt"
	"sync"

	"github.com/agendahealth/consulta/internal/config"
	"github.com/agendahealth/consulta/internal/logging"
)

// Registry manages NLU provider clients by name.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	log     *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		log:     log.Sub("nlu.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered NLU provider")
}

// Resolve returns the Client for the given provider name.
func (r *Registry) Resolve(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clients[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("no NLU provider %q", name)
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	return names
}

// NewRegistryFromConfig builds a Registry from configured provider entries.
func NewRegistryFromConfig(cfg config.NLUConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)
	for name, entry := range cfg.Providers {
		if entry.Endpoint == "" {
			continue
		}
		reg.Register(name, NewHTTPClient(HTTPConfig{
			Name:     name,
			Endpoint: entry.Endpoint,
			APIKey:   entry.APIKey,
			Model:    entry.Model,
			Timeout:  cfg.Timeout.Std(),
		}))
	}
	return reg
}
