// Package skill contains the task state machines. Each skill walks a user
// through one stateful task across independent inbound messages; all
// progress between turns lives in the session store and the caches.
package skill

import (
	"context"
	"fmt"
	"sync"

	"github.com/agendahealth/consulta/internal/domain"
	"github.com/agendahealth/consulta/internal/logging"
)

// Turn is one inbound message for one conversation. Input text is assumed
// already sanitized by the guardrail pipeline upstream of the engine.
type Turn struct {
	ConversationID string         `json:"conversationId"`
	Text           string         `json:"text"`
	Channel        domain.Channel `json:"channel,omitempty"`
}

// SuggestedAction is a quick-reply chip for rich channels.
type SuggestedAction struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Result is the outcome of processing one turn.
type Result struct {
	Message       string               `json:"message"`
	Complete      bool                 `json:"isComplete"`
	RequiresInput bool                 `json:"requiresInput,omitempty"`
	Results       []domain.Appointment `json:"results,omitempty"`
	Suggested     []SuggestedAction    `json:"suggestedActions,omitempty"`
}

// Skill is one task state machine.
type Skill interface {
	// Name identifies the skill in the registry and in session records.
	Name() string

	// Validate fails fast when required collaborators are missing,
	// before any state is read.
	Validate() error

	// Execute processes one turn. Collaborator failures surface as a
	// terminal user-facing Result, never as a panic; the returned error is
	// reserved for programmer errors.
	Execute(ctx context.Context, turn Turn) (*Result, error)
}

// SessionStore manages task sessions. Reads apply the soft staleness rule;
// mutations fail with domain.ErrSessionNotFound when no active session
// exists, so callers cannot create sessions implicitly.
type SessionStore interface {
	// Create starts a fresh session, replacing any previous one for the id.
	Create(id, skillName string, status domain.SessionStatus) (*domain.Session, error)

	// Get returns the active session, treating stale or corrupt records
	// as absent (deleting them as a side effect).
	Get(id string) (*domain.Session, bool)

	// Update applies fn to the freshly read session and persists it,
	// refreshing last activity.
	Update(id string, fn func(*domain.Session)) (*domain.Session, error)

	// MergeData merges a partial patch into the session's collected data.
	MergeData(id string, patch domain.DataPatch) error

	// Clear deletes the session. Clearing an absent session is not an error.
	Clear(id string) error

	// IsActive reports whether an active session exists.
	IsActive(id string) bool
}

// Registry resolves skills by task name.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
	log    *logging.Logger
}

// NewRegistry creates an empty skill registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		skills: make(map[string]Skill),
		log:    log.Sub("skills"),
	}
}

// Register adds a skill. Registering a duplicate name is an error.
func (r *Registry) Register(s Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[s.Name()]; exists {
		return fmt.Errorf("skill already registered: %s", s.Name())
	}
	r.skills[s.Name()] = s
	r.log.Info().Str("skill", s.Name()).Msg("skill registered")
	return nil
}

// Resolve returns the skill for the given task name.
func (r *Registry) Resolve(name string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.skills[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no skill registered for task %q", name)
}

// List returns all registered skill names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for n := range r.skills {
		names = append(names, n)
	}
	return names
}
