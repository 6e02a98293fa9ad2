package skill

import (
	"sync"
	"time"

	"github.com/agendahealth/consulta/internal/domain"
)

// MemoryStoreOptions tune the in-memory store's expiry behavior.
type MemoryStoreOptions struct {
	TTL              time.Duration
	InactivityWindow time.Duration
	MaxRetries       int
}

// MemorySessionStore is an in-memory SessionStore implementation, used by
// the chat command and tests. Expiry semantics mirror the durable store:
// hard TTL plus a soft inactivity window applied on read.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	expires  map[string]time.Time
	opts     MemoryStoreOptions
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore(opts MemoryStoreOptions) *MemorySessionStore {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.InactivityWindow <= 0 {
		opts.InactivityWindow = 30 * time.Minute
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = domain.DefaultMaxRetries
	}
	return &MemorySessionStore{
		sessions: make(map[string]*domain.Session),
		expires:  make(map[string]time.Time),
		opts:     opts,
	}
}

func (s *MemorySessionStore) Create(id, skillName string, status domain.SessionStatus) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &domain.Session{
		ID:             id,
		Skill:          skillName,
		Status:         status,
		StartedAt:      now,
		LastActivityAt: now,
		MaxRetries:     s.opts.MaxRetries,
	}
	s.sessions[id] = sess
	s.expires[id] = now.Add(s.opts.TTL)
	return sess.Clone(), nil
}

func (s *MemorySessionStore) Get(id string) (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(id)
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

func (s *MemorySessionStore) Update(id string, fn func(*domain.Session)) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	fn(sess)
	sess.LastActivityAt = time.Now()
	s.expires[id] = sess.LastActivityAt.Add(s.opts.TTL)
	return sess.Clone(), nil
}

func (s *MemorySessionStore) MergeData(id string, patch domain.DataPatch) error {
	_, err := s.Update(id, func(sess *domain.Session) {
		sess.Data.Apply(patch)
	})
	return err
}

func (s *MemorySessionStore) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.expires, id)
	return nil
}

func (s *MemorySessionStore) IsActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(id)
	return ok
}

// live returns the session if neither hard-expired nor stale, deleting it
// otherwise. Caller holds the lock.
func (s *MemorySessionStore) live(id string) (*domain.Session, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	now := time.Now()
	if now.After(s.expires[id]) || now.Sub(sess.LastActivityAt) > s.opts.InactivityWindow {
		delete(s.sessions, id)
		delete(s.expires, id)
		return nil, false
	}
	return sess, true
}
