// Package cache holds the two per-conversation caches with asymmetric
// freshness: a long-lived identity cache and a short-lived snapshot of
// fetched appointments. Both are bounded LRUs with a per-entry TTL check
// on read, so expired entries cost nothing to keep and vanish on access.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agendahealth/consulta/internal/domain"
)

const (
	defaultIdentityTTL = 24 * time.Hour
	defaultResultsTTL  = 5 * time.Minute
	defaultMaxEntries  = 1024
)

// Options tune cache TTLs and capacity.
type Options struct {
	IdentityTTL time.Duration
	ResultsTTL  time.Duration
	MaxEntries  int
}

type entry[T any] struct {
	value    T
	storedAt time.Time
}

// Cache is the process-wide conversation cache, keyed by conversation id.
type Cache struct {
	identity    *lru.Cache[string, entry[domain.Identity]]
	results     *lru.Cache[string, entry[[]domain.Appointment]]
	identityTTL time.Duration
	resultsTTL  time.Duration
}

// New creates a cache. Zero option values fall back to defaults.
func New(opts Options) *Cache {
	if opts.IdentityTTL <= 0 {
		opts.IdentityTTL = defaultIdentityTTL
	}
	if opts.ResultsTTL <= 0 {
		opts.ResultsTTL = defaultResultsTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}

	// lru.New only errors on non-positive size, which is guarded above.
	identity, _ := lru.New[string, entry[domain.Identity]](opts.MaxEntries)
	results, _ := lru.New[string, entry[[]domain.Appointment]](opts.MaxEntries)

	return &Cache{
		identity:    identity,
		results:     results,
		identityTTL: opts.IdentityTTL,
		resultsTTL:  opts.ResultsTTL,
	}
}

// CacheIdentity stores the verified identity for a conversation.
func (c *Cache) CacheIdentity(conversationID string, id domain.Identity) {
	c.identity.Add(conversationID, entry[domain.Identity]{value: id, storedAt: time.Now()})
}

// GetIdentity returns the cached identity, or nil when absent or expired.
func (c *Cache) GetIdentity(conversationID string) *domain.Identity {
	e, ok := c.identity.Get(conversationID)
	if !ok {
		return nil
	}
	if time.Since(e.storedAt) > c.identityTTL {
		c.identity.Remove(conversationID)
		return nil
	}
	id := e.value
	return &id
}

// HasIdentity reports whether a fresh identity entry exists.
func (c *Cache) HasIdentity(conversationID string) bool {
	return c.GetIdentity(conversationID) != nil
}

// ClearIdentity drops the identity entry.
func (c *Cache) ClearIdentity(conversationID string) {
	c.identity.Remove(conversationID)
}

// CacheResults stores the fetched appointment snapshot for a conversation.
func (c *Cache) CacheResults(conversationID string, items []domain.Appointment) {
	c.results.Add(conversationID, entry[[]domain.Appointment]{value: items, storedAt: time.Now()})
}

// GetResults returns the cached snapshot, or nil when absent or expired.
// The snapshot is invalidated as a whole; entries are never re-validated
// individually.
func (c *Cache) GetResults(conversationID string) []domain.Appointment {
	e, ok := c.results.Get(conversationID)
	if !ok {
		return nil
	}
	if time.Since(e.storedAt) > c.resultsTTL {
		c.results.Remove(conversationID)
		return nil
	}
	return e.value
}

// HasResults reports whether a fresh snapshot exists.
func (c *Cache) HasResults(conversationID string) bool {
	return c.GetResults(conversationID) != nil
}

// ClearResults drops the snapshot. Called after confirmed mutations so the
// next listing re-fetches rather than serving pre-mutation state.
func (c *Cache) ClearResults(conversationID string) {
	c.results.Remove(conversationID)
}

// ClearAll drops both entries for a conversation.
func (c *Cache) ClearAll(conversationID string) {
	c.identity.Remove(conversationID)
	c.results.Remove(conversationID)
}
