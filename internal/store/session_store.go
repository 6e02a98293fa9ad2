package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/agendahealth/consulta/internal/domain"
)

// SessionStoreOptions tune expiry behavior.
type SessionStoreOptions struct {
	// TTL is the hard record expiry written on every create/update.
	TTL time.Duration
	// InactivityWindow is the soft staleness applied on read: a session whose
	// last activity is older than the window is treated as absent and deleted,
	// even if its record has not hard-expired yet.
	InactivityWindow time.Duration
	// MaxRetries seeds new sessions' per-field retry budget.
	MaxRetries int
}

// SQLiteSessionStore is the durable session store. One record per
// conversation, expiring both on a hard TTL and a soft inactivity window.
type SQLiteSessionStore struct {
	db   *DB
	opts SessionStoreOptions
}

// NewSessionStore creates a session store using the given database.
func NewSessionStore(db *DB, opts SessionStoreOptions) *SQLiteSessionStore {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.InactivityWindow <= 0 {
		opts.InactivityWindow = 30 * time.Minute
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = domain.DefaultMaxRetries
	}
	return &SQLiteSessionStore{db: db, opts: opts}
}

// Create inserts a new session for the conversation. An existing record for
// the same id is replaced: a new task always starts clean.
func (s *SQLiteSessionStore) Create(id, skillName string, status domain.SessionStatus) (*domain.Session, error) {
	now := time.Now()
	sess := &domain.Session{
		ID:             id,
		Skill:          skillName,
		Status:         status,
		StartedAt:      now,
		LastActivityAt: now,
		MaxRetries:     s.opts.MaxRetries,
	}

	dataJSON, err := json.Marshal(sess.Data)
	if err != nil {
		return nil, err
	}

	_, err = s.db.sql.Exec(
		`INSERT INTO task_sessions (id, skill, status, data, retries, max_retries, started_at, last_activity_at, expires_at)
		 VALUES (?, ?, ?, ?, '{}', ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   skill = excluded.skill,
		   status = excluded.status,
		   data = excluded.data,
		   retries = excluded.retries,
		   max_retries = excluded.max_retries,
		   started_at = excluded.started_at,
		   last_activity_at = excluded.last_activity_at,
		   expires_at = excluded.expires_at`,
		id, skillName, string(status), string(dataJSON), sess.MaxRetries,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
		now.Add(s.opts.TTL).Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the active session for the conversation. Hard-expired, stale,
// and corrupt records are deleted as a side effect and reported as absent.
func (s *SQLiteSessionStore) Get(id string) (*domain.Session, bool) {
	sess, ok := s.read(s.db.sql, id)
	return sess, ok
}

// IsActive reports whether an active, non-stale session exists.
func (s *SQLiteSessionStore) IsActive(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Update applies fn to the freshly read session inside a transaction and
// persists the result, refreshing last activity and the hard expiry.
// Returns domain.ErrSessionNotFound when no active session exists.
func (s *SQLiteSessionStore) Update(id string, fn func(*domain.Session)) (*domain.Session, error) {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sess, ok := s.read(tx, id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	fn(sess)
	sess.LastActivityAt = time.Now()

	dataJSON, err := json.Marshal(sess.Data)
	if err != nil {
		return nil, err
	}
	retriesJSON, err := json.Marshal(sess.Retries)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		`UPDATE task_sessions
		 SET status = ?, data = ?, retries = ?, last_activity_at = ?, expires_at = ?
		 WHERE id = ?`,
		string(sess.Status), string(dataJSON), string(retriesJSON),
		sess.LastActivityAt.Format(time.RFC3339),
		sess.LastActivityAt.Add(s.opts.TTL).Format(time.RFC3339),
		id,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sess, nil
}

// MergeData merges a partial patch into the session's collected data.
func (s *SQLiteSessionStore) MergeData(id string, patch domain.DataPatch) error {
	_, err := s.Update(id, func(sess *domain.Session) {
		sess.Data.Apply(patch)
	})
	return err
}

// Clear deletes the session. Clearing an absent session is not an error.
func (s *SQLiteSessionStore) Clear(id string) error {
	_, err := s.db.sql.Exec(`DELETE FROM task_sessions WHERE id = ?`, id)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

// read loads and validates a session row, deleting it when expired, stale,
// or corrupt.
func (s *SQLiteSessionStore) read(q querier, id string) (*domain.Session, bool) {
	var (
		sess                                 domain.Session
		status                               string
		dataJSON, retriesJSON                string
		startedAt, lastActivityAt, expiresAt string
	)

	err := q.QueryRow(
		`SELECT id, skill, status, data, retries, max_retries, started_at, last_activity_at, expires_at
		 FROM task_sessions WHERE id = ?`, id,
	).Scan(
		&sess.ID, &sess.Skill, &status, &dataJSON, &retriesJSON,
		&sess.MaxRetries, &startedAt, &lastActivityAt, &expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.db.log.Error().Err(err).Str("session", id).Msg("session read failed")
		return nil, false
	}

	sess.Status = domain.SessionStatus(status)
	sess.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	sess.LastActivityAt, _ = time.Parse(time.RFC3339, lastActivityAt)
	expiry, _ := time.Parse(time.RFC3339, expiresAt)

	now := time.Now()
	if now.After(expiry) || now.Sub(sess.LastActivityAt) > s.opts.InactivityWindow {
		_, _ = q.Exec(`DELETE FROM task_sessions WHERE id = ?`, id)
		return nil, false
	}

	// Corrupt records behave as a cache miss: delete and report absent.
	if err := json.Unmarshal([]byte(dataJSON), &sess.Data); err != nil {
		s.db.log.Warn().Err(err).Str("session", id).Msg("corrupt session data, discarding")
		_, _ = q.Exec(`DELETE FROM task_sessions WHERE id = ?`, id)
		return nil, false
	}
	if retriesJSON != "" && retriesJSON != "null" {
		if err := json.Unmarshal([]byte(retriesJSON), &sess.Retries); err != nil {
			s.db.log.Warn().Err(err).Str("session", id).Msg("corrupt retry counters, discarding")
			_, _ = q.Exec(`DELETE FROM task_sessions WHERE id = ?`, id)
			return nil, false
		}
	}

	return &sess, true
}

// PurgeExpired removes all hard-expired rows. Intended for a periodic sweep;
// reads already delete lazily.
func (s *SQLiteSessionStore) PurgeExpired() (int64, error) {
	res, err := s.db.sql.Exec(
		`DELETE FROM task_sessions WHERE expires_at < ?`,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
