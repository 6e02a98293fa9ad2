package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendahealth/consulta/internal/domain"
	"github.com/agendahealth/consulta/internal/logging"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testStore(t *testing.T, opts SessionStoreOptions) *SQLiteSessionStore {
	t.Helper()
	return NewSessionStore(testDB(t), opts)
}

// backdate rewrites a session's timestamps directly, simulating the passage
// of time without sleeping.
func backdate(t *testing.T, ss *SQLiteSessionStore, id string, lastActivity, expiresAt time.Time) {
	t.Helper()
	_, err := ss.db.sql.Exec(
		`UPDATE task_sessions SET last_activity_at = ?, expires_at = ? WHERE id = ?`,
		lastActivity.Format(time.RFC3339), expiresAt.Format(time.RFC3339), id,
	)
	require.NoError(t, err)
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	err := db.migrate()
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TasksTableExists(t *testing.T) {
	db := testDB(t)

	var name string
	err := db.sql.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='task_sessions'",
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "task_sessions", name)
}

// --- Session store tests ---

func TestSessionStore_CreateAndGet(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{})

	created, err := ss.Create("conv-1", "appointments", domain.StatusWaitingIdentity)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", created.ID)
	assert.Equal(t, domain.DefaultMaxRetries, created.MaxRetries)

	got, ok := ss.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, "appointments", got.Skill)
	assert.Equal(t, domain.StatusWaitingIdentity, got.Status)
	assert.True(t, ss.IsActive("conv-1"))
}

func TestSessionStore_Get_NotFound(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{})

	_, ok := ss.Get("missing")
	assert.False(t, ok)
	assert.False(t, ss.IsActive("missing"))
}

func TestSessionStore_Create_ReplacesExisting(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{})

	_, err := ss.Create("conv-1", "appointments", domain.StatusWaitingAction)
	require.NoError(t, err)
	require.NoError(t, ss.MergeData("conv-1", domain.DataPatch{
		IdentityNumber: ptr("12345678901"),
	}))

	_, err = ss.Create("conv-1", "appointments", domain.StatusWaitingIdentity)
	require.NoError(t, err)

	got, ok := ss.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusWaitingIdentity, got.Status)
	assert.Empty(t, got.Data.IdentityNumber, "a new task starts clean")
}

func TestSessionStore_Update_PersistsMutation(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{})

	_, err := ss.Create("conv-1", "appointments", domain.StatusWaitingIdentity)
	require.NoError(t, err)

	updated, err := ss.Update("conv-1", func(s *domain.Session) {
		s.Status = domain.StatusWaitingBirthDate
		s.IncrementRetry(domain.FieldIdentity)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RetryCount(domain.FieldIdentity))

	got, ok := ss.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusWaitingBirthDate, got.Status)
	assert.Equal(t, 1, got.RetryCount(domain.FieldIdentity), "retry counters survive the round trip")
}

func TestSessionStore_Update_NotFound(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{})

	_, err := ss.Update("missing", func(s *domain.Session) {})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_MergeData(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{})

	_, err := ss.Create("conv-1", "appointments", domain.StatusWaitingBirthDate)
	require.NoError(t, err)

	require.NoError(t, ss.MergeData("conv-1", domain.DataPatch{
		IdentityNumber: ptr("12345678901"),
		InitialMessage: ptr("quero cancelar minha consulta"),
	}))
	require.NoError(t, ss.MergeData("conv-1", domain.DataPatch{
		BirthDate: ptr("15/12/1985"),
	}))

	got, ok := ss.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, "12345678901", got.Data.IdentityNumber)
	assert.Equal(t, "15/12/1985", got.Data.BirthDate)
	assert.Equal(t, "quero cancelar minha consulta", got.Data.InitialMessage)
}

func TestSessionStore_Clear(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{})

	_, err := ss.Create("conv-1", "appointments", domain.StatusWaitingIdentity)
	require.NoError(t, err)

	require.NoError(t, ss.Clear("conv-1"))
	assert.False(t, ss.IsActive("conv-1"))

	// Clearing an absent session is not an error.
	assert.NoError(t, ss.Clear("conv-1"))
}

func TestSessionStore_StaleSessionTreatedAsAbsent(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{InactivityWindow: 30 * time.Minute})

	_, err := ss.Create("conv-1", "appointments", domain.StatusWaitingAction)
	require.NoError(t, err)

	// Inactive longer than the window, but not hard-expired.
	backdate(t, ss, "conv-1",
		time.Now().Add(-45*time.Minute),
		time.Now().Add(20*time.Hour),
	)

	_, ok := ss.Get("conv-1")
	assert.False(t, ok, "stale session reads as absent")

	var count int
	err = ss.db.sql.QueryRow("SELECT COUNT(*) FROM task_sessions WHERE id = 'conv-1'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "stale record is deleted on read")
}

func TestSessionStore_HardExpiry(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{})

	_, err := ss.Create("conv-1", "appointments", domain.StatusWaitingAction)
	require.NoError(t, err)

	backdate(t, ss, "conv-1", time.Now(), time.Now().Add(-time.Minute))

	_, ok := ss.Get("conv-1")
	assert.False(t, ok)
}

func TestSessionStore_ActivityRefreshOnUpdate(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{InactivityWindow: 30 * time.Minute})

	_, err := ss.Create("conv-1", "appointments", domain.StatusWaitingAction)
	require.NoError(t, err)

	// Almost stale; an update must push staleness out again.
	backdate(t, ss, "conv-1",
		time.Now().Add(-29*time.Minute),
		time.Now().Add(20*time.Hour),
	)

	_, err = ss.Update("conv-1", func(s *domain.Session) {})
	require.NoError(t, err)

	got, ok := ss.Get("conv-1")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), got.LastActivityAt, 5*time.Second)
}

func TestSessionStore_CorruptDataTreatedAsAbsent(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{})

	_, err := ss.Create("conv-1", "appointments", domain.StatusWaitingAction)
	require.NoError(t, err)

	_, err = ss.db.sql.Exec(`UPDATE task_sessions SET data = 'not-json' WHERE id = 'conv-1'`)
	require.NoError(t, err)

	_, ok := ss.Get("conv-1")
	assert.False(t, ok, "corrupt record reads as absent")

	var count int
	err = ss.db.sql.QueryRow("SELECT COUNT(*) FROM task_sessions WHERE id = 'conv-1'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "corrupt record is deleted")
}

func TestSessionStore_CorruptRetriesTreatedAsAbsent(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{})

	_, err := ss.Create("conv-1", "appointments", domain.StatusWaitingAction)
	require.NoError(t, err)

	_, err = ss.db.sql.Exec(`UPDATE task_sessions SET retries = '[broken' WHERE id = 'conv-1'`)
	require.NoError(t, err)

	_, ok := ss.Get("conv-1")
	assert.False(t, ok)
}

func TestSessionStore_PurgeExpired(t *testing.T) {
	ss := testStore(t, SessionStoreOptions{})

	_, err := ss.Create("gone", "appointments", domain.StatusWaitingAction)
	require.NoError(t, err)
	_, err = ss.Create("kept", "appointments", domain.StatusWaitingAction)
	require.NoError(t, err)

	backdate(t, ss, "gone", time.Now(), time.Now().Add(-time.Hour))

	purged, err := ss.PurgeExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.True(t, ss.IsActive("kept"))
}

func ptr(s string) *string { return &s }
