package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create task sessions",
		SQL: `
			CREATE TABLE task_sessions (
				id               TEXT PRIMARY KEY,
				skill            TEXT NOT NULL,
				status           TEXT NOT NULL,
				data             TEXT NOT NULL DEFAULT '{}',
				retries          TEXT NOT NULL DEFAULT '{}',
				max_retries      INTEGER NOT NULL DEFAULT 3,
				started_at       TEXT NOT NULL,
				last_activity_at TEXT NOT NULL,
				expires_at       TEXT NOT NULL
			);

			CREATE INDEX idx_task_sessions_expires ON task_sessions (expires_at);
			CREATE INDEX idx_task_sessions_skill ON task_sessions (skill);
		`,
	},
}
