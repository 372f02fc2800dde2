package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE worker_states (
	user_id TEXT PRIMARY KEY,
	last_run_at TIMESTAMP NOT NULL,
	cooldown_period_seconds INTEGER NOT NULL,
	observed_kinds TEXT NOT NULL,
	enabled BOOLEAN NOT NULL,
	metadata TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE contacts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT,
	company TEXT,
	email TEXT,
	status TEXT,
	inserted_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	deleted_at TIMESTAMP
);
CREATE TABLE deals (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT,
	value REAL,
	stage TEXT,
	probability INTEGER,
	close_date DATE,
	inserted_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	deleted_at TIMESTAMP
);
CREATE TABLE events (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT,
	starts_at TIMESTAMP,
	location TEXT,
	status TEXT,
	inserted_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	deleted_at TIMESTAMP
);
CREATE TABLE action_items (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	icon TEXT,
	title TEXT NOT NULL,
	category TEXT,
	dismissed BOOLEAN NOT NULL DEFAULT 0,
	dedup_key TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, dedup_key)
);
CREATE TABLE notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	kind TEXT,
	priority TEXT,
	title TEXT NOT NULL,
	message TEXT,
	read BOOLEAN NOT NULL DEFAULT 0,
	dedup_key TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	delivered_at TIMESTAMP,
	UNIQUE (user_id, dedup_key)
);
`

// testNow is a fixed second-aligned UTC clock for repository tests
var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(context.Background(), testSchema)
	require.NoError(t, err)
	return db
}

func insertDeal(t *testing.T, db *DB, userID uuid.UUID, title string, value float64, stage string, probability int, createdAt, updatedAt time.Time, deleted bool) uuid.UUID {
	t.Helper()

	id := uuid.New()
	var deletedAt any
	if deleted {
		deletedAt = updatedAt
	}
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO deals (id, user_id, title, value, stage, probability, inserted_at, updated_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, title, value, stage, probability, createdAt, updatedAt, deletedAt)
	require.NoError(t, err)
	return id
}

func insertContact(t *testing.T, db *DB, userID uuid.UUID, name, company string, createdAt, updatedAt time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO contacts (id, user_id, name, company, email, status, inserted_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, name, company, nil, "active", createdAt, updatedAt)
	require.NoError(t, err)
	return id
}

func insertActionItem(t *testing.T, db *DB, userID uuid.UUID, title string, dismissed bool) {
	t.Helper()

	id := uuid.New()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO action_items (id, user_id, icon, title, category, dismissed, dedup_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, "📌", title, "follow_up", dismissed, id.String(), testNow)
	require.NoError(t, err)
}

func countRows(t *testing.T, db *DB, query string, args ...any) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}
