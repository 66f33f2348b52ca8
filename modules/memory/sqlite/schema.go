package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application. Timestamps are
// stored as Unix nanoseconds.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS facts (
		id          TEXT    PRIMARY KEY,
		user_id     TEXT    NOT NULL,
		topic       TEXT    NOT NULL,
		fact        TEXT    NOT NULL,
		category    TEXT    NOT NULL DEFAULT 'general',
		tags        TEXT    NOT NULL DEFAULT '[]',
		examples    TEXT    NOT NULL DEFAULT '[]',
		source      TEXT    NOT NULL DEFAULT 'user',
		confidence  REAL    NOT NULL DEFAULT 1,
		usage_count INTEGER NOT NULL DEFAULT 0,
		last_used   INTEGER NOT NULL,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL,
		UNIQUE (user_id, topic)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_facts_recency ON facts(user_id, last_used DESC, confidence DESC)`,

	`CREATE TABLE IF NOT EXISTS preferences (
		user_id        TEXT    PRIMARY KEY,
		style          TEXT    NOT NULL DEFAULT 'friendly',
		learned_facts  INTEGER NOT NULL DEFAULT 0,
		total_messages INTEGER NOT NULL DEFAULT 0,
		last_active    INTEGER NOT NULL,
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS preference_values (
		user_id TEXT NOT NULL,
		key     TEXT NOT NULL,
		value   TEXT NOT NULL,
		PRIMARY KEY (user_id, key)
	)`,

	`CREATE TABLE IF NOT EXISTS favorite_topics (
		user_id  TEXT    NOT NULL,
		topic    TEXT    NOT NULL,
		added_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, topic)
	)`,

	`CREATE TABLE IF NOT EXISTS turns (
		user_id  TEXT    NOT NULL,
		seq      INTEGER NOT NULL,
		role     TEXT    NOT NULL,
		text     TEXT    NOT NULL DEFAULT '',
		category TEXT    NOT NULL DEFAULT '',
		at       INTEGER NOT NULL,
		PRIMARY KEY (user_id, seq)
	)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	// Ensure schema_version table exists first.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
