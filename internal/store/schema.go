package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// CurrentVersion is the current schema version.
const CurrentVersion = 1

// OpenDB opens the SQLite database at path with the pragmas the store
// depends on.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// WAL lets the REST fallback read while a connection's dispatch writes.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	return db, nil
}

// Migrate brings the database to the current schema version, initializing
// it from scratch when no schema exists.
func Migrate(db *sql.DB) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return initDB(db)
	}
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	version, err := schemaVersion(db)
	if err != nil {
		return err
	}
	if version == 0 {
		return initDB(db)
	}
	if version > CurrentVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, CurrentVersion)
	}

	// No migrations yet beyond v1.
	return nil
}

// schemaVersion returns the stored schema version, 0 when unset.
func schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

// initDB creates the full schema inside one transaction.
func initDB(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			message_id  TEXT PRIMARY KEY,
			sender_id   TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			content     TEXT NOT NULL,
			read        INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
