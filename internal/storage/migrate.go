package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 1

// Migrate ensures the schema exists and is upgraded to SchemaVersion.
// Safe to call repeatedly; already-applied versions are skipped.
func Migrate(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			isbn TEXT NOT NULL UNIQUE,
			available INTEGER NOT NULL DEFAULT 1,
			created_at_ms INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create books table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			phone TEXT NULL,
			created_at_ms INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create members table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS loans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			book_id INTEGER NOT NULL,
			member_id INTEGER NOT NULL,
			borrowed_at_ms INTEGER NOT NULL,
			returned_at_ms INTEGER NULL,
			is_returned INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(book_id) REFERENCES books(id),
			FOREIGN KEY(member_id) REFERENCES members(id)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create loans table: %w", err)
	}

	// One open loan per book at most; enforced transactionally in the
	// ledger, backed up here by a partial unique index.
	_, err = tx.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_open_book
			ON loans(book_id) WHERE is_returned = 0;
	`)
	if err != nil {
		return fmt.Errorf("migrate: create open-loan index: %w", err)
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_loans_member ON loans(member_id);`)
	if err != nil {
		return fmt.Errorf("migrate: create member-loan index: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?);`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}

	return nil
}
