// Package storage opens and migrates the SQLite database backing the
// catalog and the borrowing ledger. The database is a single local file;
// all writers share one connection pool with immediate-lock transactions so
// that check-and-flip sequences in the ledger are serialized by SQLite.
package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Open opens (creating if necessary) the SQLite database at path and applies
// pending migrations. The returned handle is safe for concurrent use.
func Open(path string) (*sqlx.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?%s", path, dsnOptions)

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// SQLite permits a single writer; more connections only add lock
	// contention and SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database %s not accessible: %w", path, err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database %s: %w", path, err)
	}

	return db, nil
}

// dsnOptions configures the connection: immediate transactions take the
// write lock at BEGIN (not at first write), busy_timeout bounds lock waits,
// and foreign keys are enforced.
const dsnOptions = "_txlock=immediate" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=journal_mode(WAL)"
