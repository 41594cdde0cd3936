// Package ledger implements the four-table embedded relational store that
// is the single source of truth for captures, export audit records, error
// diagnostics, and sync-state cursors (spec §3, §4.5). It follows the
// teacher's database package shape: a thin *sql.DB wrapper, an idempotent
// schema migration run at Open, and WAL/foreign-key/busy_timeout pragmas
// set up front (internal/database/db.go, internal/email/state.go).
package ledger

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a *sql.DB holding exactly the four tables named in spec §3.1:
// captures, exports_audit, errors_log, sync_state. No other table is ever
// created by the core; future schema changes are migrations, not feature
// code reaching for ALTER TABLE ad hoc.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the ledger at path and runs the
// schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("ledger: set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}
	return s, nil
}

// OpenReadOnly opens the ledger at path without running migrations, for the
// diagnose command's read-only report of persisted sync_state values.
func OpenReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger: open read-only: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping read-only: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS captures (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	raw_content TEXT,
	content_hash TEXT,
	status TEXT NOT NULL,
	meta_json TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS exports_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	capture_id TEXT NOT NULL REFERENCES captures(id),
	vault_path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	exported_at TEXT NOT NULL,
	mode TEXT NOT NULL CHECK (mode IN ('initial','duplicate_skip','self_heal','conflict','placeholder'))
);

-- At most one mode='initial' audit row per capture (spec invariant 5).
CREATE UNIQUE INDEX IF NOT EXISTS idx_exports_audit_initial_unique
	ON exports_audit(capture_id)
	WHERE mode = 'initial';

CREATE INDEX IF NOT EXISTS idx_exports_audit_capture ON exports_audit(capture_id);
CREATE INDEX IF NOT EXISTS idx_exports_audit_path ON exports_audit(vault_path);

CREATE TABLE IF NOT EXISTS errors_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	code INTEGER,
	message TEXT NOT NULL,
	context TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the underlying *sql.DB for callers that need a raw handle
// (e.g. the backup module's WAL checkpoint before a snapshot copy).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Querier is satisfied by both *sql.DB and *sql.Tx, letting read helpers
// run either inside or outside a transaction.
type Querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}
