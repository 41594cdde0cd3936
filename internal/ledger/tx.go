package ledger

import (
	"database/sql"
	"errors"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/nathanvale/capture-bridge/internal/capturebridge"
)

// WithTransaction runs fn inside a single ledger transaction: commits if fn
// returns nil, rolls back otherwise. Every state-advancing action in this
// system (cursor advancement, capture staging, export audit + status)
// happens inside one such transactional window (spec §2, §5).
func (s *Store) WithTransaction(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return mapErr(err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return mapErr(err)
		}
		return mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

// mapErr maps a native sqlite3 error to the staging error taxonomy of spec
// §4.5/§7. Errors that are already *capturebridge.Error pass through
// unchanged so callers can wrap domain errors before returning them from a
// WithTransaction closure.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var cbErr *capturebridge.Error
	if errors.As(err, &cbErr) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return capturebridge.New(capturebridge.CodeStagingDatabaseLocked, "database busy", err)
		case sqlite3.ErrConstraint:
			if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
				return capturebridge.New(capturebridge.CodeStagingDuplicateID, "duplicate id", err)
			}
			return capturebridge.New(capturebridge.CodeStagingConstraint, "constraint violation", err)
		case sqlite3.ErrFull:
			return capturebridge.Fatal(capturebridge.CodeStagingDiskFull, "disk full", err)
		}
	}

	if strings.Contains(err.Error(), "database is locked") {
		return capturebridge.New(capturebridge.CodeStagingDatabaseLocked, "database busy", err)
	}

	return capturebridge.New(capturebridge.CodeStagingConstraint, "ledger error", err)
}
