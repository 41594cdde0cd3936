package ledger

import (
	"database/sql"
)

// ExportMode enumerates exports_audit.mode (spec §3.1, §4.4).
type ExportMode string

const (
	ModeInitial       ExportMode = "initial"
	ModeDuplicateSkip ExportMode = "duplicate_skip"
	ModeSelfHeal      ExportMode = "self_heal"
	ModeConflict      ExportMode = "conflict"
	ModePlaceholder   ExportMode = "placeholder"
)

// InsertAudit records one export attempt's outcome within tx.
func InsertAudit(tx *sql.Tx, captureID, vaultPath, contentHash string, mode ExportMode, exportedAt string) error {
	_, err := tx.Exec(
		`INSERT INTO exports_audit (capture_id, vault_path, content_hash, exported_at, mode)
		 VALUES (?, ?, ?, ?, ?)`,
		captureID, vaultPath, contentHash, exportedAt, string(mode),
	)
	return mapErr(err)
}

// AuditStore adapts a Store to vault.AuditLookup: does any audit row exist
// for this vault path, and with what hash.
type AuditStore struct {
	q Querier
}

// NewAuditStore builds an AuditStore over q (a *sql.DB or *sql.Tx).
func NewAuditStore(q Querier) *AuditStore {
	return &AuditStore{q: q}
}

// LookupByPath implements vault.AuditLookup. It returns the most recently
// recorded hash for path, preferring the last audit row written.
func (a *AuditStore) LookupByPath(path string) (string, bool, error) {
	row := a.q.QueryRow(
		`SELECT content_hash FROM exports_audit WHERE vault_path = ? ORDER BY id DESC LIMIT 1`,
		path,
	)
	var hash string
	if err := row.Scan(&hash); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, mapErr(err)
	}
	return hash, true, nil
}

// CountInitialAudits returns how many mode='initial' rows exist for
// captureID. Used by tests asserting invariant 5 (at most one).
func CountInitialAudits(q Querier, captureID string) (int, error) {
	row := q.QueryRow(
		`SELECT COUNT(*) FROM exports_audit WHERE capture_id = ? AND mode = 'initial'`,
		captureID,
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}
