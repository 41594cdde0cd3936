package ledger

import "database/sql"

// Recognized sync_state keys (spec §3.1).
const (
	KeyGmailHistoryID          = "gmail_history_id"
	KeyLastGmailAuth           = "last_gmail_auth"
	KeyGmailAuthFailures       = "gmail_auth_failures"
	KeyBackupVerificationState = "backup_verification_state"
)

// UpsertSyncState writes key=value within tx using the
// INSERT ... ON CONFLICT upsert specified in spec §4.5.
func UpsertSyncState(tx *sql.Tx, key, value, now string) error {
	_, err := tx.Exec(
		`INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now,
	)
	return mapErr(err)
}

// GetSyncState reads a sync_state value. Returns ("", false, nil) if the
// key is unset.
func GetSyncState(q Querier, key string) (string, bool, error) {
	row := q.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, mapErr(err)
	}
	return v, true, nil
}

// GetSyncStateWithTimestamp reads a sync_state value together with the
// ISO-8601 timestamp of its last write, used for the gmail_cursor_age_seconds
// gauge (spec §4.7).
func GetSyncStateWithTimestamp(q Querier, key string) (value, updatedAt string, found bool, err error) {
	row := q.QueryRow(`SELECT value, updated_at FROM sync_state WHERE key = ?`, key)
	if err := row.Scan(&value, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return "", "", false, nil
		}
		return "", "", false, mapErr(err)
	}
	return value, updatedAt, true, nil
}
