package ledger

// AppendError appends one append-only diagnostic row to errors_log (spec
// §3.1). It never references other tables and is never itself rolled back
// by a failing caller transaction when invoked via db.Exec directly
// (callers that want the log entry to survive a rolled-back staging
// transaction should call this against the Store's *sql.DB, not a *sql.Tx).
func (s *Store) AppendError(source string, code int, message, context, now string) error {
	_, err := s.db.Exec(
		`INSERT INTO errors_log (source, code, message, context, created_at) VALUES (?, ?, ?, ?, ?)`,
		source, code, message, context, now,
	)
	return mapErr(err)
}
