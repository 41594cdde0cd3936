// Package capturebridge holds error types shared across the ledger, vault,
// backup, and poller subsystems.
package capturebridge

import "fmt"

// Code is a taxonomy tag, not a Go type per error site. The same Code can be
// produced by several subsystems (e.g. EACCES from both the atomic writer
// and the backup copier).
type Code string

const (
	// Credential / auth
	CodeAuthInvalidClient Code = "AUTH_INVALID_CLIENT"
	CodeAuthInvalidGrant  Code = "AUTH_INVALID_GRANT"
	CodeAuthMaxFailures   Code = "AUTH_MAX_FAILURES"
	CodeFileParseError    Code = "FILE_PARSE_ERROR"
	CodeFilePermission    Code = "FILE_PERMISSION_ERROR"
	CodeAPIRateLimited    Code = "API_RATE_LIMITED"

	// Staging
	CodeStagingInvalidMetadata Code = "staging.invalid_metadata"
	CodeStagingDatabaseLocked  Code = "staging.database_locked"
	CodeStagingDuplicateID     Code = "staging.duplicate_id"
	CodeStagingDiskFull        Code = "staging.disk_full"
	CodeStagingConstraint      Code = "staging.constraint"

	// Export / filesystem
	CodeEACCES         Code = "EACCES"
	CodeEEXIST         Code = "EEXIST"
	CodeENETDOWN       Code = "ENETDOWN"
	CodeENOSPC         Code = "ENOSPC"
	CodeEROFS          Code = "EROFS"
	CodePathEscape     Code = "path.escape"
	CodeExportConflict Code = "export.conflict"

	// Backup
	CodeBackupIntegrity    Code = "backup.integrity_failure"
	CodeBackupForeignKey   Code = "backup.foreign_key_violation"
	CodeBackupMissingTable Code = "backup.missing_table"

	// Poller
	CodePollerCircuitOpen Code = "poller.circuit_open"
)

// Error is the structured error carried to every caller, per spec §6/§7:
// {code, message, recoverable}. Cause is preserved so the original error is
// never lost on the way up.
type Error struct {
	Code        Code
	Message     string
	Recoverable bool
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a recoverable Error.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Recoverable: true, Cause: cause}
}

// Fatal builds a non-recoverable Error.
func Fatal(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Recoverable: false, Cause: cause}
}

// IsRecoverable reports whether err (or any error it wraps) is a *Error
// marked recoverable. A non-*Error is treated as recoverable by default,
// since only the filesystem/staging/backup layers classify errors.
func IsRecoverable(err error) bool {
	var cbErr *Error
	if asError(err, &cbErr) {
		return cbErr.Recoverable
	}
	return true
}

// asError is a small local errors.As to avoid importing errors in callers
// that only need this helper.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
