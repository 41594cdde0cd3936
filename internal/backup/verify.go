package backup

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nathanvale/capture-bridge/internal/capturebridge"
)

// VerifyOptions controls which optional checks verify_backup performs
// (spec §4.6).
type VerifyOptions struct {
	Live        string // path to the live ledger, optional hash comparison
	RestoreTest bool
}

// VerifyResult reports the outcome of verify_backup.
type VerifyResult struct {
	IntegrityOK bool
	HashMatch   bool
	HashChecked bool
	RestoreOK   bool
}

var requiredTables = []string{"captures", "exports_audit", "errors_log", "sync_state"}

// VerifyBackup runs the integrity check required for every backup attempt,
// plus the two optional checks spec §4.6 describes.
func VerifyBackup(backupPath string, opts VerifyOptions) (VerifyResult, error) {
	var result VerifyResult

	db, err := sql.Open("sqlite3", "file:"+backupPath+"?mode=ro")
	if err != nil {
		return result, capturebridge.New(capturebridge.CodeBackupIntegrity, "open backup read-only", err)
	}
	defer db.Close()

	ok, err := integrityCheck(db)
	if err != nil {
		return result, capturebridge.New(capturebridge.CodeBackupIntegrity, "integrity_check failed", err)
	}
	result.IntegrityOK = ok
	if !ok {
		return result, capturebridge.New(capturebridge.CodeBackupIntegrity, "integrity_check did not return ok", nil)
	}

	if opts.Live != "" {
		result.HashChecked = true
		match, err := hashesMatch(backupPath, opts.Live)
		if err != nil {
			return result, capturebridge.New(capturebridge.CodeBackupIntegrity, "live hash comparison failed", err)
		}
		// A mismatch is not an error: it's the expected signal that writes
		// happened since the snapshot (spec §4.6, point 2).
		result.HashMatch = match
	}

	if opts.RestoreTest {
		if err := restoreTest(backupPath); err != nil {
			return result, err
		}
		result.RestoreOK = true
	}

	return result, nil
}

func integrityCheck(db *sql.DB) (bool, error) {
	row := db.QueryRow("PRAGMA integrity_check")
	var status string
	if err := row.Scan(&status); err != nil {
		return false, err
	}
	return status == "ok", nil
}

func hashesMatch(a, b string) (bool, error) {
	ha, err := streamingSHA256(a)
	if err != nil {
		return false, err
	}
	hb, err := streamingSHA256(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

func streamingSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// restoreTest copies backupPath to an OS temp file, opens it read-only,
// re-runs integrity_check, confirms all four tables exist, runs
// foreign_key_check, and samples a COUNT query. The temp file is always
// removed, on every exit path, via defer.
func restoreTest(backupPath string) error {
	tmp, err := os.CreateTemp("", "capture-bridge-restore-*.sqlite")
	if err != nil {
		return capturebridge.New(capturebridge.CodeBackupIntegrity, "create restore-test temp file", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := copyFileMode0600(backupPath, tmpPath); err != nil {
		return err
	}

	db, err := sql.Open("sqlite3", "file:"+tmpPath+"?mode=ro")
	if err != nil {
		return capturebridge.New(capturebridge.CodeBackupIntegrity, "open restore-test copy", err)
	}
	defer db.Close()

	ok, err := integrityCheck(db)
	if err != nil || !ok {
		return capturebridge.New(capturebridge.CodeBackupIntegrity, "restore-test integrity_check failed", err)
	}

	for _, table := range requiredTables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return capturebridge.New(capturebridge.CodeBackupMissingTable, fmt.Sprintf("table %q missing from restored backup", table), nil)
		}
		if err != nil {
			return capturebridge.New(capturebridge.CodeBackupIntegrity, "check table existence", err)
		}
	}

	rows, err := db.Query("PRAGMA foreign_key_check")
	if err != nil {
		return capturebridge.New(capturebridge.CodeBackupIntegrity, "foreign_key_check failed", err)
	}
	hasViolation := rows.Next()
	rows.Close()
	if hasViolation {
		return capturebridge.New(capturebridge.CodeBackupForeignKey, "foreign_key_check reported violations", nil)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM captures").Scan(&count); err != nil {
		return capturebridge.New(capturebridge.CodeBackupIntegrity, "sample captures count failed", err)
	}

	return nil
}
