// Package backup implements the hourly/daily ledger snapshot, verification,
// promotion, pruning, and escalation discipline of spec §4.6. It follows the
// teacher's database package shape (internal/database/db.go): a thin
// wrapper around *sql.DB handles, opened and closed per operation rather
// than held open, since backups run far less often than ledger writes.
package backup

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nathanvale/capture-bridge/internal/capturebridge"
)

// Paths resolves the backup directory layout rooted at a vault (spec
// §5 "Vault layout").
type Paths struct {
	VaultRoot string
}

func (p Paths) hourlyDir() string { return filepath.Join(p.VaultRoot, ".capture-bridge", ".backups", "hourly") }
func (p Paths) dailyDir() string  { return filepath.Join(p.VaultRoot, ".capture-bridge", ".backups", "daily") }
func (p Paths) LedgerFile() string {
	return filepath.Join(p.VaultRoot, ".capture-bridge", "ledger.sqlite")
}

// HourlyPath returns the path an hourly snapshot for instant t would live
// at (UTC YYYYMMDD-HH components).
func (p Paths) HourlyPath(t time.Time) string {
	t = t.UTC()
	return filepath.Join(p.hourlyDir(), fmt.Sprintf("ledger-%s-%02d.sqlite", t.Format("20060102"), t.Hour()))
}

// DailyPath returns the path a daily promotion for date t would live at.
func (p Paths) DailyPath(t time.Time) string {
	return filepath.Join(p.dailyDir(), fmt.Sprintf("ledger-%s.sqlite", t.UTC().Format("20060102")))
}

// Result carries the outcome of create_backup.
type Result struct {
	Path     string
	Duration time.Duration
}

// CreateBackup checkpoints the live ledger's WAL (best-effort) and copies
// the ledger file to its hourly snapshot path with mode 0600 (spec §4.6).
func CreateBackup(db *sql.DB, paths Paths, now time.Time) (Result, error) {
	start := time.Now()

	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		// Best-effort: a failed checkpoint does not abort the snapshot. Only
		// the main ledger file is copied, so changes still sitting in the
		// WAL sidecar are then missing from the snapshot.
	}

	if err := os.MkdirAll(paths.hourlyDir(), 0700); err != nil {
		return Result{}, capturebridge.New(capturebridge.CodeEACCES, "create hourly backup dir", err)
	}

	dest := paths.HourlyPath(now)
	if err := copyFileMode0600(paths.LedgerFile(), dest); err != nil {
		return Result{}, err
	}

	return Result{Path: dest, Duration: time.Since(start)}, nil
}

// copyFileMode0600 copies src to dst via a temp-file-then-rename within
// dst's own directory, the same discipline as the atomic vault writer,
// and sets the final mode to 0600 regardless of the source file's mode.
func copyFileMode0600(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return classifyIOErr(err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".backup-*.tmp")
	if err != nil {
		return classifyIOErr(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return classifyIOErr(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return classifyIOErr(err)
	}
	if err := tmp.Close(); err != nil {
		return classifyIOErr(err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return classifyIOErr(err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return classifyIOErr(err)
	}
	return nil
}

func classifyIOErr(err error) error {
	if os.IsPermission(err) {
		return capturebridge.New(capturebridge.CodeEACCES, "backup I/O permission error", err)
	}
	if os.IsNotExist(err) {
		return capturebridge.New(capturebridge.CodeFilePermission, "backup source missing", err)
	}
	return capturebridge.New(capturebridge.CodeStagingConstraint, "backup I/O error", err)
}
