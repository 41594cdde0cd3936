package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nathanvale/capture-bridge/internal/capturebridge"
)

// PromoteResult reports which hourly file a daily promotion selected and
// why (spec example 7).
type PromoteResult struct {
	SourcePath     string
	DestPath       string
	SelectedReason string // "noon_backup" or "earliest_available"
	Skipped        bool   // a daily file already existed for this date
}

// PromoteDaily selects the day's noon hourly backup if present, else the
// earliest available hour, verifies it, and copies it into daily/ with
// mode 0600. It is idempotent: if a daily file already exists for date,
// it does nothing and reports Skipped.
func PromoteDaily(paths Paths, date time.Time) (PromoteResult, error) {
	date = date.UTC()
	dest := paths.DailyPath(date)

	if _, err := os.Stat(dest); err == nil {
		return PromoteResult{DestPath: dest, Skipped: true}, nil
	}

	entries, err := os.ReadDir(paths.hourlyDir())
	if err != nil {
		return PromoteResult{}, capturebridge.New(capturebridge.CodeBackupIntegrity, "list hourly backups", err)
	}

	prefix := "ledger-" + date.Format("20060102") + "-"
	var hours []string
	for _, e := range entries {
		name := e.Name()
		if len(name) == len(prefix)+2+len(".sqlite") && name[:len(prefix)] == prefix {
			hours = append(hours, name)
		}
	}
	if len(hours) == 0 {
		return PromoteResult{}, capturebridge.New(capturebridge.CodeBackupMissingTable, "no hourly backups found for date", nil)
	}
	sort.Strings(hours)

	noon := prefix + "12.sqlite"
	var chosen, reason string
	for _, h := range hours {
		if h == noon {
			chosen = h
			reason = "noon_backup"
			break
		}
	}
	if chosen == "" {
		chosen = hours[0]
		reason = "earliest_available"
	}

	src := filepath.Join(paths.hourlyDir(), chosen)

	if _, err := VerifyBackup(src, VerifyOptions{}); err != nil {
		return PromoteResult{}, fmt.Errorf("backup: promotion verification failed for %s: %w", chosen, err)
	}

	if err := os.MkdirAll(paths.dailyDir(), 0700); err != nil {
		return PromoteResult{}, capturebridge.New(capturebridge.CodeEACCES, "create daily backup dir", err)
	}
	if err := copyFileMode0600(src, dest); err != nil {
		return PromoteResult{}, err
	}

	return PromoteResult{SourcePath: src, DestPath: dest, SelectedReason: reason}, nil
}

// PruneDaily keeps the newest `keep` daily backups by lexicographic
// filename (which matches chronological order under the ledger-YYYYMMDD
// naming scheme) and deletes the rest.
func PruneDaily(paths Paths, keep int) ([]string, error) {
	entries, err := os.ReadDir(paths.dailyDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, capturebridge.New(capturebridge.CodeBackupIntegrity, "list daily backups", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) <= keep {
		return nil, nil
	}

	toDelete := names[:len(names)-keep]
	var deleted []string
	for _, name := range toDelete {
		path := filepath.Join(paths.dailyDir(), name)
		if err := os.Remove(path); err != nil {
			return deleted, capturebridge.New(capturebridge.CodeEACCES, "prune daily backup", err)
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}
