package credentials

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/nathanvale/capture-bridge/internal/capturebridge"
	"github.com/nathanvale/capture-bridge/internal/ledger"
)

const maxAuthFailures = 5

// FailureTracker persists the gmail_auth_failures counter and
// last_gmail_auth timestamp in sync_state (spec §7). A successful
// authorize or refresh resets the counter to 0; at >= 5 consecutive
// failures, CheckAllowed refuses further attempts.
type FailureTracker struct {
	Store *ledger.Store
	Now   func() time.Time
}

// NewFailureTracker builds a tracker against store using the real clock.
func NewFailureTracker(store *ledger.Store) *FailureTracker {
	return &FailureTracker{Store: store, Now: time.Now}
}

// CheckAllowed returns AUTH_MAX_FAILURES if the counter has already
// reached the ceiling; callers must check this before attempting a
// refresh or authorize call.
func (t *FailureTracker) CheckAllowed() error {
	n, err := t.count()
	if err != nil {
		return err
	}
	if n >= maxAuthFailures {
		return capturebridge.Fatal(capturebridge.CodeAuthMaxFailures, "auth failure counter at ceiling, refusing to proceed", nil)
	}
	return nil
}

func (t *FailureTracker) count() (int, error) {
	raw, found, err := ledger.GetSyncState(t.Store.DB(), ledger.KeyGmailAuthFailures)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// RecordSuccess resets the counter to 0 and stamps last_gmail_auth.
func (t *FailureTracker) RecordSuccess() error {
	now := t.nowISO()
	return t.Store.WithTransaction(func(tx *sql.Tx) error {
		if err := ledger.UpsertSyncState(tx, ledger.KeyGmailAuthFailures, "0", now); err != nil {
			return err
		}
		return ledger.UpsertSyncState(tx, ledger.KeyLastGmailAuth, now, now)
	})
}

// RecordFailure increments the counter.
func (t *FailureTracker) RecordFailure() error {
	n, err := t.count()
	if err != nil {
		return err
	}
	now := t.nowISO()
	return t.Store.WithTransaction(func(tx *sql.Tx) error {
		return ledger.UpsertSyncState(tx, ledger.KeyGmailAuthFailures, strconv.Itoa(n+1), now)
	})
}

func (t *FailureTracker) nowISO() string {
	return t.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
