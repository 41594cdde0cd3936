package backup

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nathanvale/capture-bridge/internal/ledger"
)

// ResultRecorder receives the backup_verification_result metric on every
// attempt (spec §4.6), success or failure.
type ResultRecorder interface {
	ObserveBackupVerification(success bool)
}

// noopRecorder is used when the caller does not wire a recorder, so the
// orchestrator never needs a nil check at every call site.
type noopRecorder struct{}

func (noopRecorder) ObserveBackupVerification(bool) {}

// Orchestrator ties CreateBackup, VerifyBackup, and the escalation state
// machine together against the ledger's sync_state table, the way the
// teacher's worker packages compose a store with a policy object
// (internal/workers/tracking_updater.go).
type Orchestrator struct {
	Store    *ledger.Store
	Paths    Paths
	Recorder ResultRecorder
	Now      func() time.Time
}

// NewOrchestrator builds an Orchestrator with a real clock and a no-op
// recorder; callers that care about metrics set Recorder after construction.
func NewOrchestrator(store *ledger.Store, paths Paths) *Orchestrator {
	return &Orchestrator{Store: store, Paths: paths, Recorder: noopRecorder{}, Now: time.Now}
}

func (o *Orchestrator) nowISO() string {
	return o.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func (o *Orchestrator) recorder() ResultRecorder {
	if o.Recorder == nil {
		return noopRecorder{}
	}
	return o.Recorder
}

// RunHourly performs create_backup then verify_backup (integrity + live
// hash, no restore test) and applies the escalation transition.
func (o *Orchestrator) RunHourly() (Result, VerifyResult, error) {
	return o.run(VerifyOptions{Live: o.Paths.LedgerFile()})
}

// ForceBackupAndVerify implements force_backup_and_verify(): creates a
// backup and verifies it with the restore test enabled, applying the same
// transition rules as every other attempt.
func (o *Orchestrator) ForceBackupAndVerify() (Result, VerifyResult, error) {
	return o.run(VerifyOptions{Live: o.Paths.LedgerFile(), RestoreTest: true})
}

func (o *Orchestrator) run(opts VerifyOptions) (Result, VerifyResult, error) {
	now := o.Now()
	snap, err := CreateBackup(o.Store.DB(), o.Paths, now)
	if err != nil {
		o.applyOutcome(false)
		return snap, VerifyResult{}, fmt.Errorf("backup: create_backup failed: %w", err)
	}

	vr, err := VerifyBackup(snap.Path, opts)
	o.applyOutcome(err == nil)
	if err != nil {
		return snap, vr, fmt.Errorf("backup: verify_backup failed: %w", err)
	}
	return snap, vr, nil
}

// applyOutcome loads the current escalation state, transitions it, writes
// it back, and emits the metric — all in one ledger transaction.
func (o *Orchestrator) applyOutcome(success bool) {
	now := o.nowISO()
	_ = o.Store.WithTransaction(func(tx *sql.Tx) error {
		raw, _, err := ledger.GetSyncState(tx, ledger.KeyBackupVerificationState)
		if err != nil {
			return err
		}
		state, err := UnmarshalState(raw)
		if err != nil {
			state = EscalationState{Status: StatusHealthy}
		}
		if success {
			state = state.OnSuccess(now)
		} else {
			state = state.OnFailure(now)
		}
		serialized, err := MarshalState(state)
		if err != nil {
			return err
		}
		return ledger.UpsertSyncState(tx, ledger.KeyBackupVerificationState, serialized, now)
	})
	o.recorder().ObserveBackupVerification(success)
}
