package exporter

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nathanvale/capture-bridge/internal/capture"
	"github.com/nathanvale/capture-bridge/internal/capturebridge"
	"github.com/nathanvale/capture-bridge/internal/hashing"
	"github.com/nathanvale/capture-bridge/internal/ledger"
	"github.com/nathanvale/capture-bridge/internal/vault"
)

// Input is everything the exporter needs about one capture to produce its
// export (spec §4.11).
type Input struct {
	CaptureID   string
	Source      capture.Source
	Body        string
	ContentHash string
	CapturedAt  time.Time
	Meta        map[string]string
	FromStatus  capture.Status
}

// Outcome reports what the exporter did.
type Outcome struct {
	Decision vault.Decision
	Mode     ledger.ExportMode
	Path     string
	Wrote    bool
}

// Exporter ties the path resolver, collision detector, atomic writer, and
// ledger store together into the single transactional unit of spec §4.11.
type Exporter struct {
	Writer   *vault.AtomicWriter
	Paths    *vault.PathResolver
	Detector *vault.CollisionDetector
	Store    *ledger.Store
}

func New(writer *vault.AtomicWriter, paths *vault.PathResolver, detector *vault.CollisionDetector, store *ledger.Store) *Exporter {
	return &Exporter{Writer: writer, Paths: paths, Detector: detector, Store: store}
}

// Export runs the full export pipeline for one capture. The collision check
// and the audit record both key on the hash of the rendered Markdown file,
// not the capture's raw content hash: render() always produces the file that
// Decide/hashFile will see on disk, so only the rendered hash can ever
// compare equal to it on a retry. Rendering is a pure function of in, so
// rendering before Decide costs nothing and makes that hash available for
// the comparison itself.
func (e *Exporter) Export(in Input) (Outcome, error) {
	relPath, err := e.Paths.InboxPath(in.CaptureID)
	if err != nil {
		return Outcome{}, err
	}

	absPath, err := e.Paths.Resolve(relPath)
	if err != nil {
		return Outcome{}, err
	}

	rendered := render(in)
	renderedHash := hashing.Hash(rendered)

	decision, _, err := e.Detector.Decide(absPath, relPath, renderedHash)
	if err != nil {
		return Outcome{}, err
	}

	isPlaceholder := in.FromStatus == capture.StatusFailedTranscription
	mode := decisionToMode(decision)
	if isPlaceholder && (decision == vault.DecisionInitial || decision == vault.DecisionSelfHeal) {
		mode = ledger.ModePlaceholder
	}
	outcome := Outcome{Decision: decision, Mode: mode, Path: relPath}

	// A conflict means a file exists at this path with content we did not
	// write and the ledger did not claim. Committing that as a handled
	// duplicate would permanently bury a capture's content behind an
	// immutable terminal status. Surface it instead and leave the capture's
	// status untouched so a later run (after the collision is resolved by
	// hand) can retry.
	if decision == vault.DecisionConflict {
		return outcome, capturebridge.New(capturebridge.CodeExportConflict,
			fmt.Sprintf("export target %s already holds content that does not match capture %s", relPath, in.CaptureID), nil)
	}

	if decision == vault.DecisionInitial || decision == vault.DecisionSelfHeal {
		if err := e.Writer.Write(absPath, []byte(rendered)); err != nil {
			return outcome, err
		}
		outcome.Wrote = true
	}

	toStatus := terminalStatusFor(decision, isPlaceholder)
	err = e.Store.WithTransaction(func(tx *sql.Tx) error {
		if err := ledger.InsertAudit(tx, in.CaptureID, relPath, renderedHash, mode, nowISO(time.Now())); err != nil {
			return err
		}

		// A capture already sitting in a terminal status has nothing left to
		// advance: this happens whenever Export runs again on a row it (or a
		// prior, now-crashed run) already finished, duplicate_skip chief among
		// them. Advancing it again would trip the terminal-state invariant in
		// ledger.AdvanceStatus for no reason, so the audit row above is the
		// only record of this attempt.
		row, err := ledger.GetCapture(tx, in.CaptureID)
		if err != nil {
			return err
		}
		if row != nil && capture.IsTerminal(row.Status) {
			return nil
		}

		return ledger.AdvanceStatus(tx, in.CaptureID, in.FromStatus, toStatus, nowISO(time.Now()))
	})
	if err != nil {
		return outcome, fmt.Errorf("exporter: commit failed: %w", err)
	}

	return outcome, nil
}

func render(in Input) string {
	capturedAt := nowISO(in.CapturedAt)
	if in.FromStatus == capture.StatusFailedTranscription {
		return renderPlaceholder(in.CaptureID, string(in.Source), capturedAt, in.ContentHash, in.Meta)
	}
	return renderMarkdown(in.CaptureID, string(in.Source), capturedAt, in.ContentHash, in.Body, in.Meta)
}

func decisionToMode(d vault.Decision) ledger.ExportMode {
	switch d {
	case vault.DecisionInitial:
		return ledger.ModeInitial
	case vault.DecisionSelfHeal:
		return ledger.ModeSelfHeal
	case vault.DecisionDuplicate:
		return ledger.ModeDuplicateSkip
	default:
		return ledger.ModeConflict
	}
}

// terminalStatusFor maps a non-conflict decision to the terminal status the
// capture advances to. Export returns before calling this for
// vault.DecisionConflict, since that decision must never commit a terminal
// status.
func terminalStatusFor(d vault.Decision, isPlaceholder bool) capture.Status {
	if isPlaceholder {
		return capture.StatusExportedPlaceholder
	}
	switch d {
	case vault.DecisionInitial, vault.DecisionSelfHeal:
		return capture.StatusExported
	default:
		return capture.StatusExportedDuplicate
	}
}
