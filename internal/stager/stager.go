// Package stager builds staged capture rows from extracted content (spec
// §4.10), grounded on the teacher's database insert pattern
// (internal/database/emails.go) combined with internal/idgen's
// time-sortable identifiers.
package stager

import (
	"database/sql"
	"time"

	"github.com/nathanvale/capture-bridge/internal/capture"
	"github.com/nathanvale/capture-bridge/internal/capturebridge"
	"github.com/nathanvale/capture-bridge/internal/fetch"
	"github.com/nathanvale/capture-bridge/internal/idgen"
	"github.com/nathanvale/capture-bridge/internal/ledger"
)

// StagedResult is what a stager returns on success (spec §4.10).
type StagedResult struct {
	CaptureID string
	Status    capture.Status
	CreatedAt string
}

// Metrics receives the capture_email_staging_ms histogram observation.
// Emission failures must never fail the stager, so the interface has no
// error return.
type Metrics interface {
	ObserveEmailStagingMillis(ms float64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveEmailStagingMillis(float64) {}

// EmailStager stages captures sourced from the email poller.
type EmailStager struct {
	IDs     *idgen.Generator
	Metrics Metrics
	Now     func() time.Time
}

// NewEmailStager builds an EmailStager with a real id generator/clock and
// a no-op metrics sink.
func NewEmailStager() *EmailStager {
	return &EmailStager{IDs: idgen.New(), Metrics: noopMetrics{}, Now: time.Now}
}

// emailMeta mirrors the spec §3.2 closed metadata shape.
type emailMeta struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Date      string `json:"date"`
}

// Stage inserts a new staged capture row within tx and returns its id,
// status, and created_at. If reading created_at back from the row fails,
// it falls back to the current wall-clock ISO-8601 rather than erroring.
func (s *EmailStager) Stage(tx *sql.Tx, meta fetch.Metadata) (StagedResult, error) {
	start := time.Now()
	defer func() {
		s.metrics().ObserveEmailStagingMillis(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	id := s.IDs.Next()
	now := s.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	m := emailMeta{
		MessageID: meta.MessageID,
		From:      meta.From,
		Subject:   meta.Subject,
		Date:      meta.Date.UTC().Format("2006-01-02T15:04:05.000Z"),
	}

	if err := ledger.InsertCapture(tx, id, capture.SourceEmail, meta.Body, capture.StatusStaged, m, now); err != nil {
		return StagedResult{}, err
	}

	createdAt := now
	if row, err := ledger.GetCapture(tx, id); err == nil && row != nil {
		createdAt = row.CreatedAt
	}

	return StagedResult{CaptureID: id, Status: capture.StatusStaged, CreatedAt: createdAt}, nil
}

// StageSafe is the `safe` variant of Stage: instead of an arbitrary error,
// it guarantees the returned error (when non-nil) is a *capturebridge.Error
// carrying one of the staging.* codes.
func (s *EmailStager) StageSafe(tx *sql.Tx, meta fetch.Metadata) (StagedResult, error) {
	result, err := s.Stage(tx, meta)
	if err == nil {
		return result, nil
	}
	var cbErr *capturebridge.Error
	if asCapturebridgeError(err, &cbErr) {
		return StagedResult{}, cbErr
	}
	return StagedResult{}, capturebridge.New(capturebridge.CodeStagingConstraint, "email staging failed", err)
}

func (s *EmailStager) metrics() Metrics {
	if s.Metrics == nil {
		return noopMetrics{}
	}
	return s.Metrics
}

func asCapturebridgeError(err error, target **capturebridge.Error) bool {
	for err != nil {
		if e, ok := err.(*capturebridge.Error); ok {
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
