package stager

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanvale/capture-bridge/internal/capture"
	"github.com/nathanvale/capture-bridge/internal/fetch"
	"github.com/nathanvale/capture-bridge/internal/idgen"
	"github.com/nathanvale/capture-bridge/internal/ledger"
)

type countingMetrics struct {
	observations []float64
}

func (m *countingMetrics) ObserveEmailStagingMillis(ms float64) {
	m.observations = append(m.observations, ms)
}

func openTestLedger(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEmailStagerStage(t *testing.T) {
	store := openTestLedger(t)
	metrics := &countingMetrics{}
	s := NewEmailStager()
	s.Metrics = metrics
	s.Now = func() time.Time { return time.Date(2025, 10, 9, 0, 0, 0, 0, time.UTC) }

	meta := fetch.Metadata{
		MessageID: "msg-1",
		From:      "a@b.com",
		Subject:   "Hi",
		Body:      "hello body",
		Date:      time.Date(2025, 10, 9, 0, 0, 0, 0, time.UTC),
	}

	var result StagedResult
	require.NoError(t, store.WithTransaction(func(tx *sql.Tx) error {
		var err error
		result, err = s.Stage(tx, meta)
		return err
	}))

	assert.True(t, idgen.Valid(result.CaptureID))
	assert.Equal(t, capture.StatusStaged, result.Status)
	assert.Len(t, metrics.observations, 1)

	got, err := ledger.GetCapture(store.DB(), result.CaptureID)
	require.NoError(t, err)
	assert.Equal(t, capture.SourceEmail, got.Source)
	assert.False(t, got.ContentHash.Valid, "email captures stage with content_hash NULL until the export loop binds one")
}

func TestEmailStagerStageSafePassesThroughOnSuccess(t *testing.T) {
	store := openTestLedger(t)
	s := NewEmailStager()

	var result StagedResult
	require.NoError(t, store.WithTransaction(func(tx *sql.Tx) error {
		var err error
		result, err = s.StageSafe(tx, fetch.Metadata{MessageID: "m2", From: "a@b.com", Body: "y"})
		return err
	}))
	assert.NotEmpty(t, result.CaptureID)
}

func TestDuplicateCaptureIDViolatesPrimaryKey(t *testing.T) {
	store := openTestLedger(t)
	s := NewEmailStager()
	fixedID := s.IDs.Next()

	err := store.WithTransaction(func(tx *sql.Tx) error {
		return ledger.InsertCapture(tx, fixedID, capture.SourceEmail, "x", capture.StatusStaged, map[string]string{}, "2025-10-09T00:00:00.000Z")
	})
	require.NoError(t, err)

	err = store.WithTransaction(func(tx *sql.Tx) error {
		return ledger.InsertCapture(tx, fixedID, capture.SourceEmail, "y", capture.StatusStaged, map[string]string{}, "2025-10-09T00:01:00.000Z")
	})
	require.Error(t, err, "inserting the same capture id twice must violate the primary key")
}

func TestVoiceStagerStage(t *testing.T) {
	store := openTestLedger(t)
	s := NewVoiceStager()

	var result StagedResult
	require.NoError(t, store.WithTransaction(func(tx *sql.Tx) error {
		var err error
		result, err = s.Stage(tx, "/voice/memos/2025-10-09.m4a")
		return err
	}))

	got, err := ledger.GetCapture(store.DB(), result.CaptureID)
	require.NoError(t, err)
	assert.Equal(t, capture.SourceVoice, got.Source)
	assert.False(t, got.ContentHash.Valid)
	assert.Equal(t, "", got.RawContent.String, "voice captures stage with empty raw_content until transcribed")
}
