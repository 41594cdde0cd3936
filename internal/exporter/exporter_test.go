package exporter

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanvale/capture-bridge/internal/capture"
	"github.com/nathanvale/capture-bridge/internal/capturebridge"
	"github.com/nathanvale/capture-bridge/internal/hashing"
	"github.com/nathanvale/capture-bridge/internal/idgen"
	"github.com/nathanvale/capture-bridge/internal/ledger"
	"github.com/nathanvale/capture-bridge/internal/vault"
)

func newTestExporter(t *testing.T) (*Exporter, string, *ledger.Store) {
	t.Helper()
	root := t.TempDir()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	writer := vault.NewAtomicWriter(root)
	require.NoError(t, writer.EnsureDirs())
	paths := vault.NewPathResolver(root)
	detector := vault.NewCollisionDetector(ledger.NewAuditStore(store.DB()))

	return New(writer, paths, detector, store), root, store
}

func insertStaged(t *testing.T, store *ledger.Store, id string, source capture.Source, body string, status capture.Status) {
	t.Helper()
	require.NoError(t, store.WithTransaction(func(tx *sql.Tx) error {
		return ledger.InsertCapture(tx, id, source, body, status, map[string]string{}, "2025-10-09T00:00:00.000Z")
	}))
}

func TestExportInitialWritesFileAndAdvancesStatus(t *testing.T) {
	exp, root, store := newTestExporter(t)
	id := idgen.New().Next()
	insertStaged(t, store, id, capture.SourceEmail, "hello body", capture.StatusStaged)

	in := Input{
		CaptureID:   id,
		Source:      capture.SourceEmail,
		Body:        "hello body",
		ContentHash: hashing.Hash("hello body"),
		CapturedAt:  time.Date(2025, 10, 9, 0, 0, 0, 0, time.UTC),
		FromStatus:  capture.StatusStaged,
	}

	out, err := exp.Export(in)
	require.NoError(t, err)
	assert.Equal(t, vault.DecisionInitial, out.Decision)
	assert.Equal(t, ledger.ModeInitial, out.Mode)
	assert.True(t, out.Wrote)
	assert.Equal(t, filepath.Join("inbox", id+".md"), out.Path)

	data, err := os.ReadFile(filepath.Join(root, out.Path))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello body")
	assert.Contains(t, string(data), id)

	got, err := ledger.GetCapture(store.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, capture.StatusExported, got.Status)
}

// TestExportDuplicateSkipDoesNotRewriteFile exports the same capture twice:
// the first call writes the file, the second must recognize the file it
// already wrote and skip without touching it. The capture's status is
// terminal after the first export, but Export itself must still tolerate a
// second call against the same row (the crash-before-commit retry path and a
// repeated poll both do exactly this).
func TestExportDuplicateSkipDoesNotRewriteFile(t *testing.T) {
	exp, root, store := newTestExporter(t)
	id := idgen.New().Next()
	body := "hello body"
	insertStaged(t, store, id, capture.SourceEmail, body, capture.StatusStaged)

	in := Input{
		CaptureID:   id,
		Source:      capture.SourceEmail,
		Body:        body,
		ContentHash: hashing.Hash(body),
		CapturedAt:  time.Date(2025, 10, 9, 0, 0, 0, 0, time.UTC),
		FromStatus:  capture.StatusStaged,
	}

	first, err := exp.Export(in)
	require.NoError(t, err)
	assert.Equal(t, vault.DecisionInitial, first.Decision)
	assert.True(t, first.Wrote)

	target := filepath.Join(root, "inbox", id+".md")
	before, err := os.ReadFile(target)
	require.NoError(t, err)

	second, err := exp.Export(in)
	require.NoError(t, err)
	assert.Equal(t, vault.DecisionDuplicate, second.Decision)
	assert.Equal(t, ledger.ModeDuplicateSkip, second.Mode)
	assert.False(t, second.Wrote, "a duplicate decision must never rewrite the file")

	after, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestExportSelfHealRecreatesDeletedFile(t *testing.T) {
	exp, root, store := newTestExporter(t)
	id := idgen.New().Next()
	body := "hello body"
	insertStaged(t, store, id, capture.SourceEmail, body, capture.StatusStaged)

	in := Input{
		CaptureID:   id,
		Source:      capture.SourceEmail,
		Body:        body,
		ContentHash: hashing.Hash(body),
		CapturedAt:  time.Date(2025, 10, 9, 0, 0, 0, 0, time.UTC),
		FromStatus:  capture.StatusStaged,
	}
	_, err := exp.Export(in)
	require.NoError(t, err)

	target := filepath.Join(root, "inbox", id+".md")
	require.NoError(t, os.Remove(target))

	healed, err := exp.Export(in)
	require.NoError(t, err)
	assert.Equal(t, vault.DecisionSelfHeal, healed.Decision, "an audit row with a matching hash but a missing file must self-heal")
	assert.Equal(t, ledger.ModeSelfHeal, healed.Mode)
	assert.True(t, healed.Wrote)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), body)
}

func TestExportConflictWhenOnDiskHashDiffersReturnsRecoverableError(t *testing.T) {
	exp, root, store := newTestExporter(t)
	id := idgen.New().Next()
	insertStaged(t, store, id, capture.SourceEmail, "original body", capture.StatusStaged)

	target := filepath.Join(root, "inbox", id+".md")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o700))
	require.NoError(t, os.WriteFile(target, []byte("someone else wrote this"), 0o600))

	in := Input{
		CaptureID:   id,
		Source:      capture.SourceEmail,
		Body:        "original body",
		ContentHash: hashing.Hash("original body"),
		CapturedAt:  time.Date(2025, 10, 9, 0, 0, 0, 0, time.UTC),
		FromStatus:  capture.StatusStaged,
	}

	out, err := exp.Export(in)
	require.Error(t, err, "a real content conflict must be surfaced, not silently absorbed as a duplicate")
	assert.Equal(t, vault.DecisionConflict, out.Decision)
	assert.Equal(t, ledger.ModeConflict, out.Mode)
	assert.False(t, out.Wrote)

	var cbErr *capturebridge.Error
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, capturebridge.CodeExportConflict, cbErr.Code)
	assert.True(t, cbErr.Recoverable)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "someone else wrote this", string(data), "a conflict must never overwrite the existing file")

	got, err := ledger.GetCapture(store.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, capture.StatusStaged, got.Status, "a conflict must leave the capture's status untouched so it can be retried")
}

func TestExportPlaceholderForFailedTranscription(t *testing.T) {
	exp, root, store := newTestExporter(t)
	id := idgen.New().Next()
	insertStaged(t, store, id, capture.SourceVoice, "", capture.StatusFailedTranscription)

	in := Input{
		CaptureID:   id,
		Source:      capture.SourceVoice,
		ContentHash: hashing.Hash(""),
		CapturedAt:  time.Date(2025, 10, 9, 0, 0, 0, 0, time.UTC),
		FromStatus:  capture.StatusFailedTranscription,
	}

	out, err := exp.Export(in)
	require.NoError(t, err)
	assert.Equal(t, ledger.ModePlaceholder, out.Mode)
	assert.True(t, out.Wrote)

	data, err := os.ReadFile(filepath.Join(root, out.Path))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Transcription failed")

	got, err := ledger.GetCapture(store.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, capture.StatusExportedPlaceholder, got.Status)
}

func TestExportRecordsAuditRowWithRelativeVaultPath(t *testing.T) {
	exp, _, store := newTestExporter(t)
	id := idgen.New().Next()
	insertStaged(t, store, id, capture.SourceEmail, "body", capture.StatusStaged)

	in := Input{
		CaptureID:   id,
		Source:      capture.SourceEmail,
		Body:        "body",
		ContentHash: hashing.Hash("body"),
		CapturedAt:  time.Date(2025, 10, 9, 0, 0, 0, 0, time.UTC),
		FromStatus:  capture.StatusStaged,
	}
	_, err := exp.Export(in)
	require.NoError(t, err)

	hash, found, err := ledger.NewAuditStore(store.DB()).LookupByPath(filepath.Join("inbox", id+".md"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, hashing.Hash(render(in)), hash, "exports_audit.content_hash must record the rendered file's hash, not the capture's raw content hash")
}
