package ledger

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanvale/capture-bridge/internal/capture"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.sqlite")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGetCapture(t *testing.T) {
	s := openTestStore(t)
	id := "01ARZ3NDEKTSV4RRFFQ69G5FAV"

	err := s.WithTransaction(func(tx *sql.Tx) error {
		return InsertCapture(tx, id, capture.SourceEmail, "hello body", capture.StatusStaged,
			map[string]string{"channel": "email", "message_id": "m1", "from": "a@b.com"}, "2025-10-09T00:00:00.000Z")
	})
	require.NoError(t, err)

	got, err := GetCapture(s.DB(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, capture.StatusStaged, got.Status)
	assert.Equal(t, capture.SourceEmail, got.Source)
}

func TestAdvanceStatusRejectsIllegalTransition(t *testing.T) {
	s := openTestStore(t)
	id := "01ARZ3NDEKTSV4RRFFQ69G5FAW"

	require.NoError(t, s.WithTransaction(func(tx *sql.Tx) error {
		return InsertCapture(tx, id, capture.SourceVoice, "", capture.StatusStaged, map[string]string{}, "2025-10-09T00:00:00.000Z")
	}))

	err := s.WithTransaction(func(tx *sql.Tx) error {
		return AdvanceStatus(tx, id, capture.StatusStaged, capture.StatusExportedPlaceholder, "2025-10-09T00:01:00.000Z")
	})
	assert.Error(t, err)

	got, err := GetCapture(s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, capture.StatusStaged, got.Status, "status must not change on an illegal transition")
}

func TestAdvanceStatusTerminalIsImmutable(t *testing.T) {
	s := openTestStore(t)
	id := "01ARZ3NDEKTSV4RRFFQ69G5FAX"

	require.NoError(t, s.WithTransaction(func(tx *sql.Tx) error {
		return InsertCapture(tx, id, capture.SourceEmail, "x", capture.StatusStaged, map[string]string{}, "2025-10-09T00:00:00.000Z")
	}))
	require.NoError(t, s.WithTransaction(func(tx *sql.Tx) error {
		return AdvanceStatus(tx, id, capture.StatusStaged, capture.StatusExported, "2025-10-09T00:01:00.000Z")
	}))

	err := s.WithTransaction(func(tx *sql.Tx) error {
		return AdvanceStatus(tx, id, capture.StatusExported, capture.StatusExportedDuplicate, "2025-10-09T00:02:00.000Z")
	})
	assert.Error(t, err)
}

func TestExportAuditUniqueInitialPerCapture(t *testing.T) {
	s := openTestStore(t)
	id := "01ARZ3NDEKTSV4RRFFQ69G5FAY"

	require.NoError(t, s.WithTransaction(func(tx *sql.Tx) error {
		return InsertCapture(tx, id, capture.SourceEmail, "x", capture.StatusStaged, map[string]string{}, "2025-10-09T00:00:00.000Z")
	}))

	err := s.WithTransaction(func(tx *sql.Tx) error {
		return InsertAudit(tx, id, "inbox/"+id+".md", "deadbeef", ModeInitial, "2025-10-09T00:01:00.000Z")
	})
	require.NoError(t, err)

	err = s.WithTransaction(func(tx *sql.Tx) error {
		return InsertAudit(tx, id, "inbox/"+id+".md", "deadbeef", ModeInitial, "2025-10-09T00:02:00.000Z")
	})
	assert.Error(t, err, "a second mode=initial row for the same capture must violate the unique index")

	n, err := CountInitialAudits(s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyncStateUpsert(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.WithTransaction(func(tx *sql.Tx) error {
		return UpsertSyncState(tx, KeyGmailHistoryID, "100", "2025-10-09T00:00:00.000Z")
	}))
	v, found, err := GetSyncState(s.DB(), KeyGmailHistoryID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "100", v)

	require.NoError(t, s.WithTransaction(func(tx *sql.Tx) error {
		return UpsertSyncState(tx, KeyGmailHistoryID, "200", "2025-10-09T00:05:00.000Z")
	}))
	v, found, err = GetSyncState(s.DB(), KeyGmailHistoryID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "200", v)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	id := "01ARZ3NDEKTSV4RRFFQ69G5FAZ"

	err := s.WithTransaction(func(tx *sql.Tx) error {
		if err := InsertCapture(tx, id, capture.SourceEmail, "x", capture.StatusStaged, map[string]string{}, "2025-10-09T00:00:00.000Z"); err != nil {
			return err
		}
		return assertErr
	})
	assert.Error(t, err)

	got, err := GetCapture(s.DB(), id)
	require.NoError(t, err)
	assert.Nil(t, got, "capture insert must roll back when the transaction fails")
}

func TestListCapturesByStatusOrdersOldestFirst(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.WithTransaction(func(tx *sql.Tx) error {
		if err := InsertCapture(tx, "01ARZ3NDEKTSV4RRFFQ69G5FB1", capture.SourceEmail, "second", capture.StatusStaged, map[string]string{}, "2025-10-09T00:02:00.000Z"); err != nil {
			return err
		}
		if err := InsertCapture(tx, "01ARZ3NDEKTSV4RRFFQ69G5FB0", capture.SourceEmail, "first", capture.StatusStaged, map[string]string{}, "2025-10-09T00:01:00.000Z"); err != nil {
			return err
		}
		return InsertCapture(tx, "01ARZ3NDEKTSV4RRFFQ69G5FB2", capture.SourceVoice, "third", capture.StatusTranscribed, map[string]string{}, "2025-10-09T00:03:00.000Z")
	}))

	got, err := ListCapturesByStatus(s.DB(), capture.StatusStaged)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FB0", got[0].ID)
	assert.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FB1", got[1].ID)

	got, err = ListCapturesByStatus(s.DB(), capture.StatusStaged, capture.StatusTranscribed)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestListCapturesByStatusEmptyInput(t *testing.T) {
	s := openTestStore(t)
	got, err := ListCapturesByStatus(s.DB())
	require.NoError(t, err)
	assert.Nil(t, got)
}

var assertErr = errTest("forced failure")

type errTest string

func (e errTest) Error() string { return string(e) }
