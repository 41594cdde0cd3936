package poller

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/nathanvale/capture-bridge/internal/backoff"
	"github.com/nathanvale/capture-bridge/internal/capturebridge"
	"github.com/nathanvale/capture-bridge/internal/clock"
	"github.com/nathanvale/capture-bridge/internal/fetch"
	"github.com/nathanvale/capture-bridge/internal/gmailsrc"
	"github.com/nathanvale/capture-bridge/internal/ledger"
	"github.com/nathanvale/capture-bridge/internal/stager"
)

type historyCall struct {
	page gmailsrc.HistoryPage
	err  error
}

type fakeSource struct {
	bootstrapID  uint64
	bootstrapErr error
	calls        []historyCall
	next         int
}

func (f *fakeSource) BootstrapHistoryID(ctx context.Context) (uint64, error) {
	return f.bootstrapID, f.bootstrapErr
}

func (f *fakeSource) ListHistory(ctx context.Context, startHistoryID uint64, pageToken string) (gmailsrc.HistoryPage, error) {
	if f.next >= len(f.calls) {
		return gmailsrc.HistoryPage{}, fmt.Errorf("fakeSource: no more responses queued")
	}
	c := f.calls[f.next]
	f.next++
	return c.page, c.err
}

type fakeFetcher struct {
	metas map[string]fetch.Metadata
}

func (f *fakeFetcher) FetchAndExtract(ctx context.Context, id string) (fetch.Metadata, error) {
	m, ok := f.metas[id]
	if !ok {
		return fetch.Metadata{}, fmt.Errorf("fakeFetcher: no fixture for %s", id)
	}
	return m, nil
}

type failingStager struct {
	err error
}

func (f *failingStager) Stage(tx *sql.Tx, meta fetch.Metadata) (stager.StagedResult, error) {
	return stager.StagedResult{}, f.err
}

func openTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newPoller(t *testing.T, store *ledger.Store, source GmailSource) (*Poller, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2025, 10, 9, 12, 0, 0, 0, time.UTC))
	p := New(store)
	p.Source = source
	p.Stager = stager.NewEmailStager()
	p.Clock = fake
	p.Sleeper = fake
	return p, fake
}

func notFoundErr() error {
	return &googleapi.Error{Code: 404}
}

func rateLimitedErr(retryAfterSeconds string) error {
	return &googleapi.Error{Code: 429, Header: http.Header{"Retry-After": []string{retryAfterSeconds}}}
}

func TestPollOnceBootstrapsCursorWhenAbsent(t *testing.T) {
	store := openTestStore(t)
	source := &fakeSource{
		bootstrapID: 200,
		calls: []historyCall{
			{page: gmailsrc.HistoryPage{HistoryID: 201}},
		},
	}
	p, _ := newPoller(t, store, source)

	result, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Bootstrapped)
	assert.Equal(t, 0, result.CapturesStaged)
	assert.Equal(t, uint64(201), result.FinalHistoryID)

	cursor, found, err := ledger.GetSyncState(store.DB(), ledger.KeyGmailHistoryID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "201", cursor)
}

func TestPollOnceHonorsRetryAfterExactly(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.WithTransaction(func(tx *sql.Tx) error {
		return ledger.UpsertSyncState(tx, ledger.KeyGmailHistoryID, "100", "2025-10-09T00:00:00.000Z")
	}))

	source := &fakeSource{
		calls: []historyCall{
			{err: rateLimitedErr("5")},
			{page: gmailsrc.HistoryPage{HistoryID: 0}},
		},
	}
	p, fake := newPoller(t, store, source)
	// historyId=0 from the success path below is intentionally replaced.
	source.calls[1] = historyCall{page: gmailsrc.HistoryPage{HistoryID: mustParseUint("150")}}

	result, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(150), result.FinalHistoryID)

	sleeps := fake.SleepCalls()
	require.Len(t, sleeps, 1)
	assert.Equal(t, 5*time.Second, sleeps[0])
}

func mustParseUint(s string) uint64 {
	v, err := parseHistoryID(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestPollOnceStagingFailureRollsBackCursor(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.WithTransaction(func(tx *sql.Tx) error {
		return ledger.UpsertSyncState(tx, ledger.KeyGmailHistoryID, "300", "2025-10-09T00:00:00.000Z")
	}))

	source := &fakeSource{
		calls: []historyCall{
			{page: gmailsrc.HistoryPage{HistoryID: 301, MessageIDs: []string{"m1"}}},
		},
	}
	p, _ := newPoller(t, store, source)
	p.Fetcher = &fakeFetcher{metas: map[string]fetch.Metadata{
		"m1": {MessageID: "m1", From: "a@b.com", Body: "hi", Date: time.Now()},
	}}
	p.Stager = &failingStager{err: fmt.Errorf("boom")}

	_, err := p.PollOnce(context.Background())
	require.Error(t, err)

	cursor, found, err := ledger.GetSyncState(store.DB(), ledger.KeyGmailHistoryID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "300", cursor, "cursor must not advance when staging fails")
}

func TestPollOnceCircuitOpensAfterFiveFailures(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.WithTransaction(func(tx *sql.Tx) error {
		return ledger.UpsertSyncState(tx, ledger.KeyGmailHistoryID, "1", "2025-10-09T00:00:00.000Z")
	}))

	source := &fakeSource{}
	p, _ := newPoller(t, store, source)

	for i := 0; i < 5; i++ {
		source.calls = []historyCall{{err: &googleapi.Error{Code: 400}}}
		source.next = 0
		_, err := p.PollOnce(context.Background())
		require.Error(t, err)
	}

	assert.Equal(t, backoff.Open, p.Breaker.State())
	callsBeforeSixth := source.next

	_, err := p.PollOnce(context.Background())
	require.Error(t, err)
	var cbErr *capturebridge.Error
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, capturebridge.CodePollerCircuitOpen, cbErr.Code)
	assert.Equal(t, "poller.circuit_open: Circuit breaker is open", err.Error())
	assert.Equal(t, callsBeforeSixth, source.next, "the sixth call must not invoke the provider")
}

func TestPollOnceCursorResetOn404(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.WithTransaction(func(tx *sql.Tx) error {
		return ledger.UpsertSyncState(tx, ledger.KeyGmailHistoryID, "999", "2025-10-09T00:00:00.000Z")
	}))

	source := &fakeSource{
		bootstrapID: 400,
		calls: []historyCall{
			{err: notFoundErr()},
			{page: gmailsrc.HistoryPage{HistoryID: 401}},
		},
	}
	p, _ := newPoller(t, store, source)

	result, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.CursorReset)
	assert.Equal(t, uint64(401), result.FinalHistoryID)

	cursor, found, err := ledger.GetSyncState(store.DB(), ledger.KeyGmailHistoryID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "401", cursor)
}

func TestPollOnceSecondPollWithUnchangedCursorStagesNothing(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.WithTransaction(func(tx *sql.Tx) error {
		return ledger.UpsertSyncState(tx, ledger.KeyGmailHistoryID, "500", "2025-10-09T00:00:00.000Z")
	}))

	source := &fakeSource{
		calls: []historyCall{
			{page: gmailsrc.HistoryPage{HistoryID: 500}},
		},
	}
	p, _ := newPoller(t, store, source)

	result, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.CapturesStaged)
	assert.Equal(t, uint64(500), result.FinalHistoryID)
}
