// Package poller implements the email poller state machine of spec §4.7:
// cursor bootstrap/reset discipline, strict sequential pagination, per-call
// rate limiting and jittered backoff, a circuit breaker over consecutive
// failed polls, and the single atomic commit that ties cursor advancement
// to the captures staged in the same invocation. Grounded on the teacher's
// two-phase email processor (internal/workers/email_processor_twophase.go)
// for the overall "fetch, stage, record metrics" shape, generalized from
// its time-window scan into the provider's incremental history cursor.
package poller

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nathanvale/capture-bridge/internal/backoff"
	"github.com/nathanvale/capture-bridge/internal/capturebridge"
	"github.com/nathanvale/capture-bridge/internal/clock"
	"github.com/nathanvale/capture-bridge/internal/fetch"
	"github.com/nathanvale/capture-bridge/internal/gmailsrc"
	"github.com/nathanvale/capture-bridge/internal/ledger"
	"github.com/nathanvale/capture-bridge/internal/ratelimit"
	"github.com/nathanvale/capture-bridge/internal/stager"
)

// defaultMaxCallAttempts bounds how many times a single outbound call is
// retried before the whole poll gives up and counts as one failure against
// the circuit breaker. The spec names the backoff progression but not a
// ceiling; this keeps a stuck provider from retrying forever within one
// pollOnce invocation.
const defaultMaxCallAttempts = 5

// defaultBreakerCooldown is how long an Open breaker waits before permitting
// a single half-open probe.
const defaultBreakerCooldown = 30 * time.Second

// GmailSource is the subset of gmailsrc.Client the poller depends on.
type GmailSource interface {
	ListHistory(ctx context.Context, startHistoryID uint64, pageToken string) (gmailsrc.HistoryPage, error)
	BootstrapHistoryID(ctx context.Context) (uint64, error)
}

// MessageFetcher extracts metadata for one message id (fetch.Fetcher
// satisfies this).
type MessageFetcher interface {
	FetchAndExtract(ctx context.Context, id string) (fetch.Metadata, error)
}

// Stager stages one extracted message within tx (stager.EmailStager
// satisfies this).
type Stager interface {
	Stage(tx *sql.Tx, meta fetch.Metadata) (stager.StagedResult, error)
}

// Result reports the outcome of one pollOnce invocation (spec §4.7 scenarios
// 2-5).
type Result struct {
	Bootstrapped   bool
	CursorReset    bool
	CapturesStaged int
	FinalHistoryID uint64
}

// Poller runs the email poll state machine for one Gmail account. Two
// concurrent PollOnce calls on the same Poller never overlap: the second
// waits on the mutex.
type Poller struct {
	Source      GmailSource
	Fetcher     MessageFetcher
	Stager      Stager
	Store       *ledger.Store
	RateLimiter *ratelimit.Bucket
	Metrics     Metrics
	Clock       clock.Clock
	Sleeper     clock.Sleeper
	Breaker     *backoff.CircuitBreaker

	BreakerCooldown time.Duration
	MaxCallAttempts int

	mu            sync.Mutex
	lastFailureAt time.Time
}

// New builds a Poller wired to production dependencies. Callers still need
// to set Source/Fetcher/Stager/Store.
func New(store *ledger.Store) *Poller {
	return &Poller{
		Store:           store,
		Metrics:         noopMetrics{},
		Clock:           clock.Real{},
		Sleeper:         clock.Real{},
		Breaker:         backoff.NewCircuitBreaker(),
		BreakerCooldown: defaultBreakerCooldown,
		MaxCallAttempts: defaultMaxCallAttempts,
	}
}

// PollOnce runs exactly one poll cycle end to end (spec §4.7 state diagram).
func (p *Poller) PollOnce(ctx context.Context) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	defer func() {
		p.metrics().ObservePollOnceDurationMillis(float64(p.now().Sub(start).Milliseconds()))
	}()

	if !p.breakerAllow() {
		return Result{}, capturebridge.Fatal(capturebridge.CodePollerCircuitOpen, "Circuit breaker is open", nil)
	}

	result, err := p.runPoll(ctx)
	if err != nil {
		p.Breaker.RecordFailure()
		p.lastFailureAt = p.now()
		p.metrics().SetCircuitState(int(p.Breaker.State()))
		return Result{}, err
	}

	p.Breaker.RecordSuccess()
	p.metrics().SetCircuitState(int(p.Breaker.State()))
	p.reportCursorAge()
	return result, nil
}

func (p *Poller) breakerAllow() bool {
	if p.Breaker.State() == backoff.Open && p.now().Sub(p.lastFailureAt) >= p.BreakerCooldown {
		p.Breaker.AllowProbe()
	}
	return p.Breaker.Allow()
}

func (p *Poller) runPoll(ctx context.Context) (Result, error) {
	cursorStr, found, err := ledger.GetSyncState(p.Store.DB(), ledger.KeyGmailHistoryID)
	if err != nil {
		return Result{}, err
	}

	if !found {
		return p.bootstrapAndPersist(ctx)
	}

	startHistoryID, err := parseHistoryID(cursorStr)
	if err != nil {
		return Result{}, fmt.Errorf("poller: invalid cursor %q: %w", cursorStr, err)
	}

	messageIDs, finalHistoryID, cursorReset, err := p.paginate(ctx, startHistoryID)
	if err != nil {
		return Result{}, err
	}
	if cursorReset {
		result, err := p.bootstrapAndPersist(ctx)
		if err != nil {
			return Result{}, err
		}
		result.CursorReset = true
		return result, nil
	}

	staged, err := p.stageAndCommit(ctx, messageIDs, finalHistoryID)
	if err != nil {
		return Result{}, err
	}

	p.metrics().IncMessagesAdded(staged)
	return Result{CapturesStaged: staged, FinalHistoryID: finalHistoryID}, nil
}

// bootstrapAndPersist obtains the provider's current history id, then takes
// one history.list pass from it to land on the real next cursor, staging
// nothing on this invocation regardless of what that page contains (spec
// §4.7, "proceed with an empty history page").
func (p *Poller) bootstrapAndPersist(ctx context.Context) (Result, error) {
	id, err := p.callBootstrap(ctx)
	if err != nil {
		return Result{}, err
	}

	_, finalHistoryID, cursorReset, err := p.paginate(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if cursorReset {
		finalHistoryID = id
	}

	now := p.nowISO()
	err = p.Store.WithTransaction(func(tx *sql.Tx) error {
		return ledger.UpsertSyncState(tx, ledger.KeyGmailHistoryID, formatHistoryID(finalHistoryID), now)
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Bootstrapped: true, FinalHistoryID: finalHistoryID}, nil
}

// stageAndCommit fetches and stages every collected message id, advancing
// the cursor only if every message stages successfully (spec §4.7 "atomic
// commit"). A failure anywhere rolls back the whole transaction: the cursor
// does not move and no partial captures become visible.
func (p *Poller) stageAndCommit(ctx context.Context, messageIDs []string, finalHistoryID uint64) (int, error) {
	staged := 0
	err := p.Store.WithTransaction(func(tx *sql.Tx) error {
		for _, id := range messageIDs {
			meta, err := p.Fetcher.FetchAndExtract(ctx, id)
			if err != nil {
				return err
			}
			if _, err := p.Stager.Stage(tx, meta); err != nil {
				return err
			}
			staged++
		}
		return ledger.UpsertSyncState(tx, ledger.KeyGmailHistoryID, formatHistoryID(finalHistoryID), p.nowISO())
	})
	if err != nil {
		return 0, err
	}
	return staged, nil
}

// paginate fetches history pages strictly sequentially until the response
// omits nextPageToken, collecting message ids in order (spec §4.7
// pagination). It reports cursorReset=true on a provider 404 without
// treating that as an error.
func (p *Poller) paginate(ctx context.Context, startHistoryID uint64) (messageIDs []string, finalHistoryID uint64, cursorReset bool, err error) {
	finalHistoryID = startHistoryID
	pageToken := ""
	bo := backoff.New(p.now().UnixNano())

	for {
		page, notFound, callErr := p.callHistoryList(ctx, startHistoryID, pageToken, bo)
		if notFound {
			return nil, 0, true, nil
		}
		if callErr != nil {
			return nil, 0, false, callErr
		}

		p.metrics().IncHistoryPagesProcessed()
		messageIDs = append(messageIDs, page.MessageIDs...)
		finalHistoryID = page.HistoryID

		if page.NextPageToken == "" {
			return messageIDs, finalHistoryID, false, nil
		}
		pageToken = page.NextPageToken
	}
}

func (p *Poller) callHistoryList(ctx context.Context, startHistoryID uint64, pageToken string, bo *backoff.Backoff) (gmailsrc.HistoryPage, bool, error) {
	for attempt := 0; ; attempt++ {
		if p.RateLimiter != nil {
			p.RateLimiter.Acquire()
		}

		page, err := p.Source.ListHistory(ctx, startHistoryID, pageToken)
		if err == nil {
			bo.Reset()
			return page, false, nil
		}

		notFound, transient, rateLimited, retryAfter := classifyCall(err)
		if notFound {
			return gmailsrc.HistoryPage{}, true, nil
		}
		if !transient || attempt >= p.maxCallAttempts() {
			return gmailsrc.HistoryPage{}, false, err
		}
		p.waitOut(bo, rateLimited, retryAfter)
	}
}

func (p *Poller) callBootstrap(ctx context.Context) (uint64, error) {
	bo := backoff.New(p.now().UnixNano())
	for attempt := 0; ; attempt++ {
		if p.RateLimiter != nil {
			p.RateLimiter.Acquire()
		}

		id, err := p.Source.BootstrapHistoryID(ctx)
		if err == nil {
			bo.Reset()
			return id, nil
		}

		_, transient, rateLimited, retryAfter := classifyCall(err)
		if !transient || attempt >= p.maxCallAttempts() {
			return 0, err
		}
		p.waitOut(bo, rateLimited, retryAfter)
	}
}

func (p *Poller) waitOut(bo *backoff.Backoff, rateLimited bool, retryAfter time.Duration) {
	if rateLimited {
		p.metrics().Inc429()
	}
	wait := bo.Wait(p.sleeper(), retryAfter)
	p.metrics().ObserveBackoffWaitMillis(float64(wait.Milliseconds()))
}

func (p *Poller) reportCursorAge() {
	_, updatedAt, found, err := ledger.GetSyncStateWithTimestamp(p.Store.DB(), ledger.KeyGmailHistoryID)
	if err != nil || !found {
		return
	}
	updated, err := time.Parse("2006-01-02T15:04:05.000Z", updatedAt)
	if err != nil {
		return
	}
	p.metrics().SetCursorAgeSeconds(p.now().Sub(updated).Seconds())
}

func (p *Poller) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock.Now()
}

func (p *Poller) nowISO() string {
	return p.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func (p *Poller) sleeper() clock.Sleeper {
	if p.Sleeper == nil {
		return clock.Real{}
	}
	return p.Sleeper
}

func (p *Poller) metrics() Metrics {
	if p.Metrics == nil {
		return noopMetrics{}
	}
	return p.Metrics
}

func (p *Poller) maxCallAttempts() int {
	if p.MaxCallAttempts <= 0 {
		return defaultMaxCallAttempts
	}
	return p.MaxCallAttempts
}

func parseHistoryID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func formatHistoryID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
