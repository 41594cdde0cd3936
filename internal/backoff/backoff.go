// Package backoff implements the jittered exponential backoff and
// per-poller circuit breaker disciplines of spec §4.7, grounded on the
// teacher's Retry-After handling for shipment-carrier rate limits
// (internal/carriers/ups.go) before that package was dropped as
// out-of-scope; the retry-after-wins-over-computed-delay rule survives
// here unchanged.
package backoff

import (
	"math/rand"
	"time"

	"github.com/nathanvale/capture-bridge/internal/clock"
)

const (
	baseDelay     = time.Second
	multiplier    = 2.0
	jitterPercent = 0.30
)

// Backoff tracks the attempt counter for one logical retry loop (one
// history page's worth of calls, per spec §4.7). The counter resets on
// the first successful call.
type Backoff struct {
	attempt int
	rand    *rand.Rand
}

// New builds a Backoff starting at attempt 0.
func New(seed int64) *Backoff {
	return &Backoff{rand: rand.New(rand.NewSource(seed))}
}

// Reset clears the attempt counter after a successful call.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// NextDelay computes the delay before the next retry: base * multiplier^attempt,
// plus up to +/-30% jitter. If retryAfter is non-zero, it is honored exactly
// (retryAfter * 1000 ms) and the computed delay is ignored, per spec §4.7.
func (b *Backoff) NextDelay(retryAfter time.Duration) time.Duration {
	defer func() { b.attempt++ }()

	if retryAfter > 0 {
		return retryAfter
	}

	nominal := float64(baseDelay) * pow(multiplier, b.attempt)
	jitter := (b.rand.Float64()*2 - 1) * jitterPercent * nominal
	delay := nominal + jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Wait sleeps for the next computed delay via the injected sleeper,
// emitting the delay so callers can record gmail_backoff_wait_ms.
func (b *Backoff) Wait(s clock.Sleeper, retryAfter time.Duration) time.Duration {
	d := b.NextDelay(retryAfter)
	s.Sleep(d)
	return d
}
