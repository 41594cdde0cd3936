// Package ratelimit generalizes the teacher's single-window refresh check
// into a token bucket gating the email poller's outbound history/message
// calls (spec §4.7). The bucket is optional: a poller configured without
// rate limiting never blocks.
package ratelimit

import (
	"sync"
	"time"

	"github.com/nathanvale/capture-bridge/internal/clock"
)

// Config describes one token bucket: a steady refill rate and a maximum
// burst size.
type Config struct {
	MaxRequestsPerSecond float64
	BurstCapacity        float64
}

// Enabled reports whether cfg describes an active bucket.
func (c Config) Enabled() bool {
	return c.MaxRequestsPerSecond > 0
}

// Bucket is a token bucket consumed once per outbound poller request.
// When empty, Acquire sleeps via the injected clock.Sleeper so callers are
// testable under a fake clock, mirroring the teacher's
// CheckRefreshRateLimit's separation of decision from the actual wait.
type Bucket struct {
	mu      sync.Mutex
	cfg     Config
	tokens  float64
	updated time.Time
	clock   clock.Clock
	sleeper clock.Sleeper
}

// NewBucket builds a Bucket starting full.
func NewBucket(cfg Config, c clock.Clock, s clock.Sleeper) *Bucket {
	return &Bucket{
		cfg:     cfg,
		tokens:  cfg.BurstCapacity,
		updated: c.Now(),
		clock:   c,
		sleeper: s,
	}
}

// Acquire consumes one token, sleeping first if the bucket is empty. A
// disabled bucket (MaxRequestsPerSecond <= 0) never blocks.
func (b *Bucket) Acquire() {
	if !b.cfg.Enabled() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / b.cfg.MaxRequestsPerSecond * float64(time.Second))
		b.sleeper.Sleep(wait)
		b.refillLocked()
	}
	if b.tokens >= 1 {
		b.tokens--
	}
}

func (b *Bucket) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.updated).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.cfg.MaxRequestsPerSecond
	if b.tokens > b.cfg.BurstCapacity {
		b.tokens = b.cfg.BurstCapacity
	}
	b.updated = now
}
