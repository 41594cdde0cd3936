package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nathanvale/capture-bridge/internal/clock"
)

func TestBucketDisabledNeverBlocks(t *testing.T) {
	fake := &clock.Fake{}
	bucket := NewBucket(Config{}, fake, fake)

	for i := 0; i < 10; i++ {
		bucket.Acquire()
	}
	assert.Empty(t, fake.SleepCalls(), "a disabled bucket must never sleep")
}

func TestBucketConsumesBurstWithoutSleeping(t *testing.T) {
	fake := &clock.Fake{}
	bucket := NewBucket(Config{MaxRequestsPerSecond: 1, BurstCapacity: 3}, fake, fake)

	bucket.Acquire()
	bucket.Acquire()
	bucket.Acquire()

	assert.Empty(t, fake.SleepCalls(), "three acquires within burst capacity must not sleep")
}

func TestBucketSleepsWhenEmpty(t *testing.T) {
	fake := &clock.Fake{}
	bucket := NewBucket(Config{MaxRequestsPerSecond: 1, BurstCapacity: 1}, fake, fake)

	bucket.Acquire()
	assert.Empty(t, fake.SleepCalls())

	bucket.Acquire()
	calls := fake.SleepCalls()
	if assert.Len(t, calls, 1) {
		assert.InDelta(t, time.Second, calls[0], float64(50*time.Millisecond))
	}
}

func TestBucketRefillsOverTime(t *testing.T) {
	fake := &clock.Fake{}
	bucket := NewBucket(Config{MaxRequestsPerSecond: 1, BurstCapacity: 2}, fake, fake)

	bucket.Acquire()
	bucket.Acquire()
	fake.Advance(2 * time.Second)

	bucket.Acquire()
	assert.Empty(t, fake.SleepCalls(), "tokens refilled after advancing the clock must not require a sleep")
}
