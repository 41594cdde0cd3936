package poller

import (
	"context"
	"log"
	"sync"
	"time"
)

// Loop drives PollOnce on a fixed cadence until shut down. Grounded on the
// same "stop producing new work, let what's in flight finish" shape as
// internal/server.Shutdowner; Loop satisfies that interface structurally so
// cmd/capture-bridged can hand it straight to server.Run without either
// package importing the other.
type Loop struct {
	Poller   *Poller
	Interval time.Duration

	stop     chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// Start begins polling every Interval in a background goroutine. Poll
// errors are logged and do not stop the loop; the circuit breaker inside
// Poller already governs how aggressively a failing account is retried.
func (l *Loop) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-l.stop:
				return
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := l.Poller.PollOnce(runCtx); err != nil {
					log.Printf("poll failed: %v", err)
				}
			}
		}
	}()
}

// Shutdown stops the ticker so no new PollOnce call is started, then waits
// for an in-flight call (serialized behind Poller's own mutex) to finish or
// for ctx to expire, whichever comes first.
func (l *Loop) Shutdown(ctx context.Context) error {
	if l.stop == nil {
		return nil
	}
	l.stopOnce.Do(func() { close(l.stop) })

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		// The shutdown deadline passed with a poll still in flight; cancel
		// its context so the underlying call unblocks instead of leaking.
		if l.cancel != nil {
			l.cancel()
		}
		return ctx.Err()
	}
}
