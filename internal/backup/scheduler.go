package backup

import (
	"context"
	"log"
	"sync"
	"time"
)

// DailyKeepCount is how many daily backups PruneDaily retains: the newest
// seven by filename.
const DailyKeepCount = 7

// Scheduler drives the hourly RunHourly cycle and, once a day, promotion
// of the day's backup into daily/ followed by pruning. Grounded on the
// same ticker-plus-stop-channel shape as internal/poller.Loop, since
// nothing in the spec or the teacher names a distinct scheduling idiom for
// a second independent cadence — reusing the one already built keeps both
// loops readable the same way.
type Scheduler struct {
	Orchestrator *Orchestrator
	Paths        Paths
	Now          func() time.Time

	lastPromotedDate string

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start begins ticking every hour in a background goroutine: each tick
// runs RunHourly, and the first tick of a new UTC calendar day also
// promotes the previous day's hourly backup to daily/ and prunes old
// daily backups beyond DailyKeepCount.
func (s *Scheduler) Start(ctx context.Context) {
	if s.Now == nil {
		s.Now = time.Now
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	if _, _, err := s.Orchestrator.RunHourly(); err != nil {
		log.Printf("backup: hourly run failed: %v", err)
		return
	}

	now := s.Now().UTC()
	today := now.Format("2006-01-02")
	if today == s.lastPromotedDate {
		return
	}

	yesterday := now.AddDate(0, 0, -1)
	if _, err := PromoteDaily(s.Paths, yesterday); err != nil {
		log.Printf("backup: daily promotion failed: %v", err)
		return
	}
	if _, err := PruneDaily(s.Paths, DailyKeepCount); err != nil {
		log.Printf("backup: daily prune failed: %v", err)
		return
	}
	s.lastPromotedDate = today
}

// Shutdown stops the ticker so no new cycle starts, then waits for an
// in-flight tick (backup operations hold no internal lock, so this is a
// best-effort wait bounded by ctx) to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if s.stop == nil {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stop) })

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
