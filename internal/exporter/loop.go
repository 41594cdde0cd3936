package exporter

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/nathanvale/capture-bridge/internal/capture"
	"github.com/nathanvale/capture-bridge/internal/hashing"
	"github.com/nathanvale/capture-bridge/internal/ledger"
)

const createdAtLayout = "2006-01-02T15:04:05.000Z"

// exportableStatuses is every status Export accepts as a FromStatus: the
// direct staged -> exported path, the transcribed -> exported path, and the
// failed_transcription -> exported_placeholder path.
var exportableStatuses = []capture.Status{
	capture.StatusStaged,
	capture.StatusTranscribed,
	capture.StatusFailedTranscription,
}

// Loop drives Export on a fixed cadence: on every tick it lists captures in
// every exportable status and exports each one in turn. Grounded on the same
// ticker/stop-channel/sync.Once shape as internal/poller.Loop and
// internal/backup.Scheduler, so the daemon's shutdown sequence treats all
// three cadences identically without any of the three packages importing
// one another.
type Loop struct {
	Exporter *Exporter
	Store    *ledger.Store
	Interval time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (l *Loop) Start() {
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
			case <-ticker.C:
				l.tick()
			}
		}
	}()
}

func (l *Loop) tick() {
	rows, err := ledger.ListCapturesByStatus(l.Store.DB(), exportableStatuses...)
	if err != nil {
		log.Printf("export: list exportable captures: %v", err)
		return
	}

	for _, row := range rows {
		if err := l.exportOne(row); err != nil {
			log.Printf("export: capture %s: %v", row.ID, err)
		}
	}
}

// exportOne resolves row's content hash (binding it first if the row was
// staged with it NULL) and runs it through Export.
func (l *Loop) exportOne(row ledger.Capture) error {
	hash, ready, err := l.resolveHash(row)
	if err != nil {
		return err
	}
	if !ready {
		// Voice capture awaiting transcription and hash binding; nothing to
		// export yet.
		return nil
	}

	meta := map[string]string{}
	_ = json.Unmarshal([]byte(row.MetaJSON), &meta)

	capturedAt, err := time.Parse(createdAtLayout, row.CreatedAt)
	if err != nil {
		capturedAt = time.Now().UTC()
	}

	in := Input{
		CaptureID:   row.ID,
		Source:      row.Source,
		Body:        row.RawContent.String,
		ContentHash: hash,
		CapturedAt:  capturedAt,
		Meta:        meta,
		FromStatus:  row.Status,
	}

	_, err = l.Exporter.Export(in)
	return err
}

// resolveHash returns row's content hash, binding it first when the row was
// staged with content_hash NULL. Email captures are hashed immediately
// (their body is already known in full, using the message_id-qualified
// hashing.EmailHash so two emails with identical bodies but distinct
// message ids never collide). Voice captures are not ready until something
// outside this loop binds their hash via ledger.BindContentHash, since
// transcription itself is out of scope. A failed_transcription row gets a
// deterministic id-derived hash so the placeholder export is idempotent
// across retries.
func (l *Loop) resolveHash(row ledger.Capture) (hash string, ready bool, err error) {
	if row.ContentHash.Valid {
		return row.ContentHash.String, true, nil
	}

	if row.Status == capture.StatusFailedTranscription {
		return hashing.Hash("placeholder:" + row.ID), true, nil
	}

	if row.Source != capture.SourceEmail {
		return "", false, nil
	}

	var meta struct {
		MessageID string `json:"message_id"`
	}
	_ = json.Unmarshal([]byte(row.MetaJSON), &meta)

	hash = hashing.EmailHash(meta.MessageID, row.RawContent.String)
	now := time.Now().UTC().Format(createdAtLayout)
	if err := l.Store.WithTransaction(func(tx *sql.Tx) error {
		return ledger.BindContentHash(tx, row.ID, hash, now)
	}); err != nil {
		return "", false, err
	}

	return hash, true, nil
}

// Shutdown stops the loop, letting an in-flight tick finish before ctx's
// deadline.
func (l *Loop) Shutdown(ctx context.Context) error {
	if l.stop == nil {
		return nil
	}
	l.stopOnce.Do(func() { close(l.stop) })

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
