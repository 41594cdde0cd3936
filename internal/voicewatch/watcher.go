// Package voicewatch supplies the trigger the voice half of the capture
// lifecycle otherwise has no mechanism to enter from: a directory watcher
// that stages every new audio file it sees and, since a real transcription
// service is out of scope, immediately fingerprints it and records the
// failed_transcription state so the export loop picks it up as a
// placeholder note. Grounded on internal/poller.Loop's
// ticker/stop-channel/sync.Once shape, with github.com/fsnotify/fsnotify
// (already pulled in transitively through viper) promoted to a direct,
// exercised dependency for the filesystem event source.
package voicewatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nathanvale/capture-bridge/internal/capture"
	"github.com/nathanvale/capture-bridge/internal/hashing"
	"github.com/nathanvale/capture-bridge/internal/ledger"
	"github.com/nathanvale/capture-bridge/internal/stager"
)

// audioExtensions are the file suffixes treated as voice memos.
var audioExtensions = map[string]bool{
	".m4a": true,
	".wav": true,
	".mp3": true,
	".aac": true,
}

// Fingerprinter computes a content-addressable hash for a voice memo file.
// The production value is hashing.AudioFingerprint; tests substitute a
// stub so they never touch real audio bytes.
type Fingerprinter func(path string) (string, error)

// Watcher stages every audio file that appears in Dir. It holds no
// crash-persisted cursor: a file already staged in a prior process
// lifetime is skipped because its path is recorded in the ledger, not
// because the watcher remembers having seen it (spec's durability
// guarantees stop at the ledger boundary).
type Watcher struct {
	Dir         string
	Store       *ledger.Store
	Stager      *stager.VoiceStager
	Fingerprint Fingerprinter
	Now         func() string

	stop     chan struct{}
	done     chan struct{}
	fsw      *fsnotify.Watcher
	stopOnce sync.Once

	mu   sync.Mutex
	seen map[string]bool
}

// New builds a Watcher with the real audio fingerprinter and clock.
func New(dir string, store *ledger.Store) *Watcher {
	return &Watcher{
		Dir:         dir,
		Store:       store,
		Stager:      stager.NewVoiceStager(),
		Fingerprint: hashing.AudioFingerprint,
		Now:         func() string { return time.Now().UTC().Format("2006-01-02T15:04:05.000Z") },
		seen:        make(map[string]bool),
	}
}

// Start scans Dir for files already present, then watches for new ones in
// a background goroutine until Shutdown is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.Dir); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	w.scanExisting()

	go func() {
		defer close(w.done)
		defer fsw.Close()

		for {
			select {
			case <-w.stop:
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				w.maybeStage(event.Name)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Printf("voicewatch: watch error: %v", err)
			}
		}
	}()

	return nil
}

// scanExisting stages any audio file already sitting in Dir at startup,
// so memos dropped in while the daemon was down are not lost.
func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		log.Printf("voicewatch: initial scan of %s: %v", w.Dir, err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.maybeStage(filepath.Join(w.Dir, entry.Name()))
	}
}

func (w *Watcher) maybeStage(path string) {
	if !audioExtensions[strings.ToLower(filepath.Ext(path))] {
		return
	}

	w.mu.Lock()
	if w.seen[path] {
		w.mu.Unlock()
		return
	}
	w.seen[path] = true
	w.mu.Unlock()

	if err := w.stage(path); err != nil {
		log.Printf("voicewatch: stage %s: %v", path, err)
	}
}

// stage skips a path that already has a voice capture in the ledger;
// otherwise it inserts the capture row, fingerprints the file, binds the
// fingerprint as the content hash, and advances the row straight to
// failed_transcription — the only reachable terminal precursor for voice
// captures until a real transcription service exists.
func (w *Watcher) stage(path string) error {
	metaJSON, err := json.Marshal(map[string]string{"original_path": path})
	if err != nil {
		return err
	}
	var existing int
	if err := w.Store.DB().QueryRow(
		`SELECT COUNT(*) FROM captures WHERE source = ? AND meta_json = ?`,
		string(capture.SourceVoice), string(metaJSON),
	).Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	fingerprint, err := w.Fingerprint(path)
	if err != nil {
		return err
	}

	return w.Store.WithTransaction(func(tx *sql.Tx) error {
		result, err := w.Stager.Stage(tx, path)
		if err != nil {
			return err
		}

		now := w.Now()
		if err := ledger.BindContentHash(tx, result.CaptureID, fingerprint, now); err != nil {
			return err
		}
		return ledger.AdvanceStatus(tx, result.CaptureID, capture.StatusStaged, capture.StatusFailedTranscription, now)
	})
}

// Shutdown stops the watcher, closing its fsnotify handle once watching
// goroutine observes stop.
func (w *Watcher) Shutdown(ctx context.Context) error {
	if w.stop == nil {
		return nil
	}
	w.stopOnce.Do(func() { close(w.stop) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
