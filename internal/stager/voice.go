package stager

import (
	"database/sql"
	"time"

	"github.com/nathanvale/capture-bridge/internal/capture"
	"github.com/nathanvale/capture-bridge/internal/idgen"
	"github.com/nathanvale/capture-bridge/internal/ledger"
)

// VoiceStager stages captures sourced from the voice-memo directory watcher
// (the supplemented voice path this core still owns the lifecycle for: the
// transcription service itself is out of scope, but staging the raw file
// reference and later binding its content hash once transcribed is not).
type VoiceStager struct {
	IDs *idgen.Generator
	Now func() time.Time
}

// NewVoiceStager builds a VoiceStager with a real id generator/clock.
func NewVoiceStager() *VoiceStager {
	return &VoiceStager{IDs: idgen.New(), Now: time.Now}
}

type voiceMeta struct {
	OriginalPath string `json:"original_path"`
}

// Stage inserts a staged voice capture with content_hash left NULL; it is
// bound later via ledger.BindContentHash once the voice file is fingerprinted
// and/or transcribed (spec §3.1 "late binding").
func (s *VoiceStager) Stage(tx *sql.Tx, originalPath string) (StagedResult, error) {
	id := s.IDs.Next()
	now := s.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	if err := ledger.InsertCapture(tx, id, capture.SourceVoice, "", capture.StatusStaged, voiceMeta{OriginalPath: originalPath}, now); err != nil {
		return StagedResult{}, err
	}

	return StagedResult{CaptureID: id, Status: capture.StatusStaged, CreatedAt: now}, nil
}
