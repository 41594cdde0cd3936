// Package capture implements the capture lifecycle state machine (spec
// §4.8): staged -> transcribed -> exported, plus the failed-transcription
// placeholder path and the duplicate-export shortcuts. It holds no storage
// dependency; the ledger calls ValidateTransition before persisting a
// status change, the way the teacher's worker packages keep status-machine
// logic separate from the SQL that records it.
package capture

import "fmt"

// Status is one of the fixed capture lifecycle states.
type Status string

const (
	StatusStaged               Status = "staged"
	StatusTranscribed          Status = "transcribed"
	StatusExported             Status = "exported"
	StatusExportedDuplicate    Status = "exported_duplicate"
	StatusExportedPlaceholder  Status = "exported_placeholder"
	StatusFailedTranscription  Status = "failed_transcription"
)

// Source is the capture's origin channel.
type Source string

const (
	SourceVoice Source = "voice"
	SourceEmail Source = "email"
)

// terminal holds the states from which no further transition is accepted.
var terminal = map[Status]bool{
	StatusExported:            true,
	StatusExportedDuplicate:   true,
	StatusExportedPlaceholder: true,
}

// edges is the exhaustive transition table from spec §4.8.
var edges = map[Status]map[Status]bool{
	StatusStaged: {
		StatusTranscribed:         true,
		StatusFailedTranscription: true,
		StatusExportedDuplicate:   true,
		StatusExported:            true,
	},
	StatusTranscribed: {
		StatusExported:          true,
		StatusExportedDuplicate: true,
	},
	StatusFailedTranscription: {
		StatusExportedPlaceholder: true,
	},
}

// IsTerminal reports whether s is a terminal status.
func IsTerminal(s Status) bool {
	return terminal[s]
}

// ValidateTransition reports whether moving from `from` to `to` is one of
// the edges in spec §4.8. A transition out of a terminal state, or any
// edge not explicitly listed (including transcribed -> failed_transcription),
// is rejected.
func ValidateTransition(from, to Status) error {
	if IsTerminal(from) {
		return fmt.Errorf("capture: %q is a terminal status, cannot transition to %q", from, to)
	}
	if edges[from] == nil || !edges[from][to] {
		return fmt.Errorf("capture: illegal transition %q -> %q", from, to)
	}
	return nil
}
