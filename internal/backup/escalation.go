package backup

import "encoding/json"

// Status is the escalation label derived from consecutive_failures
// (spec §4.6).
type Status string

const (
	StatusHealthy        Status = "HEALTHY"
	StatusWarn           Status = "WARN"
	StatusDegradedBackup Status = "DEGRADED_BACKUP"
	StatusHaltPruning    Status = "HALT_PRUNING"
)

// EscalationState is the serialized record kept under sync_state key
// backup_verification_state.
type EscalationState struct {
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastSuccess         string `json:"last_success_timestamp,omitempty"`
	LastFailure         string `json:"last_failure_timestamp,omitempty"`
	Status              Status `json:"status"`
}

// statusForFailures maps a consecutive-failure count to its escalation
// label per the spec §4.6 table.
func statusForFailures(n int) Status {
	switch {
	case n <= 0:
		return StatusHealthy
	case n == 1:
		return StatusWarn
	case n == 2:
		return StatusDegradedBackup
	default:
		return StatusHaltPruning
	}
}

// OnSuccess resets the failure counter, recomputes status, updates
// last_success_timestamp, and preserves last_failure_timestamp.
func (s EscalationState) OnSuccess(now string) EscalationState {
	next := s
	next.ConsecutiveFailures = 0
	next.Status = StatusHealthy
	next.LastSuccess = now
	return next
}

// OnFailure increments the failure counter, recomputes status, updates
// last_failure_timestamp, and preserves last_success_timestamp.
func (s EscalationState) OnFailure(now string) EscalationState {
	next := s
	next.ConsecutiveFailures++
	next.Status = statusForFailures(next.ConsecutiveFailures)
	next.LastFailure = now
	return next
}

// MarshalState serializes an EscalationState for sync_state storage.
func MarshalState(s EscalationState) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalState parses a stored sync_state value. An empty string (key
// not yet set) yields the zero/HEALTHY state.
func UnmarshalState(raw string) (EscalationState, error) {
	if raw == "" {
		return EscalationState{Status: StatusHealthy}, nil
	}
	var s EscalationState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return EscalationState{}, err
	}
	return s, nil
}
