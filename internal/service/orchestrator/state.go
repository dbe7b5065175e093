package orchestrator

import "github.com/kapu/persona-avatar-bot-go/internal/domain"

// State is a step of the per-record replacement state machine.
type State string

const (
	StatePending         State = "pending"
	StateClassifying     State = "classifying"
	StateAccepted        State = "accepted"
	StateSearching       State = "searching"
	StateTryingCandidate State = "trying_candidate"
	StateReplaced        State = "replaced"
	StateExhausted       State = "exhausted"

	// StateFlagged ends a check-only run for a record that needs replacement.
	StateFlagged State = "flagged"
	// StateReview ends a record whose current avatar could not be analysed
	// when replacing on fetch failure is disabled.
	StateReview State = "manual_review"
)

func (s State) String() string {
	return string(s)
}

// Terminal reports whether the state machine stops at s.
func (s State) Terminal() bool {
	switch s {
	case StateAccepted, StateReplaced, StateExhausted, StateFlagged, StateReview:
		return true
	default:
		return false
	}
}

// Outcome is the final result for one record.
type Outcome struct {
	RecordID         string             `json:"record_id"`
	Name             string             `json:"name"`
	Type             domain.PersonaType `json:"type"`
	State            State              `json:"state"`
	Verdict          domain.Verdict     `json:"verdict"`
	Reason           string             `json:"reason"`
	NeedsReplacement bool               `json:"needs_replacement"`
	OldURL           string             `json:"old_url,omitempty"`
	NewURL           string             `json:"new_url,omitempty"`
	SourceURL        string             `json:"source_url,omitempty"`
	Query            string             `json:"query,omitempty"`
	Candidates       int                `json:"candidates"`
	Attempts         int                `json:"attempts"`
	QuotaHit         bool               `json:"quota_hit,omitempty"`
	LastError        string             `json:"last_error,omitempty"`
}
