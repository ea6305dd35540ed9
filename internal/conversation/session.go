package conversation

import (
	"time"

	"github.com/google/uuid"
)

// State is the conversation position of a single access attempt.
type State string

const (
	StateStart                State = "start"
	StateIdentifyVisitor      State = "identify_visitor"
	StateResolveResident      State = "resolve_resident"
	StateClarifyIdentity      State = "clarify_identity"
	StateNotifyResident       State = "notify_resident"
	StateAwaitingResident     State = "awaiting_resident"
	StateDeliverCustomMessage State = "deliver_custom_message"
	StateEscalating           State = "escalating"
	StateGateOpened           State = "gate_opened"
	StateDenied               State = "denied"
	StateTransferred          State = "transferred"
	StateEnded                State = "ended"
)

// Outcome values recorded when a session reaches StateEnded.
const (
	OutcomeGateOpened  = "gate_opened"
	OutcomeDenied      = "denied"
	OutcomeTransferred = "transferred"
	OutcomeAbandoned   = "abandoned"
)

// Visitor is what the caller has told us about themselves.
type Visitor struct {
	Name    string `json:"name,omitempty"`
	Cedula  string `json:"cedula,omitempty"`
	Plate   string `json:"plate,omitempty"`
	Purpose string `json:"purpose,omitempty"`
}

// Session is one call/visit attempt. It is owned by the single turn
// handling it; concurrent sessions share nothing.
type Session struct {
	ID      string  `json:"id"`
	State   State   `json:"state"`
	Visitor Visitor `json:"visitor"`

	// ResidentQuery accumulates the spoken name plus whatever the
	// clarify loop adds (surname, apartment).
	ResidentQuery string `json:"resident_query,omitempty"`

	ResolvedResidentID   string `json:"resolved_resident_id,omitempty"`
	ResolvedResidentName string `json:"resolved_resident_name,omitempty"`
	ResolvedApartment    string `json:"resolved_apartment,omitempty"`
	ResolvedPhone        string `json:"resolved_phone,omitempty"`

	// PendingAuthKey is set while the session is in awaiting_resident or
	// escalating; empty otherwise.
	PendingAuthKey string `json:"pending_auth_key,omitempty"`

	ClarifyAttempts  int    `json:"clarify_attempts,omitempty"`
	EscalationReason string `json:"escalation_reason,omitempty"`
	Outcome          string `json:"outcome,omitempty"`

	StartedAt        time.Time `json:"started_at"`
	LastTransitionAt time.Time `json:"last_transition_at"`
}

// NewSession creates a session in the start state.
func NewSession(id string, now time.Time) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		ID:               id,
		State:            StateStart,
		StartedAt:        now.UTC(),
		LastTransitionAt: now.UTC(),
	}
}

// Terminal reports whether the session has reached its final state.
func (s *Session) Terminal() bool {
	return s.State == StateEnded
}

func (s *Session) transition(state State, now time.Time) {
	s.State = state
	s.LastTransitionAt = now.UTC()
	// Keep the invariant: the key only lives in the waiting states.
	switch state {
	case StateAwaitingResident, StateEscalating, StateDeliverCustomMessage:
	default:
		s.PendingAuthKey = ""
	}
}
