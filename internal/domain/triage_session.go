package domain

import "time"

// TriageSessionStatus enumerates bot conversation states.
type TriageSessionStatus string

const (
	SessionStatusInProgress  TriageSessionStatus = "in_progress"
	SessionStatusTransferred TriageSessionStatus = "transferred"
	SessionStatusConcluded   TriageSessionStatus = "concluded"
)

// TriageOutcome tags how a concluded session ended.
type TriageOutcome string

const (
	OutcomeHandedToHuman TriageOutcome = "handed_to_human"
	OutcomeTicketCreated TriageOutcome = "ticket_created"
)

// Context keys written by the finalizer and consumed by the CSAT responder.
const (
	CtxTicketStatusFinal = "ticket_status_final"
	CtxTicketClosedAt    = "ticket_closed_at"
	CtxCloseReason       = "close_reason"
	CtxCSATPending       = "csat_pending"
	CtxCSATRequestedAt   = "csat_requested_at"
	CtxCSATRespondedAt   = "csat_responded_at"
	CtxCSATScore         = "csat_score"
	CtxTicketNumber      = "ticket_number"
)

// TriageSession is a bot-driven pre-ticket conversation. The session store
// is owned by the triage collaborator; this core only finalizes sessions
// and records satisfaction replies.
type TriageSession struct {
	ID                  string
	TicketID            *string
	TenantID            string
	ContactPhone        string
	Status              TriageSessionStatus
	Outcome             *TriageOutcome
	Context             map[string]any
	SatisfactionScore   *int
	SatisfactionComment *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Concluded reports whether the session has already been finalized.
func (s *TriageSession) Concluded() bool {
	return s.Status == SessionStatusConcluded
}

// Conclude marks the session finished with the given outcome.
func (s *TriageSession) Conclude(outcome TriageOutcome) {
	s.Status = SessionStatusConcluded
	s.Outcome = &outcome
}

// PutContext stores a value in the session context bag.
func (s *TriageSession) PutContext(key string, value any) {
	if s.Context == nil {
		s.Context = make(map[string]any)
	}
	s.Context[key] = value
}

// ContextBool reads a boolean context value, tolerating absent keys.
func (s *TriageSession) ContextBool(key string) bool {
	if s.Context == nil {
		return false
	}
	v, ok := s.Context[key].(bool)
	return ok && v
}

// ContextString reads a string context value, tolerating absent keys.
func (s *TriageSession) ContextString(key string) (string, bool) {
	if s.Context == nil {
		return "", false
	}
	v, ok := s.Context[key].(string)
	return v, ok
}
