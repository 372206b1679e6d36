package events

import (
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketTransferred     EventType = "ticket_transferred"
	EventTicketClosed          EventType = "ticket_closed"
	EventTicketReopened        EventType = "ticket_reopened"
	EventCSATRegistered        EventType = "csat_registered"
)

// ActorType identifies who triggered an event.
type ActorType string

const (
	ActorAgent   ActorType = "agent"
	ActorContact ActorType = "contact"
	ActorSystem  ActorType = "system"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    ActorType `json:"type"`
	AgentID *string   `json:"agent_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TenantID  string      `json:"tenant_id"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Number       int64                 `json:"number"`
	ChannelID    string                `json:"channel_id,omitempty"`
	ContactPhone string                `json:"contact_phone"`
	Priority     domain.TicketPriority `json:"priority"`
	Origin       domain.TicketOrigin   `json:"origin"`
	Subject      string                `json:"subject"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Reason    string              `json:"reason,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AgentID       string  `json:"agent_id"`
	PreviousAgent *string `json:"previous_agent,omitempty"`
	AutoAssigned  bool    `json:"auto_assigned"`
}

// TicketTransferredPayload payload.
type TicketTransferredPayload struct {
	FromAgent *string `json:"from_agent,omitempty"`
	ToAgent   string  `json:"to_agent"`
	Reason    string  `json:"reason,omitempty"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	FinalStatus     domain.TicketStatus `json:"final_status"`
	Reason          string              `json:"reason,omitempty"`
	CSATRequested   bool                `json:"csat_requested"`
	FollowUpCreated bool                `json:"follow_up_created"`
	HandlingSeconds int64               `json:"handling_seconds"`
}

// CSATRegisteredPayload payload.
type CSATRegisteredPayload struct {
	SessionID string `json:"session_id"`
	Score     int    `json:"score"`
}
