package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen             TicketStatus = "OPEN"
	TicketStatusInProgress       TicketStatus = "IN_PROGRESS"
	TicketStatusAwaitingCustomer TicketStatus = "AWAITING_CUSTOMER"
	TicketStatusResolved         TicketStatus = "RESOLVED"
	TicketStatusClosed           TicketStatus = "CLOSED"
)

// ActiveStatuses lists the states in which a ticket still owns the conversation.
func ActiveStatuses() []TicketStatus {
	return []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusAwaitingCustomer}
}

// IsTerminal reports whether the status ends the handling episode.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// TicketOrigin records which path opened the ticket.
type TicketOrigin string

const (
	TicketOriginWebhook TicketOrigin = "WEBHOOK"
	TicketOriginTriage  TicketOrigin = "TRIAGE"
	TicketOriginManual  TicketOrigin = "MANUAL"
)

// Ticket is the aggregate for customer-service conversations.
type Ticket struct {
	ID              string
	Number          int64
	TenantID        string
	ChannelID       string
	ContactPhone    string
	ContactName     string
	ContactPhoto    *string
	AgentID         *string
	Subject         string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	Origin          TicketOrigin
	OpenedAt        time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	LastMessageAt   time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int64
}

// ContactSnapshot is the denormalized contact view attached to ticket reads.
// Fields fall back to the values stored on the ticket when the contact
// record no longer exists.
type ContactSnapshot struct {
	ContactID *string
	Name      string
	Phone     string
	Email     *string
	Photo     *string
}

// TicketView is a Ticket enriched with derived read-only fields.
type TicketView struct {
	Ticket
	Contact            ContactSnapshot
	UnreadMessages     int
	TotalMessages      int
	LastMessagePreview string
	HandlingSeconds    int64
}
