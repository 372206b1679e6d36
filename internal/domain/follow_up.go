package domain

import "time"

// FollowUp is a reminder scheduled for the assigned agent when a ticket is
// closed with a follow-up request.
type FollowUp struct {
	ID        string
	TenantID  string
	TicketID  string
	AgentID   string
	Title     string
	Notes     string
	DueAt     time.Time
	CreatedAt time.Time
}
