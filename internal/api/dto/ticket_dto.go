// Package dto defines the HTTP boundary types. Payloads are validated
// once here; internal hops trust the structs.
package dto

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/ticket-engine/internal/domain"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

var validate = validator.New()

// Validate runs struct tag validation and converts failures to the
// VALIDATION_FAILED taxonomy.
func Validate(payload any) error {
	if err := validate.Struct(payload); err != nil {
		details := map[string]any{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		return apperrors.NewValidationError("invalid payload", details)
	}
	return nil
}

// InboundMessageRequest is the webhook payload for a contact message.
type InboundMessageRequest struct {
	TenantID     string  `json:"tenant_id" validate:"required"`
	ChannelID    string  `json:"channel_id" validate:"required"`
	ContactPhone string  `json:"contact_phone" validate:"required"`
	ContactName  string  `json:"contact_name"`
	ContactPhoto *string `json:"contact_photo"`
	Body         string  `json:"body"`
}

// CreateTriageTicketRequest is the triage hand-off payload.
type CreateTriageTicketRequest struct {
	TenantID     string  `json:"tenant_id" validate:"required"`
	ChannelID    string  `json:"channel_id"`
	ContactPhone string  `json:"contact_phone" validate:"required"`
	ContactName  string  `json:"contact_name"`
	DepartmentID *string `json:"department_id"`
	UnitID       *string `json:"unit_id"`
	Priority     string  `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Subject      string  `json:"subject" validate:"required"`
	Description  string  `json:"description"`
}

// AssignTicketRequest assigns an agent.
type AssignTicketRequest struct {
	AgentID     string `json:"agent_id" validate:"required"`
	SendWelcome bool   `json:"send_welcome"`
}

// UpdateStatusRequest changes lifecycle status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=OPEN IN_PROGRESS AWAITING_CUSTOMER RESOLVED CLOSED"`
}

// UpdatePriorityRequest changes priority.
type UpdatePriorityRequest struct {
	Priority string `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH URGENT"`
}

// TransferTicketRequest reassigns an agent.
type TransferTicketRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
	Reason  string `json:"reason"`
}

// CloseTicketRequest ends the handling episode.
type CloseTicketRequest struct {
	Reason         string     `json:"reason"`
	CreateFollowUp bool       `json:"create_follow_up"`
	FollowUpDate   *time.Time `json:"follow_up_date"`
	RequestSurvey  bool       `json:"request_survey"`
}

// TicketSummary is the list/create response shape.
type TicketSummary struct {
	ID            string     `json:"id"`
	Number        int64      `json:"number"`
	TenantID      string     `json:"tenant_id"`
	ChannelID     string     `json:"channel_id,omitempty"`
	ContactPhone  string     `json:"contact_phone"`
	ContactName   string     `json:"contact_name"`
	AgentID       *string    `json:"agent_id,omitempty"`
	Subject       string     `json:"subject"`
	Status        string     `json:"status"`
	Priority      string     `json:"priority"`
	Origin        string     `json:"origin"`
	OpenedAt      time.Time  `json:"opened_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	LastMessageAt time.Time  `json:"last_message_at"`
}

// ContactSnapshotResponse is the denormalized contact view.
type ContactSnapshotResponse struct {
	ContactID *string `json:"contact_id,omitempty"`
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	Email     *string `json:"email,omitempty"`
	Photo     *string `json:"photo,omitempty"`
}

// TicketDetailResponse is the single-ticket response with derived fields.
type TicketDetailResponse struct {
	TicketSummary
	Description        string                  `json:"description,omitempty"`
	Contact            ContactSnapshotResponse `json:"contact"`
	UnreadMessages     int                     `json:"unread_messages"`
	TotalMessages      int                     `json:"total_messages"`
	LastMessagePreview string                  `json:"last_message_preview,omitempty"`
	HandlingSeconds    int64                   `json:"handling_seconds"`
}

// CloseTicketResponse reports the closure plus degraded side effects.
type CloseTicketResponse struct {
	Ticket     TicketSummary `json:"ticket"`
	FollowUpID *string       `json:"follow_up_id,omitempty"`
	CSATSent   bool          `json:"csat_sent"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// TicketListResponse wraps paginated results.
type TicketListResponse struct {
	Items []TicketSummary `json:"items"`
	Total int             `json:"total"`
}

// InboundMessageResponse reports webhook processing.
type InboundMessageResponse struct {
	Ticket         TicketSummary `json:"ticket"`
	CSATRegistered bool          `json:"csat_registered"`
	CSATScore      *int          `json:"csat_score,omitempty"`
}

// FromTicket maps the domain aggregate to its summary shape.
func FromTicket(ticket *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:            ticket.ID,
		Number:        ticket.Number,
		TenantID:      ticket.TenantID,
		ChannelID:     ticket.ChannelID,
		ContactPhone:  ticket.ContactPhone,
		ContactName:   ticket.ContactName,
		AgentID:       ticket.AgentID,
		Subject:       ticket.Subject,
		Status:        string(ticket.Status),
		Priority:      string(ticket.Priority),
		Origin:        string(ticket.Origin),
		OpenedAt:      ticket.OpenedAt,
		ResolvedAt:    ticket.ResolvedAt,
		ClosedAt:      ticket.ClosedAt,
		LastMessageAt: ticket.LastMessageAt,
	}
}

// FromTicketView maps the enriched read model.
func FromTicketView(view *domain.TicketView) TicketDetailResponse {
	return TicketDetailResponse{
		TicketSummary: FromTicket(&view.Ticket),
		Description:   view.Description,
		Contact: ContactSnapshotResponse{
			ContactID: view.Contact.ContactID,
			Name:      view.Contact.Name,
			Phone:     view.Contact.Phone,
			Email:     view.Contact.Email,
			Photo:     view.Contact.Photo,
		},
		UnreadMessages:     view.UnreadMessages,
		TotalMessages:      view.TotalMessages,
		LastMessagePreview: view.LastMessagePreview,
		HandlingSeconds:    view.HandlingSeconds,
	}
}
