package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/service"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

// WebhookHandler receives inbound channel messages. Each message either
// lands on the contact's active ticket or opens a new one, and may settle
// a pending satisfaction survey.
type WebhookHandler struct {
	tickets *service.TicketService
	csat    *service.CSATService
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(tickets *service.TicketService, csat *service.CSATService) *WebhookHandler {
	return &WebhookHandler{tickets: tickets, csat: csat}
}

// InboundMessage POST /webhooks/messages.
func (h *WebhookHandler) InboundMessage(c *fiber.Ctx) error {
	var req dto.InboundMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	csatResult, err := h.csat.RegisterReply(c.Context(), req.TenantID, req.ContactPhone, req.Body)
	if err != nil {
		// Survey matching is best-effort; the message still opens or
		// refreshes a ticket.
		csatResult = service.CSATResult{}
	}

	ticket, err := h.tickets.FindOrCreate(c.Context(), service.FindOrCreateInput{
		TenantID:     req.TenantID,
		ChannelID:    req.ChannelID,
		ContactPhone: req.ContactPhone,
		ContactName:  req.ContactName,
		ContactPhoto: req.ContactPhoto,
		Subject:      req.Body,
	})
	if err != nil {
		return err
	}

	resp := dto.InboundMessageResponse{
		Ticket:         dto.FromTicket(ticket),
		CSATRegistered: csatResult.Registered,
	}
	if csatResult.Registered {
		score := csatResult.Score
		resp.CSATScore = &score
	}
	return c.JSON(fiber.Map{"data": resp})
}
