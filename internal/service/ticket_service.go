package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/notify"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/pkg/util"
)

// TicketService owns the ticket lifecycle: creation, assignment, status
// transitions, closure and reopening. Persistence always commits before
// any notification attempt; notification and collaborator failures degrade
// the result instead of failing the operation.
type TicketService struct {
	tickets    repository.TicketRepository
	contacts   repository.ContactRepository
	messages   repository.MessageRepository
	followUps  repository.FollowUpRepository
	directory  repository.AgentDirectory
	assigner   Assigner
	finalizer  TriageFinalizer
	messenger  notify.Messenger
	dispatcher events.Dispatcher
	logger     *zap.Logger
	engine     config.EngineConfig
	adminPhone string
}

// TicketDependencies bundles collaborators for the lifecycle engine.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	ContactRepo  repository.ContactRepository
	MessageRepo  repository.MessageRepository
	FollowUpRepo repository.FollowUpRepository
	Directory    repository.AgentDirectory
	Assigner     Assigner
	Finalizer    TriageFinalizer
	Messenger    notify.Messenger
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Engine       config.EngineConfig
	AdminPhone   string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		contacts:   deps.ContactRepo,
		messages:   deps.MessageRepo,
		followUps:  deps.FollowUpRepo,
		directory:  deps.Directory,
		assigner:   deps.Assigner,
		finalizer:  deps.Finalizer,
		messenger:  deps.Messenger,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		engine:     deps.Engine,
		adminPhone: deps.AdminPhone,
	}
}

// FindOrCreateInput describes the webhook ingestion payload.
type FindOrCreateInput struct {
	TenantID     string
	ChannelID    string
	ContactPhone string
	ContactName  string
	ContactPhoto *string
	Subject      string
}

// TriageCreateInput describes the triage hand-off payload.
type TriageCreateInput struct {
	TenantID     string
	ChannelID    string
	ContactPhone string
	ContactName  string
	DepartmentID *string
	UnitID       *string
	Priority     domain.TicketPriority
	Subject      string
	Description  string
}

// TransferInput describes a manual reassignment.
type TransferInput struct {
	AgentID string
	Reason  string
}

// CloseInput describes a closure request.
type CloseInput struct {
	Reason         string
	CreateFollowUp bool
	FollowUpDate   *time.Time
	RequestSurvey  bool
}

// CloseResult carries the closed ticket plus the degraded-side-effect
// outcomes: follow-up reference when one was created, whether the CSAT
// request actually went out, and warnings for every swallowed failure.
type CloseResult struct {
	Ticket   *domain.Ticket
	FollowUp *domain.FollowUp
	CSATSent bool
	Warnings []string
}

// Reasons whose closure means the conversation ended without a resolution.
var closedReasons = map[string]struct{}{
	"cancelado":         {},
	"cancelado_cliente": {},
	"sem_resposta":      {},
	"duplicado":         {},
	"spam":              {},
	"outro":             {},
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:             {domain.TicketStatusInProgress},
	domain.TicketStatusInProgress:       {domain.TicketStatusAwaitingCustomer, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusAwaitingCustomer: {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusResolved:         {domain.TicketStatusClosed, domain.TicketStatusOpen},
	domain.TicketStatusClosed:           {domain.TicketStatusOpen},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	if current == next {
		return true
	}
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// FindOrCreate reuses the contact's active ticket when one exists,
// refreshing its last-message timestamp, and otherwise opens a new one.
func (s *TicketService) FindOrCreate(ctx context.Context, input FindOrCreateInput) (*domain.Ticket, error) {
	filter := repository.TicketFilter{
		TenantID:     input.TenantID,
		ChannelID:    &input.ChannelID,
		ContactPhone: &input.ContactPhone,
		Statuses:     domain.ActiveStatuses(),
	}
	existing, err := s.tickets.FindNewest(ctx, filter)
	if err != nil {
		return nil, util.MapError(err)
	}

	now := time.Now().UTC()
	if existing != nil {
		existing.LastMessageAt = now
		if input.ContactPhoto != nil {
			existing.ContactPhoto = input.ContactPhoto
		}
		if err := s.tickets.Update(ctx, existing); err != nil {
			return nil, util.MapError(err)
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TenantID: existing.TenantID,
			TicketID: existing.ID,
			Actor:    systemActor(),
			Payload: events.TicketStatusChangedPayload{
				OldStatus: existing.Status,
				NewStatus: existing.Status,
				Reason:    "message_received",
			},
		})
		return existing, nil
	}

	ticket := &domain.Ticket{
		TenantID:      input.TenantID,
		ChannelID:     input.ChannelID,
		ContactPhone:  input.ContactPhone,
		ContactName:   input.ContactName,
		ContactPhoto:  input.ContactPhoto,
		Subject:       strings.TrimSpace(input.Subject),
		Status:        domain.TicketStatusOpen,
		Priority:      domain.TicketPriorityMedium,
		Origin:        domain.TicketOriginWebhook,
		OpenedAt:      now,
		LastMessageAt: now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, util.MapError(err)
	}
	s.ensureNumber(ctx, ticket)

	s.publishCreated(ctx, ticket)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Actor:    systemActor(),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: domain.TicketStatusOpen,
			NewStatus: domain.TicketStatusOpen,
			Reason:    "created",
		},
	})
	return ticket, nil
}

// CreateForTriage opens a ticket handed off by the triage bot, skipping the
// find-or-create lookup. When a department or unit is given the ticket is
// auto-assigned; assignment failure leaves the ticket unassigned.
func (s *TicketService) CreateForTriage(ctx context.Context, input TriageCreateInput) (*domain.Ticket, error) {
	now := time.Now().UTC()
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}

	ticket := &domain.Ticket{
		TenantID:      input.TenantID,
		ChannelID:     input.ChannelID,
		ContactPhone:  input.ContactPhone,
		ContactName:   input.ContactName,
		Subject:       strings.TrimSpace(input.Subject),
		Description:   strings.TrimSpace(input.Description),
		Status:        domain.TicketStatusOpen,
		Priority:      priority,
		Origin:        domain.TicketOriginTriage,
		OpenedAt:      now,
		LastMessageAt: now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, util.MapError(err)
	}
	s.ensureNumber(ctx, ticket)
	s.publishCreated(ctx, ticket)

	if s.assigner != nil && (input.DepartmentID != nil || input.UnitID != nil) {
		candidate, err := s.assigner.AutoAssign(ctx, ticket.ID, input.DepartmentID, input.UnitID)
		if err != nil {
			s.logger.Warn("auto-assignment failed; ticket left unassigned",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		} else if candidate != nil {
			// Re-read to pick up the agent and status set by the assigner.
			if updated, err := s.tickets.GetByID(ctx, ticket.ID); err == nil {
				ticket = updated
			}
			s.sendWelcome(ctx, ticket, candidate.Name)
		}
	}
	return ticket, nil
}

// Assign puts a ticket in the given agent's hands and forces IN_PROGRESS.
// Assigning out of a terminal status follows the same policy as Transfer:
// configurable, and when allowed both end dates are cleared. The first
// assignment of an open ticket greets the contact; any greeting failure is
// logged and swallowed.
func (s *TicketService) Assign(ctx context.Context, ticketID, agentID string, sendWelcome bool) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if ticket.Status.IsTerminal() && !s.engine.AllowClosedTransfer {
		return nil, util.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusInProgress))
	}

	agent, err := s.directory.GetByID(ctx, agentID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if agent == nil {
		return nil, util.NewNotFound("agent", map[string]any{"agent_id": agentID})
	}

	firstAssignment := ticket.AgentID == nil && ticket.Status == domain.TicketStatusOpen
	previous := ticket.AgentID
	ticket.AgentID = &agentID
	if ticket.Status.IsTerminal() {
		ticket.ResolvedAt = nil
		ticket.ClosedAt = nil
	}
	ticket.Status = domain.TicketStatusInProgress
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, util.MapError(err)
	}
	if err := s.directory.RecordAssignment(ctx, agentID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to record assignment recency", zap.Error(err))
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Actor:    agentActor(agentID),
		Payload: events.TicketAssignedPayload{
			AgentID:       agentID,
			PreviousAgent: previous,
		},
	})

	if firstAssignment || sendWelcome {
		s.sendWelcome(ctx, ticket, agent.Name)
	}
	return ticket, nil
}

// UpdateStatus applies a lifecycle transition. Same-state changes persist
// and notify as no-ops; illegal transitions are rejected before any write.
func (s *TicketService) UpdateStatus(ctx context.Context, ticketID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if !isValidTransition(ticket.Status, newStatus) {
		return nil, util.NewInvalidTransition(string(ticket.Status), string(newStatus))
	}

	oldStatus := ticket.Status
	now := time.Now().UTC()
	switch {
	case newStatus == domain.TicketStatusResolved && ticket.ResolvedAt == nil:
		ticket.ResolvedAt = &now
	case newStatus == domain.TicketStatusClosed && ticket.ClosedAt == nil:
		ticket.ClosedAt = &now
	case newStatus == domain.TicketStatusOpen && oldStatus.IsTerminal():
		ticket.ResolvedAt = nil
		ticket.ClosedAt = nil
	}
	ticket.Status = newStatus
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, util.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Actor:    systemActor(),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return ticket, nil
}

// UpdatePriority sets the ticket priority unconditionally. Escalations to
// the highest tier alert the configured admin phone, best-effort.
func (s *TicketService) UpdatePriority(ctx context.Context, ticketID string, newPriority domain.TicketPriority) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, util.MapError(err)
	}

	oldPriority := ticket.Priority
	ticket.Priority = newPriority
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, util.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Actor:    systemActor(),
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: newPriority,
		},
	})

	if isEscalation(oldPriority, newPriority) && s.adminPhone != "" {
		alert := fmt.Sprintf("Ticket #%d escalated to %s (%s)", ticket.Number, newPriority, ticket.ContactName)
		if err := s.messenger.SendText(ctx, ticket.ChannelID, s.adminPhone, alert); err != nil {
			s.logger.Warn("urgent-priority alert failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return ticket, nil
}

// Transfer reassigns the ticket and forces IN_PROGRESS. Transfers out of a
// terminal status are configurable; when allowed they clear the end dates
// so the reopened handling episode starts clean.
func (s *TicketService) Transfer(ctx context.Context, ticketID string, input TransferInput) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if ticket.Status.IsTerminal() && !s.engine.AllowClosedTransfer {
		return nil, util.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusInProgress))
	}

	agent, err := s.directory.GetByID(ctx, input.AgentID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if agent == nil {
		return nil, util.NewNotFound("agent", map[string]any{"agent_id": input.AgentID})
	}

	previous := ticket.AgentID
	ticket.AgentID = &input.AgentID
	if ticket.Status.IsTerminal() {
		ticket.ResolvedAt = nil
		ticket.ClosedAt = nil
	}
	ticket.Status = domain.TicketStatusInProgress
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, util.MapError(err)
	}
	if err := s.directory.RecordAssignment(ctx, input.AgentID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to record assignment recency", zap.Error(err))
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketTransferred,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Actor:    agentActor(input.AgentID),
		Payload: events.TicketTransferredPayload{
			FromAgent: previous,
			ToAgent:   input.AgentID,
			Reason:    input.Reason,
		},
	})
	return ticket, nil
}

// Close ends the handling episode. The terminal status derives from the
// close reason; both end dates are stamped together. Follow-up creation,
// CSAT request and triage finalization run after the persisted transition
// and degrade on failure.
func (s *TicketService) Close(ctx context.Context, ticketID string, input CloseInput) (*CloseResult, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, util.MapError(err)
	}

	finalStatus := terminalStatusForReason(input.Reason)
	if !isValidTransition(ticket.Status, finalStatus) {
		return nil, util.NewInvalidTransition(string(ticket.Status), string(finalStatus))
	}

	now := time.Now().UTC()
	if ticket.ResolvedAt == nil {
		ticket.ResolvedAt = &now
	}
	if ticket.ClosedAt == nil {
		ticket.ClosedAt = &now
	}
	ticket.Status = finalStatus
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, util.MapError(err)
	}

	result := &CloseResult{Ticket: ticket}

	if input.CreateFollowUp && ticket.AgentID != nil {
		result.FollowUp = s.createFollowUp(ctx, ticket, input, result)
	} else if input.CreateFollowUp {
		result.Warnings = append(result.Warnings, "follow-up skipped: ticket has no agent")
	}

	if input.RequestSurvey {
		result.CSATSent = s.sendCSATRequest(ctx, ticket, result)
	}

	if s.finalizer != nil {
		closure := TriageClosure{
			Reason:        input.Reason,
			ClosedAt:      now,
			CSATRequested: result.CSATSent,
		}
		if result.CSATSent {
			closure.CSATRequestedAt = &now
		}
		if err := s.finalizer.FinalizeForTicket(ctx, ticket, closure); err != nil {
			s.logger.Warn("triage finalization failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			result.Warnings = append(result.Warnings, "triage sessions not finalized")
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Actor:    systemActor(),
		Payload: events.TicketClosedPayload{
			FinalStatus:     finalStatus,
			Reason:          input.Reason,
			CSATRequested:   result.CSATSent,
			FollowUpCreated: result.FollowUp != nil,
			HandlingSeconds: handlingSeconds(ticket, now),
		},
	})
	return result, nil
}

// Reopen returns a terminal ticket to OPEN and clears both end dates.
func (s *TicketService) Reopen(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if !ticket.Status.IsTerminal() {
		return nil, util.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusOpen))
	}

	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusOpen
	ticket.ResolvedAt = nil
	ticket.ClosedAt = nil
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, util.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketReopened,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Actor:    systemActor(),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: domain.TicketStatusOpen,
		},
	})
	return ticket, nil
}

// GetView fetches a ticket enriched with derived read-only fields. A
// missing contact record never fails the read; the snapshot falls back to
// the contact fields stored on the ticket.
func (s *TicketService) GetView(ctx context.Context, ticketID string) (*domain.TicketView, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, util.MapError(err)
	}

	view := &domain.TicketView{
		Ticket: *ticket,
		Contact: domain.ContactSnapshot{
			Name:  ticket.ContactName,
			Phone: ticket.ContactPhone,
			Photo: ticket.ContactPhoto,
		},
		HandlingSeconds: handlingSeconds(ticket, time.Now().UTC()),
	}

	if contact, err := s.contacts.FindByPhone(ctx, ticket.TenantID, ticket.ContactPhone); err != nil {
		s.logger.Warn("contact lookup failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	} else if contact != nil {
		view.Contact = domain.ContactSnapshot{
			ContactID: &contact.ID,
			Name:      contact.Name,
			Phone:     contact.Phone,
			Email:     contact.Email,
			Photo:     contact.Photo,
		}
	}

	if total, err := s.messages.CountByTicket(ctx, ticket.ID); err == nil {
		view.TotalMessages = total
	}
	if unread, err := s.messages.CountUnreadFromContact(ctx, ticket.ID); err == nil {
		view.UnreadMessages = unread
	}
	if latest, err := s.messages.Latest(ctx, ticket.ID); err == nil && latest != nil {
		view.LastMessagePreview = stringPreview(latest.Body, 120)
	}
	return view, nil
}

// List returns tickets matching the filter plus the unpaginated total.
func (s *TicketService) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error) {
	tickets, total, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, 0, util.MapError(err)
	}
	return tickets, total, nil
}

// RegisterFirstResponse stamps firstResponseAt the first time an agent
// replies. Later calls are no-ops.
func (s *TicketService) RegisterFirstResponse(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if ticket.FirstResponseAt != nil {
		return ticket, nil
	}
	now := time.Now().UTC()
	ticket.FirstResponseAt = &now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, util.MapError(err)
	}
	return ticket, nil
}

// TouchLastMessage refreshes the conversation recency timestamp.
func (s *TicketService) TouchLastMessage(ctx context.Context, ticketID string) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return util.MapError(err)
	}
	ticket.LastMessageAt = time.Now().UTC()
	return util.MapError(s.tickets.Update(ctx, ticket))
}

// CountActiveForAgent returns the agent's current active-ticket load.
func (s *TicketService) CountActiveForAgent(ctx context.Context, tenantID, agentID string) (int, error) {
	count, err := s.tickets.Count(ctx, repository.TicketFilter{
		TenantID: tenantID,
		AgentID:  &agentID,
		Statuses: domain.ActiveStatuses(),
	})
	if err != nil {
		return 0, util.MapError(err)
	}
	return count, nil
}

func isEscalation(old, next domain.TicketPriority) bool {
	high := func(p domain.TicketPriority) bool {
		return p == domain.TicketPriorityHigh || p == domain.TicketPriorityUrgent
	}
	return high(next) && !high(old)
}

func terminalStatusForReason(reason string) domain.TicketStatus {
	if _, ok := closedReasons[strings.ToLower(strings.TrimSpace(reason))]; ok {
		return domain.TicketStatusClosed
	}
	return domain.TicketStatusResolved
}

// handlingSeconds measures openedAt to the episode's end: closedAt for
// CLOSED, resolvedAt for RESOLVED, the last update when terminal data is
// missing, and "now" while still open.
func handlingSeconds(ticket *domain.Ticket, now time.Time) int64 {
	end := now
	switch ticket.Status {
	case domain.TicketStatusClosed:
		if ticket.ClosedAt != nil {
			end = *ticket.ClosedAt
		} else if ticket.ResolvedAt != nil {
			end = *ticket.ResolvedAt
		} else {
			end = ticket.UpdatedAt
		}
	case domain.TicketStatusResolved:
		if ticket.ResolvedAt != nil {
			end = *ticket.ResolvedAt
		} else {
			end = ticket.UpdatedAt
		}
	}
	seconds := int64(end.Sub(ticket.OpenedAt).Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds
}

// ensureNumber backfills the per-tenant ticket number when the storage
// sequence did not populate it. Recoverable, logged as a warning.
func (s *TicketService) ensureNumber(ctx context.Context, ticket *domain.Ticket) {
	if ticket.Number > 0 {
		return
	}
	max, err := s.tickets.MaxNumber(ctx, ticket.TenantID)
	if err != nil {
		s.logger.Warn("number fallback lookup failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	ticket.Number = max + 1
	if err := s.tickets.Update(ctx, ticket); err != nil {
		s.logger.Warn("number fallback save failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		ticket.Number = 0
		return
	}
	s.logger.Warn("ticket number assigned via fallback",
		zap.String("ticket_id", ticket.ID), zap.Int64("number", ticket.Number))
}

func (s *TicketService) createFollowUp(ctx context.Context, ticket *domain.Ticket, input CloseInput, result *CloseResult) *domain.FollowUp {
	due := time.Now().UTC().Add(24 * time.Hour)
	if input.FollowUpDate != nil {
		due = *input.FollowUpDate
	}
	followUp := &domain.FollowUp{
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		AgentID:  *ticket.AgentID,
		Title:    fmt.Sprintf("Follow up ticket #%d", ticket.Number),
		Notes:    input.Reason,
		DueAt:    due,
	}
	if err := s.followUps.Create(ctx, followUp); err != nil {
		s.logger.Warn("follow-up creation failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		result.Warnings = append(result.Warnings, "follow-up not created")
		return nil
	}
	return followUp
}

func (s *TicketService) sendCSATRequest(ctx context.Context, ticket *domain.Ticket, result *CloseResult) bool {
	text := fmt.Sprintf(
		"Your ticket #%d has been closed. How would you rate the service? Reply with a score from 1 to 10.",
		ticket.Number)
	if err := s.messenger.SendText(ctx, ticket.ChannelID, ticket.ContactPhone, text); err != nil {
		s.logger.Warn("csat request failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		result.Warnings = append(result.Warnings, "csat request not sent")
		return false
	}
	return true
}

func (s *TicketService) sendWelcome(ctx context.Context, ticket *domain.Ticket, agentName string) {
	if err := s.messenger.SendTyping(ctx, ticket.ChannelID, ticket.ContactPhone, 2*time.Second); err != nil {
		s.logger.Debug("typing indicator failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	text := fmt.Sprintf("Hi %s! My name is %s and I'll be handling your ticket #%d.",
		ticket.ContactName, agentName, ticket.Number)
	if err := s.messenger.SendText(ctx, ticket.ChannelID, ticket.ContactPhone, text); err != nil {
		s.logger.Warn("welcome message failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (s *TicketService) publishCreated(ctx context.Context, ticket *domain.Ticket) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Actor:    systemActor(),
		Payload: events.TicketCreatedPayload{
			Number:       ticket.Number,
			ChannelID:    ticket.ChannelID,
			ContactPhone: ticket.ContactPhone,
			Priority:     ticket.Priority,
			Origin:       ticket.Origin,
			Subject:      ticket.Subject,
		},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func systemActor() events.Actor {
	return events.Actor{Type: events.ActorSystem}
}

func agentActor(agentID string) events.Actor {
	return events.Actor{Type: events.ActorAgent, AgentID: &agentID}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
