package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

// TriageClosure carries closure metadata into session finalization.
type TriageClosure struct {
	Reason          string
	ClosedAt        time.Time
	CSATRequested   bool
	CSATRequestedAt *time.Time
}

// TriageFinalizer concludes the triage sessions attached to a ticket when
// its handling episode ends.
type TriageFinalizer interface {
	FinalizeForTicket(ctx context.Context, ticket *domain.Ticket, closure TriageClosure) error
}

// TriageService finalizes bot sessions on ticket closure.
type TriageService struct {
	sessions repository.TriageSessionRepository
	logger   *zap.Logger
}

// NewTriageService constructs the service.
func NewTriageService(sessions repository.TriageSessionRepository, logger *zap.Logger) *TriageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriageService{sessions: sessions, logger: logger}
}

// FinalizeForTicket concludes every open session linked to the ticket by id
// or by (tenant, phone). Already-concluded sessions are never touched, so
// re-running finalization is a no-op for them.
func (s *TriageService) FinalizeForTicket(ctx context.Context, ticket *domain.Ticket, closure TriageClosure) error {
	found, err := s.sessions.ListFinalizable(ctx, ticket.TenantID, ticket.ID, ticket.ContactPhone)
	if err != nil {
		return err
	}

	outcome := domain.OutcomeTicketCreated
	if ticket.Status == domain.TicketStatusResolved {
		outcome = domain.OutcomeHandedToHuman
	}

	seen := make(map[string]struct{}, len(found))
	var touched []*domain.TriageSession
	for i := range found {
		session := found[i]
		if _, dup := seen[session.ID]; dup {
			continue
		}
		seen[session.ID] = struct{}{}
		if session.Concluded() {
			continue
		}

		session.Conclude(outcome)
		if session.TicketID == nil {
			ticketID := ticket.ID
			session.TicketID = &ticketID
		}
		session.PutContext(domain.CtxTicketStatusFinal, string(ticket.Status))
		session.PutContext(domain.CtxTicketClosedAt, closure.ClosedAt.Format(time.RFC3339))
		if closure.Reason != "" {
			session.PutContext(domain.CtxCloseReason, closure.Reason)
		}
		if closure.CSATRequested {
			session.PutContext(domain.CtxCSATPending, true)
			if closure.CSATRequestedAt != nil {
				session.PutContext(domain.CtxCSATRequestedAt, closure.CSATRequestedAt.Format(time.RFC3339))
			}
			session.PutContext(domain.CtxTicketNumber, ticket.Number)
		}
		touched = append(touched, &session)
	}

	if len(touched) == 0 {
		return nil
	}
	if err := s.sessions.SaveAll(ctx, touched); err != nil {
		return err
	}
	s.logger.Info("triage sessions finalized",
		zap.String("ticket_id", ticket.ID), zap.Int("count", len(touched)))
	return nil
}
