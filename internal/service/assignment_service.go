package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/routing"
	"github.com/spec-kit/ticket-engine/pkg/util"
)

// Assigner picks and commits an agent for an unrouted ticket. A nil
// candidate with a nil error means no agent was available.
type Assigner interface {
	AutoAssign(ctx context.Context, ticketID string, departmentID, unitID *string) (*domain.AgentCandidate, error)
}

// AssignmentService performs load-balanced routing. Selection and the
// agent/status write commit in one update; a losing writer under
// optimistic concurrency re-selects and retries once.
type AssignmentService struct {
	tickets    repository.TicketRepository
	directory  repository.AgentDirectory
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAssignmentService constructs the service.
func NewAssignmentService(tickets repository.TicketRepository, directory repository.AgentDirectory, dispatcher events.Dispatcher, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		tickets:    tickets,
		directory:  directory,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// AutoAssign routes the ticket to the best available agent for the given
// department/unit criteria.
func (s *AssignmentService) AutoAssign(ctx context.Context, ticketID string, departmentID, unitID *string) (*domain.AgentCandidate, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ticket, err := s.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return nil, util.MapError(err)
		}

		candidates, err := s.directory.Candidates(ctx, ticket.TenantID, departmentID, unitID)
		if err != nil {
			return nil, err
		}
		winner, ok := routing.Select(candidates)
		if !ok {
			s.logger.Info("no agent available for assignment",
				zap.String("ticket_id", ticketID), zap.String("tenant_id", ticket.TenantID))
			return nil, nil
		}

		previous := ticket.AgentID
		ticket.AgentID = &winner.AgentID
		ticket.Status = domain.TicketStatusInProgress
		if err := s.tickets.Update(ctx, ticket); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, util.MapError(err)
		}

		if err := s.directory.RecordAssignment(ctx, winner.AgentID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to record assignment recency", zap.Error(err))
		}

		s.publishAssigned(ctx, ticket, winner.AgentID, previous)
		return &winner, nil
	}
	return nil, lastErr
}

func (s *AssignmentService) publishAssigned(ctx context.Context, ticket *domain.Ticket, agentID string, previous *string) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAssigned,
		TenantID:  ticket.TenantID,
		TicketID:  ticket.ID,
		Actor:     events.Actor{Type: events.ActorSystem},
		Timestamp: time.Now().UTC(),
		Payload: events.TicketAssignedPayload{
			AgentID:       agentID,
			PreviousAgent: previous,
			AutoAssigned:  true,
		},
	})
}
