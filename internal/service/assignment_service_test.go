package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

// conflictingTicketRepository fails the first N updates with a version
// conflict, simulating a concurrent writer racing the assignment commit.
type conflictingTicketRepository struct {
	*repository.MemoryTicketRepository
	conflicts int
}

func (r *conflictingTicketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	if r.conflicts > 0 {
		r.conflicts--
		return repository.ErrVersionConflict
	}
	return r.MemoryTicketRepository.Update(ctx, ticket)
}

func newAssignmentFixture(t *testing.T, conflicts int) (*AssignmentService, *conflictingTicketRepository, string) {
	t.Helper()

	tickets := &conflictingTicketRepository{
		MemoryTicketRepository: repository.NewMemoryTicketRepository(),
		conflicts:              conflicts,
	}
	directory := repository.NewMemoryAgentDirectory()
	directory.SetCandidates([]domain.AgentCandidate{
		{AgentID: "agent-1", Name: "Ana", DepartmentMatch: true},
	})

	ticket := &domain.Ticket{
		TenantID:      "tenant-1",
		ChannelID:     "channel-1",
		ContactPhone:  "+5511998877665",
		Subject:       "routing",
		Status:        domain.TicketStatusOpen,
		Priority:      domain.TicketPriorityMedium,
		Origin:        domain.TicketOriginTriage,
		OpenedAt:      time.Now().UTC(),
		LastMessageAt: time.Now().UTC(),
	}
	if err := tickets.Create(context.Background(), ticket); err != nil {
		t.Fatalf("Create: %v", err)
	}

	return NewAssignmentService(tickets, directory, nil, nil), tickets, ticket.ID
}

func TestAutoAssignRetriesOnVersionConflict(t *testing.T) {
	svc, tickets, ticketID := newAssignmentFixture(t, 1)

	dept := "dept-1"
	winner, err := svc.AutoAssign(context.Background(), ticketID, &dept, nil)
	if err != nil {
		t.Fatalf("one conflict must be absorbed by the retry, got %v", err)
	}
	if winner == nil || winner.AgentID != "agent-1" {
		t.Fatalf("expected agent-1 after retry, got %+v", winner)
	}

	stored, err := tickets.GetByID(context.Background(), ticketID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.AgentID == nil || *stored.AgentID != "agent-1" {
		t.Fatal("expected the retried commit to persist the assignment")
	}
	if stored.Status != domain.TicketStatusInProgress {
		t.Fatalf("expected IN_PROGRESS after assignment, got %s", stored.Status)
	}
}

func TestAutoAssignSurfacesRepeatedConflict(t *testing.T) {
	svc, tickets, ticketID := newAssignmentFixture(t, 2)

	dept := "dept-1"
	winner, err := svc.AutoAssign(context.Background(), ticketID, &dept, nil)
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected the conflict to surface after the retry, got %v", err)
	}
	if winner != nil {
		t.Fatalf("no winner expected on failure, got %+v", winner)
	}

	stored, err := tickets.GetByID(context.Background(), ticketID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.AgentID != nil {
		t.Fatal("failed assignment must leave the ticket unassigned")
	}
}
