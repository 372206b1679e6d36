package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

func TestFinalizeConcludesLinkedAndPhoneSessions(t *testing.T) {
	sessions := repository.NewMemoryTriageSessionRepository()
	svc := NewTriageService(sessions, nil)

	ticketID := "ticket-1"
	linked := sessions.Seed(domain.TriageSession{
		TenantID:     "tenant-1",
		ContactPhone: "+5511998877665",
		TicketID:     &ticketID,
		Status:       domain.SessionStatusTransferred,
	})
	byPhone := sessions.Seed(domain.TriageSession{
		TenantID:     "tenant-1",
		ContactPhone: "+5511998877665",
		Status:       domain.SessionStatusInProgress,
	})

	ticket := &domain.Ticket{
		ID:           ticketID,
		Number:       42,
		TenantID:     "tenant-1",
		ContactPhone: "+5511998877665",
		Status:       domain.TicketStatusResolved,
	}
	now := time.Now().UTC()
	closure := TriageClosure{Reason: "resolvido", ClosedAt: now, CSATRequested: true, CSATRequestedAt: &now}
	if err := svc.FinalizeForTicket(context.Background(), ticket, closure); err != nil {
		t.Fatalf("FinalizeForTicket: %v", err)
	}

	for _, id := range []string{linked.ID, byPhone.ID} {
		stored, ok := sessions.Get(id)
		if !ok {
			t.Fatalf("session %s missing", id)
		}
		if !stored.Concluded() {
			t.Fatalf("session %s not concluded", id)
		}
		if stored.Outcome == nil || *stored.Outcome != domain.OutcomeHandedToHuman {
			t.Fatalf("resolved ticket must record handed_to_human, got %v", stored.Outcome)
		}
		if !stored.ContextBool(domain.CtxCSATPending) {
			t.Fatalf("session %s missing pending csat flag", id)
		}
		if _, ok := stored.ContextString(domain.CtxTicketClosedAt); !ok {
			t.Fatalf("session %s missing closure timestamp", id)
		}
		if stored.TicketID == nil || *stored.TicketID != ticketID {
			t.Fatalf("session %s must be linked to the ticket", id)
		}
	}
}

func TestFinalizeSkipsConcludedSessions(t *testing.T) {
	sessions := repository.NewMemoryTriageSessionRepository()
	svc := NewTriageService(sessions, nil)

	outcome := domain.OutcomeTicketCreated
	ticketID := "ticket-1"
	concluded := sessions.Seed(domain.TriageSession{
		TenantID:     "tenant-1",
		ContactPhone: "+5511998877665",
		TicketID:     &ticketID,
		Status:       domain.SessionStatusConcluded,
		Outcome:      &outcome,
	})

	ticket := &domain.Ticket{
		ID:           ticketID,
		TenantID:     "tenant-1",
		ContactPhone: "+5511998877665",
		Status:       domain.TicketStatusClosed,
	}
	closure := TriageClosure{ClosedAt: time.Now().UTC()}
	if err := svc.FinalizeForTicket(context.Background(), ticket, closure); err != nil {
		t.Fatalf("FinalizeForTicket: %v", err)
	}

	stored, _ := sessions.Get(concluded.ID)
	if stored.Outcome == nil || *stored.Outcome != domain.OutcomeTicketCreated {
		t.Fatal("re-running finalize must not rewrite a concluded session")
	}
	if stored.ContextBool(domain.CtxCSATPending) {
		t.Fatal("concluded session must not gain new context entries")
	}
}

func TestFinalizeOutcomeForClosedTicket(t *testing.T) {
	sessions := repository.NewMemoryTriageSessionRepository()
	svc := NewTriageService(sessions, nil)

	ticketID := "ticket-1"
	open := sessions.Seed(domain.TriageSession{
		TenantID:     "tenant-1",
		ContactPhone: "+5511998877665",
		TicketID:     &ticketID,
		Status:       domain.SessionStatusInProgress,
	})

	ticket := &domain.Ticket{
		ID:           ticketID,
		TenantID:     "tenant-1",
		ContactPhone: "+5511998877665",
		Status:       domain.TicketStatusClosed,
	}
	if err := svc.FinalizeForTicket(context.Background(), ticket, TriageClosure{ClosedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("FinalizeForTicket: %v", err)
	}

	stored, _ := sessions.Get(open.ID)
	if stored.Outcome == nil || *stored.Outcome != domain.OutcomeTicketCreated {
		t.Fatalf("closed ticket must record ticket_created, got %v", stored.Outcome)
	}
	if stored.ContextBool(domain.CtxCSATPending) {
		t.Fatal("csat flag must only be written when a request went out")
	}
}
