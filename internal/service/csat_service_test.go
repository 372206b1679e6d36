package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

func newCSATFixture() (*CSATService, *repository.MemoryTriageSessionRepository) {
	sessions := repository.NewMemoryTriageSessionRepository()
	engine := config.EngineConfig{CSATWindowHours: 72, CSATSessionLookback: 10}
	return NewCSATService(sessions, nil, nil, engine), sessions
}

func seedPendingSession(sessions *repository.MemoryTriageSessionRepository, closedAgo time.Duration) domain.TriageSession {
	ticketID := "ticket-1"
	session := domain.TriageSession{
		TenantID:     "tenant-1",
		ContactPhone: "+5511998877665",
		TicketID:     &ticketID,
		Status:       domain.SessionStatusConcluded,
		Context: map[string]any{
			domain.CtxCSATPending:    true,
			domain.CtxTicketClosedAt: time.Now().UTC().Add(-closedAgo).Format(time.RFC3339),
		},
	}
	return sessions.Seed(session)
}

func TestRegisterReplyParsesScore(t *testing.T) {
	svc, sessions := newCSATFixture()
	seeded := seedPendingSession(sessions, time.Hour)

	result, err := svc.RegisterReply(context.Background(), "tenant-1", "+5511998877665", "Nota: 9, excelente!")
	if err != nil {
		t.Fatalf("RegisterReply: %v", err)
	}
	if !result.Registered || result.Score != 9 {
		t.Fatalf("expected score 9 registered, got %+v", result)
	}
	if result.TicketID == nil || *result.TicketID != "ticket-1" {
		t.Fatal("expected the linked ticket id in the result")
	}

	stored, _ := sessions.Get(seeded.ID)
	if stored.SatisfactionScore == nil || *stored.SatisfactionScore != 9 {
		t.Fatal("expected score persisted on the session")
	}
	if stored.ContextBool(domain.CtxCSATPending) {
		t.Fatal("pending flag must be cleared after registration")
	}
	if _, ok := stored.ContextString(domain.CtxCSATRespondedAt); !ok {
		t.Fatal("expected a response timestamp")
	}
}

func TestRegisterReplyFirstTokenWins(t *testing.T) {
	svc, sessions := newCSATFixture()
	seedPendingSession(sessions, time.Hour)

	result, err := svc.RegisterReply(context.Background(), "tenant-1", "+5511998877665", "10 out of 10, maybe 8")
	if err != nil {
		t.Fatalf("RegisterReply: %v", err)
	}
	if result.Score != 10 {
		t.Fatalf("first standalone token must win, got %d", result.Score)
	}
}

func TestRegisterReplyNoTokenNotRegistered(t *testing.T) {
	svc, sessions := newCSATFixture()
	seeded := seedPendingSession(sessions, time.Hour)

	result, err := svc.RegisterReply(context.Background(), "tenant-1", "+5511998877665", "great service, thanks!")
	if err != nil {
		t.Fatalf("RegisterReply: %v", err)
	}
	if result.Registered {
		t.Fatal("reply without a 1-10 token must not register")
	}

	stored, _ := sessions.Get(seeded.ID)
	if stored.SatisfactionScore != nil {
		t.Fatal("no mutation expected without a token")
	}
}

func TestRegisterReplyOutsideWindowSkipped(t *testing.T) {
	svc, sessions := newCSATFixture()
	seeded := seedPendingSession(sessions, 100*time.Hour)

	result, err := svc.RegisterReply(context.Background(), "tenant-1", "+5511998877665", "9")
	if err != nil {
		t.Fatalf("RegisterReply: %v", err)
	}
	if result.Registered {
		t.Fatal("closure older than the window must not be eligible")
	}

	stored, _ := sessions.Get(seeded.ID)
	if !stored.ContextBool(domain.CtxCSATPending) {
		t.Fatal("skipped session must keep its pending flag")
	}
}

func TestRegisterReplyMissingTimestampEligible(t *testing.T) {
	svc, sessions := newCSATFixture()
	ticketID := "ticket-2"
	seeded := sessions.Seed(domain.TriageSession{
		TenantID:     "tenant-1",
		ContactPhone: "+5511998877665",
		TicketID:     &ticketID,
		Status:       domain.SessionStatusConcluded,
		Context:      map[string]any{domain.CtxCSATPending: true},
	})

	result, err := svc.RegisterReply(context.Background(), "tenant-1", "+5511998877665", "7")
	if err != nil {
		t.Fatalf("RegisterReply: %v", err)
	}
	if !result.Registered || result.Score != 7 {
		t.Fatalf("session without a closure timestamp must stay eligible, got %+v", result)
	}

	stored, _ := sessions.Get(seeded.ID)
	if stored.SatisfactionScore == nil || *stored.SatisfactionScore != 7 {
		t.Fatal("expected score persisted")
	}
}

func TestRegisterReplyNoPendingSession(t *testing.T) {
	svc, sessions := newCSATFixture()
	ticketID := "ticket-3"
	sessions.Seed(domain.TriageSession{
		TenantID:     "tenant-1",
		ContactPhone: "+5511998877665",
		TicketID:     &ticketID,
		Status:       domain.SessionStatusConcluded,
	})

	result, err := svc.RegisterReply(context.Background(), "tenant-1", "+5511998877665", "8")
	if err != nil {
		t.Fatalf("RegisterReply: %v", err)
	}
	if result.Registered {
		t.Fatal("no pending flag means no registration")
	}
}

func TestExtractScoreBounds(t *testing.T) {
	cases := []struct {
		text  string
		score int
		ok    bool
	}{
		{"10", 10, true},
		{"1", 1, true},
		{"0", 0, false},
		{"11", 0, false},
		{"nota 5 pelo atendimento", 5, true},
		{"x123y", 0, false},
	}
	for _, tc := range cases {
		score, ok := extractScore(tc.text)
		if ok != tc.ok || score != tc.score {
			t.Fatalf("extractScore(%q) = (%d,%v), want (%d,%v)", tc.text, score, ok, tc.score, tc.ok)
		}
	}
}
