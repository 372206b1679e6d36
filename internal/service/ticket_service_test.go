package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/pkg/util"
)

type recordingMessenger struct {
	mu     sync.Mutex
	texts  []string
	phones []string
	fail   bool
}

func (m *recordingMessenger) SendText(_ context.Context, _ string, phone, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return context.DeadlineExceeded
	}
	m.texts = append(m.texts, body)
	m.phones = append(m.phones, phone)
	return nil
}

func (m *recordingMessenger) SendTyping(context.Context, string, string, time.Duration) error {
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) countOf(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	svc       *TicketService
	tickets   *repository.MemoryTicketRepository
	sessions  *repository.MemoryTriageSessionRepository
	followUps *repository.MemoryFollowUpRepository
	directory *repository.MemoryAgentDirectory
	messenger *recordingMessenger
	recorder  *eventRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tickets := repository.NewMemoryTicketRepository()
	sessions := repository.NewMemoryTriageSessionRepository()
	followUps := repository.NewMemoryFollowUpRepository()
	directory := repository.NewMemoryAgentDirectory()
	messenger := &recordingMessenger{}
	recorder := &eventRecorder{}

	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketPriorityChanged,
		events.EventTicketAssigned,
		events.EventTicketTransferred,
		events.EventTicketClosed,
		events.EventTicketReopened,
	} {
		dispatcher.Subscribe(eventType, recorder.record)
	}

	engine := config.EngineConfig{CSATWindowHours: 72, CSATSessionLookback: 10, AllowClosedTransfer: true}
	assigner := NewAssignmentService(tickets, directory, dispatcher, nil)
	finalizer := NewTriageService(sessions, nil)

	svc := NewTicketService(TicketDependencies{
		TicketRepo:   tickets,
		ContactRepo:  repository.NewMemoryContactRepository(),
		MessageRepo:  repository.NewMemoryMessageRepository(),
		FollowUpRepo: followUps,
		Directory:    directory,
		Assigner:     assigner,
		Finalizer:    finalizer,
		Messenger:    messenger,
		Dispatcher:   dispatcher,
		Engine:       engine,
	})

	return &fixture{
		svc:       svc,
		tickets:   tickets,
		sessions:  sessions,
		followUps: followUps,
		directory: directory,
		messenger: messenger,
		recorder:  recorder,
	}
}

func (f *fixture) openTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := f.svc.FindOrCreate(context.Background(), FindOrCreateInput{
		TenantID:     "tenant-1",
		ChannelID:    "channel-1",
		ContactPhone: "+5511998877665",
		ContactName:  "Maria",
		Subject:      "help",
	})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	return ticket
}

func (f *fixture) inProgressTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket := f.openTicket(t)
	updated, err := f.svc.UpdateStatus(context.Background(), ticket.ID, domain.TicketStatusInProgress)
	if err != nil {
		t.Fatalf("UpdateStatus to IN_PROGRESS: %v", err)
	}
	return updated
}

func TestFindOrCreateReusesActiveTicket(t *testing.T) {
	f := newFixture(t)
	first := f.openTicket(t)
	second := f.openTicket(t)

	if first.ID != second.ID {
		t.Fatalf("expected same ticket id while first is still open, got %q and %q", first.ID, second.ID)
	}
}

func TestFindOrCreateAfterCloseCreatesNewTicket(t *testing.T) {
	f := newFixture(t)
	first := f.inProgressTicket(t)
	if _, err := f.svc.Close(context.Background(), first.ID, CloseInput{Reason: "cancelado"}); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := f.openTicket(t)
	if second.ID == first.ID {
		t.Fatal("expected a fresh ticket after the prior one was closed")
	}
	if second.Status != domain.TicketStatusOpen {
		t.Fatalf("expected new ticket OPEN, got %s", second.Status)
	}
}

func TestFindOrCreateAssignsNumberViaFallback(t *testing.T) {
	f := newFixture(t)
	f.tickets.SkipNumbering = true

	ticket := f.openTicket(t)
	if ticket.Number != 1 {
		t.Fatalf("expected fallback number 1, got %d", ticket.Number)
	}
}

func TestUpdateStatusRejectsOpenToTerminal(t *testing.T) {
	f := newFixture(t)
	ticket := f.openTicket(t)

	for _, target := range []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed} {
		_, err := f.svc.UpdateStatus(context.Background(), ticket.ID, target)
		if !util.IsInvalidTransition(err) {
			t.Fatalf("expected InvalidTransition for OPEN -> %s, got %v", target, err)
		}
	}

	stored, _ := f.tickets.GetByID(context.Background(), ticket.ID)
	if stored.Status != domain.TicketStatusOpen || stored.ResolvedAt != nil || stored.ClosedAt != nil {
		t.Fatal("rejected transition must leave status and timestamps unchanged")
	}
}

func TestUpdateStatusSetsResolvedAtOnce(t *testing.T) {
	f := newFixture(t)
	ticket := f.inProgressTicket(t)

	resolved, err := f.svc.UpdateStatus(context.Background(), ticket.ID, domain.TicketStatusResolved)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if resolved.ResolvedAt == nil {
		t.Fatal("expected resolvedAt set")
	}
	firstStamp := *resolved.ResolvedAt

	before := f.recorder.countOf(events.EventTicketStatusChanged)
	again, err := f.svc.UpdateStatus(context.Background(), ticket.ID, domain.TicketStatusResolved)
	if err != nil {
		t.Fatalf("same-state UpdateStatus must be a no-op, got %v", err)
	}
	if again.ResolvedAt == nil || !again.ResolvedAt.Equal(firstStamp) {
		t.Fatal("same-state transition must not re-stamp resolvedAt")
	}
	if f.recorder.countOf(events.EventTicketStatusChanged) != before+1 {
		t.Fatal("same-state transition must still notify")
	}
}

func TestCloseAfterResolvePreservesResolvedAt(t *testing.T) {
	f := newFixture(t)
	ticket := f.inProgressTicket(t)

	resolved, err := f.svc.UpdateStatus(context.Background(), ticket.ID, domain.TicketStatusResolved)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	stamp := *resolved.ResolvedAt

	closed, err := f.svc.UpdateStatus(context.Background(), ticket.ID, domain.TicketStatusClosed)
	if err != nil {
		t.Fatalf("UpdateStatus to CLOSED: %v", err)
	}
	if closed.ClosedAt == nil {
		t.Fatal("expected closedAt set")
	}
	if closed.ResolvedAt == nil || !closed.ResolvedAt.Equal(stamp) {
		t.Fatal("closing must preserve resolvedAt")
	}
}

func TestReopenClearsEndDates(t *testing.T) {
	f := newFixture(t)
	ticket := f.inProgressTicket(t)
	if _, err := f.svc.Close(context.Background(), ticket.ID, CloseInput{Reason: "cancelado"}); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := f.svc.Reopen(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if reopened.Status != domain.TicketStatusOpen {
		t.Fatalf("expected OPEN after reopen, got %s", reopened.Status)
	}
	if reopened.ResolvedAt != nil || reopened.ClosedAt != nil {
		t.Fatal("reopen must clear both end dates")
	}

	_, err = f.svc.Reopen(context.Background(), reopened.ID)
	if !util.IsInvalidTransition(err) {
		t.Fatalf("reopen on an OPEN ticket must be rejected, got %v", err)
	}
}

func TestCloseReasonMapping(t *testing.T) {
	cases := []struct {
		reason string
		want   domain.TicketStatus
	}{
		{"cancelado", domain.TicketStatusClosed},
		{"cancelado_cliente", domain.TicketStatusClosed},
		{"sem_resposta", domain.TicketStatusClosed},
		{"duplicado", domain.TicketStatusClosed},
		{"spam", domain.TicketStatusClosed},
		{"outro", domain.TicketStatusClosed},
		{"resolvido", domain.TicketStatusResolved},
		{"", domain.TicketStatusResolved},
		{"anything else", domain.TicketStatusResolved},
	}

	for _, tc := range cases {
		f := newFixture(t)
		ticket := f.inProgressTicket(t)
		result, err := f.svc.Close(context.Background(), ticket.ID, CloseInput{Reason: tc.reason})
		if err != nil {
			t.Fatalf("Close(%q): %v", tc.reason, err)
		}
		if result.Ticket.Status != tc.want {
			t.Fatalf("Close(%q): expected %s, got %s", tc.reason, tc.want, result.Ticket.Status)
		}
		if result.Ticket.ResolvedAt == nil || result.Ticket.ClosedAt == nil {
			t.Fatalf("Close(%q): both end dates must be stamped", tc.reason)
		}
	}
}

func TestCloseOnOpenTicketRejected(t *testing.T) {
	f := newFixture(t)
	ticket := f.openTicket(t)

	_, err := f.svc.Close(context.Background(), ticket.ID, CloseInput{})
	if !util.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransition closing an unhandled ticket, got %v", err)
	}
}

func TestCloseCreatesFollowUpAndSendsCSAT(t *testing.T) {
	f := newFixture(t)
	f.directory.SeedAgent(domain.Agent{ID: "agent-1", TenantID: "tenant-1", Name: "Ana", Active: true})

	ticket := f.openTicket(t)
	if _, err := f.svc.Assign(context.Background(), ticket.ID, "agent-1", false); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	due := time.Now().Add(48 * time.Hour)
	result, err := f.svc.Close(context.Background(), ticket.ID, CloseInput{
		CreateFollowUp: true,
		FollowUpDate:   &due,
		RequestSurvey:  true,
	})
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if result.FollowUp == nil {
		t.Fatal("expected a follow-up reference")
	}
	if !result.CSATSent {
		t.Fatal("expected csat request to be sent")
	}
	if len(f.followUps.All()) != 1 {
		t.Fatalf("expected 1 stored follow-up, got %d", len(f.followUps.All()))
	}
}

func TestCloseDegradesWhenCSATSendFails(t *testing.T) {
	f := newFixture(t)
	ticket := f.inProgressTicket(t)
	f.messenger.fail = true

	result, err := f.svc.Close(context.Background(), ticket.ID, CloseInput{RequestSurvey: true})
	if err != nil {
		t.Fatalf("Close must not fail on notifier errors: %v", err)
	}
	if result.CSATSent {
		t.Fatal("expected csatSent=false when the send fails")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning for the degraded csat send")
	}
	if !result.Ticket.Status.IsTerminal() {
		t.Fatal("persisted transition must survive the failed side effect")
	}
}

func TestAssignFirstAssignmentSendsWelcome(t *testing.T) {
	f := newFixture(t)
	f.directory.SeedAgent(domain.Agent{ID: "agent-1", TenantID: "tenant-1", Name: "Ana", Active: true})

	ticket := f.openTicket(t)
	assigned, err := f.svc.Assign(context.Background(), ticket.ID, "agent-1", false)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if assigned.Status != domain.TicketStatusInProgress {
		t.Fatalf("assignment must force IN_PROGRESS, got %s", assigned.Status)
	}
	if assigned.AgentID == nil || *assigned.AgentID != "agent-1" {
		t.Fatal("expected agent-1 assigned")
	}
	if len(f.messenger.texts) != 1 {
		t.Fatalf("expected exactly one welcome message, got %d", len(f.messenger.texts))
	}
}

func TestAssignUnknownAgentRejected(t *testing.T) {
	f := newFixture(t)
	ticket := f.openTicket(t)

	_, err := f.svc.Assign(context.Background(), ticket.ID, "ghost", false)
	if !util.IsNotFound(err) {
		t.Fatalf("expected NotFound for unknown agent, got %v", err)
	}
}

func TestTransferRecordsPreviousAgent(t *testing.T) {
	f := newFixture(t)
	f.directory.SeedAgent(domain.Agent{ID: "agent-1", TenantID: "tenant-1", Name: "Ana", Active: true})
	f.directory.SeedAgent(domain.Agent{ID: "agent-2", TenantID: "tenant-1", Name: "Bia", Active: true})

	ticket := f.openTicket(t)
	if _, err := f.svc.Assign(context.Background(), ticket.ID, "agent-1", false); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	transferred, err := f.svc.Transfer(context.Background(), ticket.ID, TransferInput{AgentID: "agent-2", Reason: "workload"})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if transferred.AgentID == nil || *transferred.AgentID != "agent-2" {
		t.Fatal("expected agent-2 after transfer")
	}
	if f.recorder.countOf(events.EventTicketTransferred) != 1 {
		t.Fatal("expected one transferred event")
	}
}

func TestTransferFromClosedConfigurable(t *testing.T) {
	f := newFixture(t)
	f.directory.SeedAgent(domain.Agent{ID: "agent-1", TenantID: "tenant-1", Name: "Ana", Active: true})

	ticket := f.inProgressTicket(t)
	if _, err := f.svc.Close(context.Background(), ticket.ID, CloseInput{Reason: "cancelado"}); err != nil {
		t.Fatalf("Close: %v", err)
	}

	transferred, err := f.svc.Transfer(context.Background(), ticket.ID, TransferInput{AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("transfer from CLOSED allowed by default, got %v", err)
	}
	if transferred.Status != domain.TicketStatusInProgress {
		t.Fatalf("expected IN_PROGRESS after transfer, got %s", transferred.Status)
	}
	if transferred.ResolvedAt != nil || transferred.ClosedAt != nil {
		t.Fatal("leaving a terminal status must clear end dates")
	}

	f.svc.engine.AllowClosedTransfer = false
	second := f.inProgressTicket(t)
	if _, err := f.svc.Close(context.Background(), second.ID, CloseInput{Reason: "cancelado"}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err = f.svc.Transfer(context.Background(), second.ID, TransferInput{AgentID: "agent-1"})
	if !util.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransition when closed transfers disabled, got %v", err)
	}
}

func TestAssignFromClosedConfigurable(t *testing.T) {
	f := newFixture(t)
	f.directory.SeedAgent(domain.Agent{ID: "agent-1", TenantID: "tenant-1", Name: "Ana", Active: true})

	ticket := f.inProgressTicket(t)
	if _, err := f.svc.Close(context.Background(), ticket.ID, CloseInput{Reason: "cancelado"}); err != nil {
		t.Fatalf("Close: %v", err)
	}

	assigned, err := f.svc.Assign(context.Background(), ticket.ID, "agent-1", false)
	if err != nil {
		t.Fatalf("assign from CLOSED allowed by default, got %v", err)
	}
	if assigned.Status != domain.TicketStatusInProgress {
		t.Fatalf("expected IN_PROGRESS after assign, got %s", assigned.Status)
	}
	if assigned.ResolvedAt != nil || assigned.ClosedAt != nil {
		t.Fatal("leaving a terminal status must clear end dates")
	}

	f.svc.engine.AllowClosedTransfer = false
	second := f.inProgressTicket(t)
	if _, err := f.svc.Close(context.Background(), second.ID, CloseInput{Reason: "cancelado"}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err = f.svc.Assign(context.Background(), second.ID, "agent-1", false)
	if !util.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransition when closed assignments disabled, got %v", err)
	}
}

func TestUpdatePriorityPersists(t *testing.T) {
	f := newFixture(t)
	ticket := f.openTicket(t)

	updated, err := f.svc.UpdatePriority(context.Background(), ticket.ID, domain.TicketPriorityHigh)
	if err != nil {
		t.Fatalf("UpdatePriority: %v", err)
	}
	if updated.Priority != domain.TicketPriorityHigh {
		t.Fatalf("expected HIGH, got %s", updated.Priority)
	}
	if f.recorder.countOf(events.EventTicketPriorityChanged) != 1 {
		t.Fatal("expected a priority-changed event")
	}
}

func TestCreateForTriageAutoAssigns(t *testing.T) {
	f := newFixture(t)
	f.directory.SeedAgent(domain.Agent{ID: "agent-1", TenantID: "tenant-1", Name: "Ana", Active: true})
	f.directory.SetCandidates([]domain.AgentCandidate{
		{AgentID: "agent-1", Name: "Ana", ActiveTicketCount: 0, DepartmentMatch: true},
	})

	dept := "dept-1"
	ticket, err := f.svc.CreateForTriage(context.Background(), TriageCreateInput{
		TenantID:     "tenant-1",
		ChannelID:    "channel-1",
		ContactPhone: "+5511998877665",
		ContactName:  "Maria",
		DepartmentID: &dept,
		Priority:     domain.TicketPriorityHigh,
		Subject:      "billing issue",
	})
	if err != nil {
		t.Fatalf("CreateForTriage: %v", err)
	}
	if ticket.AgentID == nil || *ticket.AgentID != "agent-1" {
		t.Fatal("expected auto-assignment to agent-1")
	}
	if ticket.Status != domain.TicketStatusInProgress {
		t.Fatalf("expected IN_PROGRESS after auto-assignment, got %s", ticket.Status)
	}
}

func TestCreateForTriageToleratesNoCandidates(t *testing.T) {
	f := newFixture(t)
	dept := "dept-1"

	ticket, err := f.svc.CreateForTriage(context.Background(), TriageCreateInput{
		TenantID:     "tenant-1",
		ChannelID:    "channel-1",
		ContactPhone: "+5511998877665",
		DepartmentID: &dept,
		Subject:      "no agents around",
	})
	if err != nil {
		t.Fatalf("CreateForTriage must not fail when no agent is available: %v", err)
	}
	if ticket.AgentID != nil {
		t.Fatal("expected ticket left unassigned")
	}
	if ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("expected OPEN, got %s", ticket.Status)
	}
}

func TestRegisterFirstResponseStampsOnce(t *testing.T) {
	f := newFixture(t)
	ticket := f.openTicket(t)

	first, err := f.svc.RegisterFirstResponse(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("RegisterFirstResponse: %v", err)
	}
	if first.FirstResponseAt == nil {
		t.Fatal("expected firstResponseAt set")
	}
	stamp := *first.FirstResponseAt

	again, err := f.svc.RegisterFirstResponse(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("second RegisterFirstResponse: %v", err)
	}
	if again.FirstResponseAt == nil || !again.FirstResponseAt.Equal(stamp) {
		t.Fatal("later calls must not move firstResponseAt")
	}
}

func TestTouchLastMessageRefreshesRecency(t *testing.T) {
	f := newFixture(t)
	ticket := f.openTicket(t)
	before := ticket.LastMessageAt

	time.Sleep(2 * time.Millisecond)
	if err := f.svc.TouchLastMessage(context.Background(), ticket.ID); err != nil {
		t.Fatalf("TouchLastMessage: %v", err)
	}

	stored, _ := f.tickets.GetByID(context.Background(), ticket.ID)
	if !stored.LastMessageAt.After(before) {
		t.Fatal("expected lastMessageAt moved forward")
	}
}

func TestCountActiveForAgent(t *testing.T) {
	f := newFixture(t)
	f.directory.SeedAgent(domain.Agent{ID: "agent-1", TenantID: "tenant-1", Name: "Ana", Active: true})

	ticket := f.openTicket(t)
	if _, err := f.svc.Assign(context.Background(), ticket.ID, "agent-1", false); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	count, err := f.svc.CountActiveForAgent(context.Background(), "tenant-1", "agent-1")
	if err != nil {
		t.Fatalf("CountActiveForAgent: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 active ticket, got %d", count)
	}

	if _, err := f.svc.Close(context.Background(), ticket.ID, CloseInput{Reason: "cancelado"}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	count, err = f.svc.CountActiveForAgent(context.Background(), "tenant-1", "agent-1")
	if err != nil {
		t.Fatalf("CountActiveForAgent after close: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 active tickets after close, got %d", count)
	}
}

func TestHandlingSeconds(t *testing.T) {
	opened := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	closedAt := opened.Add(90 * time.Minute)
	resolvedAt := opened.Add(60 * time.Minute)

	closed := &domain.Ticket{Status: domain.TicketStatusClosed, OpenedAt: opened, ClosedAt: &closedAt, ResolvedAt: &resolvedAt}
	if got := handlingSeconds(closed, opened.Add(5*time.Hour)); got != 5400 {
		t.Fatalf("closed ticket: expected 5400s, got %d", got)
	}

	resolved := &domain.Ticket{Status: domain.TicketStatusResolved, OpenedAt: opened, ResolvedAt: &resolvedAt}
	if got := handlingSeconds(resolved, opened.Add(5*time.Hour)); got != 3600 {
		t.Fatalf("resolved ticket: expected 3600s, got %d", got)
	}

	open := &domain.Ticket{Status: domain.TicketStatusInProgress, OpenedAt: opened}
	if got := handlingSeconds(open, opened.Add(30*time.Second)); got != 30 {
		t.Fatalf("open ticket: expected 30s, got %d", got)
	}
}
