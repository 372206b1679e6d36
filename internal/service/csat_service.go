package service

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

// scorePattern matches the first standalone 1-10 token in a reply.
var scorePattern = regexp.MustCompile(`\b(10|[1-9])\b`)

// CSATResult reports whether an inbound reply registered a score.
type CSATResult struct {
	Registered bool
	Score      int
	TicketID   *string
}

// CSATService matches free-text replies against pending satisfaction
// requests on the contact's recent triage sessions.
type CSATService struct {
	sessions   repository.TriageSessionRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	engine     config.EngineConfig
}

// NewCSATService constructs the service.
func NewCSATService(sessions repository.TriageSessionRepository, dispatcher events.Dispatcher, logger *zap.Logger, engine config.EngineConfig) *CSATService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSATService{
		sessions:   sessions,
		dispatcher: dispatcher,
		logger:     logger,
		engine:     engine,
	}
}

// RegisterReply parses a score out of freeText and records it against the
// first eligible session: pending-CSAT flag set and closure recorded within
// the recency window. A session with no parseable closure timestamp stays
// eligible. No eligible session means no mutation.
func (s *CSATService) RegisterReply(ctx context.Context, tenantID, contactPhone, freeText string) (CSATResult, error) {
	score, ok := extractScore(freeText)
	if !ok {
		return CSATResult{}, nil
	}

	sessions, err := s.sessions.ListRecentByContact(ctx, tenantID, contactPhone,
		[]domain.TriageSessionStatus{domain.SessionStatusConcluded, domain.SessionStatusTransferred},
		s.engine.SessionLookback())
	if err != nil {
		return CSATResult{}, err
	}

	now := time.Now().UTC()
	for i := range sessions {
		session := sessions[i]
		if !session.ContextBool(domain.CtxCSATPending) {
			continue
		}
		if !s.withinWindow(&session, now) {
			continue
		}

		comment := freeText
		session.SatisfactionScore = &score
		session.SatisfactionComment = &comment
		session.PutContext(domain.CtxCSATPending, false)
		session.PutContext(domain.CtxCSATRespondedAt, now.Format(time.RFC3339))
		session.PutContext(domain.CtxCSATScore, score)
		if err := s.sessions.Save(ctx, &session); err != nil {
			return CSATResult{}, err
		}

		s.publishRegistered(ctx, tenantID, &session, score)
		return CSATResult{Registered: true, Score: score, TicketID: session.TicketID}, nil
	}
	return CSATResult{}, nil
}

func (s *CSATService) withinWindow(session *domain.TriageSession, now time.Time) bool {
	raw, ok := session.ContextString(domain.CtxTicketClosedAt)
	if !ok {
		return true
	}
	closedAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return true
	}
	return now.Sub(closedAt) <= s.engine.CSATWindow()
}

func (s *CSATService) publishRegistered(ctx context.Context, tenantID string, session *domain.TriageSession, score int) {
	if s.dispatcher == nil {
		return
	}
	ticketID := ""
	if session.TicketID != nil {
		ticketID = *session.TicketID
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventCSATRegistered,
		TenantID:  tenantID,
		TicketID:  ticketID,
		Actor:     events.Actor{Type: events.ActorContact},
		Timestamp: time.Now().UTC(),
		Payload: events.CSATRegisteredPayload{
			SessionID: session.ID,
			Score:     score,
		},
	})
}

func extractScore(text string) (int, bool) {
	match := scorePattern.FindString(text)
	if match == "" {
		return 0, false
	}
	score, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return score, true
}
