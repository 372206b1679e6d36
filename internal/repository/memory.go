package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// In-memory repository variants. Useful for tests and local development
// without a database; behavior mirrors the pgx implementations, including
// the optimistic-lock semantics of ticket updates.

// MemoryTicketRepository keeps tickets in a map guarded by a mutex.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	nextNum map[string]int64
	// SkipNumbering simulates a store that does not allocate ticket
	// numbers on insert, forcing the numbering fallback path.
	SkipNumbering bool
}

// NewMemoryTicketRepository instantiates an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[string]domain.Ticket),
		nextNum: make(map[string]int64),
	}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket.ID = uuid.NewString()
	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	ticket.Version = 1
	if !r.SkipNumbering {
		r.nextNum[ticket.TenantID]++
		ticket.Number = r.nextNum[ticket.TenantID]
	}
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *MemoryTicketRepository) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if current.Version != ticket.Version {
		return ErrVersionConflict
	}
	ticket.Version++
	ticket.UpdatedAt = time.Now().UTC()
	if ticket.Number > r.nextNum[ticket.TenantID] {
		r.nextNum[ticket.TenantID] = ticket.Number
	}
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (r *MemoryTicketRepository) FindNewest(_ context.Context, filter TicketFilter) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := r.filterLocked(filter)
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return &matches[0], nil
}

func (r *MemoryTicketRepository) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := r.filterLocked(filter)
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].LastMessageAt.After(matches[j].LastMessageAt)
	})
	total := len(matches)

	offset := filter.Offset
	if offset > total {
		offset = total
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matches[offset:end], total, nil
}

func (r *MemoryTicketRepository) Count(_ context.Context, filter TicketFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filterLocked(filter)), nil
}

func (r *MemoryTicketRepository) MaxNumber(_ context.Context, tenantID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var max int64
	for _, ticket := range r.tickets {
		if ticket.TenantID == tenantID && ticket.Number > max {
			max = ticket.Number
		}
	}
	return max, nil
}

func (r *MemoryTicketRepository) filterLocked(filter TicketFilter) []domain.Ticket {
	var matches []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.TenantID != "" && ticket.TenantID != filter.TenantID {
			continue
		}
		if filter.ChannelID != nil && ticket.ChannelID != *filter.ChannelID {
			continue
		}
		if filter.ContactPhone != nil && ticket.ContactPhone != *filter.ContactPhone {
			continue
		}
		if filter.AgentID != nil && (ticket.AgentID == nil || *ticket.AgentID != *filter.AgentID) {
			continue
		}
		if len(filter.Statuses) > 0 && !statusIn(ticket.Status, filter.Statuses) {
			continue
		}
		if len(filter.NotStatuses) > 0 && statusIn(ticket.Status, filter.NotStatuses) {
			continue
		}
		if filter.Priority != nil && ticket.Priority != *filter.Priority {
			continue
		}
		matches = append(matches, ticket)
	}
	return matches
}

func statusIn(status domain.TicketStatus, set []domain.TicketStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// MemoryTriageSessionRepository keeps sessions in a map.
type MemoryTriageSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.TriageSession
}

// NewMemoryTriageSessionRepository instantiates an empty store.
func NewMemoryTriageSessionRepository() *MemoryTriageSessionRepository {
	return &MemoryTriageSessionRepository{sessions: make(map[string]domain.TriageSession)}
}

// Seed inserts a session directly, assigning an id when absent.
func (r *MemoryTriageSessionRepository) Seed(session domain.TriageSession) domain.TriageSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now().UTC()
	}
	r.sessions[session.ID] = session
	return session
}

// Get returns a stored session by id for test assertions.
func (r *MemoryTriageSessionRepository) Get(id string) (domain.TriageSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

func (r *MemoryTriageSessionRepository) ListFinalizable(_ context.Context, tenantID, ticketID, contactPhone string) ([]domain.TriageSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.TriageSession
	for _, session := range r.sessions {
		byTicket := session.TicketID != nil && *session.TicketID == ticketID
		byPhone := contactPhone != "" && session.TenantID == tenantID &&
			session.ContactPhone == contactPhone &&
			(session.Status == domain.SessionStatusInProgress || session.Status == domain.SessionStatusTransferred)
		if byTicket || byPhone {
			result = append(result, session)
		}
	}
	return result, nil
}

func (r *MemoryTriageSessionRepository) ListRecentByContact(_ context.Context, tenantID, contactPhone string, statuses []domain.TriageSessionStatus, limit int) ([]domain.TriageSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.TriageSession
	for _, session := range r.sessions {
		if session.TenantID != tenantID || session.ContactPhone != contactPhone {
			continue
		}
		for _, status := range statuses {
			if session.Status == status {
				result = append(result, session)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryTriageSessionRepository) Save(_ context.Context, session *domain.TriageSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session.UpdatedAt = time.Now().UTC()
	r.sessions[session.ID] = *session
	return nil
}

func (r *MemoryTriageSessionRepository) SaveAll(ctx context.Context, sessions []*domain.TriageSession) error {
	for _, session := range sessions {
		if err := r.Save(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

// MemoryMessageRepository keeps messages in a slice.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages []domain.Message
}

// NewMemoryMessageRepository instantiates an empty store.
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{}
}

// Seed inserts a message directly.
func (r *MemoryMessageRepository) Seed(message domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	r.messages = append(r.messages, message)
}

func (r *MemoryMessageRepository) CountByTicket(_ context.Context, ticketID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, message := range r.messages {
		if message.TicketID == ticketID {
			count++
		}
	}
	return count, nil
}

func (r *MemoryMessageRepository) CountUnreadFromContact(_ context.Context, ticketID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, message := range r.messages {
		if message.TicketID == ticketID && message.Sender == domain.SenderContact && !message.Read {
			count++
		}
	}
	return count, nil
}

func (r *MemoryMessageRepository) Latest(_ context.Context, ticketID string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Message
	for i := range r.messages {
		message := r.messages[i]
		if message.TicketID != ticketID {
			continue
		}
		if latest == nil || message.CreatedAt.After(latest.CreatedAt) {
			latest = &message
		}
	}
	return latest, nil
}

// MemoryContactRepository keeps contacts in a slice, matching phones on
// their trailing 8 digits like the pgx implementation.
type MemoryContactRepository struct {
	mu       sync.RWMutex
	contacts []domain.Contact
}

// NewMemoryContactRepository instantiates an empty store.
func NewMemoryContactRepository() *MemoryContactRepository {
	return &MemoryContactRepository{}
}

// Seed inserts a contact directly.
func (r *MemoryContactRepository) Seed(contact domain.Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	r.contacts = append(r.contacts, contact)
}

func (r *MemoryContactRepository) FindByPhone(_ context.Context, tenantID, phone string) (*domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	digits := normalizeDigits(phone)
	if digits == "" {
		return nil, nil
	}
	if len(digits) > 8 {
		digits = digits[len(digits)-8:]
	}
	for i := range r.contacts {
		contact := r.contacts[i]
		if contact.TenantID != tenantID || !contact.Active {
			continue
		}
		if strings.HasSuffix(normalizeDigits(contact.Phone), digits) {
			return &contact, nil
		}
	}
	return nil, nil
}

// MemoryFollowUpRepository keeps follow-ups in a slice.
type MemoryFollowUpRepository struct {
	mu        sync.RWMutex
	followUps []domain.FollowUp
}

// NewMemoryFollowUpRepository instantiates an empty store.
func NewMemoryFollowUpRepository() *MemoryFollowUpRepository {
	return &MemoryFollowUpRepository{}
}

func (r *MemoryFollowUpRepository) Create(_ context.Context, followUp *domain.FollowUp) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	followUp.ID = uuid.NewString()
	followUp.CreatedAt = time.Now().UTC()
	r.followUps = append(r.followUps, *followUp)
	return nil
}

// All returns the stored follow-ups for test assertions.
func (r *MemoryFollowUpRepository) All() []domain.FollowUp {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.FollowUp(nil), r.followUps...)
}

// MemoryAgentDirectory serves a fixed candidate list.
type MemoryAgentDirectory struct {
	mu         sync.RWMutex
	agents     map[string]domain.Agent
	candidates []domain.AgentCandidate
}

// NewMemoryAgentDirectory instantiates an empty directory.
func NewMemoryAgentDirectory() *MemoryAgentDirectory {
	return &MemoryAgentDirectory{agents: make(map[string]domain.Agent)}
}

// SeedAgent registers an agent record.
func (d *MemoryAgentDirectory) SeedAgent(agent domain.Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[agent.ID] = agent
}

// SetCandidates fixes the list returned by Candidates.
func (d *MemoryAgentDirectory) SetCandidates(candidates []domain.AgentCandidate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.candidates = candidates
}

func (d *MemoryAgentDirectory) Candidates(_ context.Context, _ string, _, _ *string) ([]domain.AgentCandidate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.AgentCandidate(nil), d.candidates...), nil
}

func (d *MemoryAgentDirectory) GetByID(_ context.Context, agentID string) (*domain.Agent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	agent, ok := d.agents[agentID]
	if !ok {
		return nil, nil
	}
	return &agent, nil
}

func (d *MemoryAgentDirectory) RecordAssignment(_ context.Context, agentID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.candidates {
		if d.candidates[i].AgentID == agentID {
			d.candidates[i].LastAssignedAt = at
			d.candidates[i].ActiveTicketCount++
		}
	}
	return nil
}
