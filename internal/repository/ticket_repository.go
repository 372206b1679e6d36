package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// ErrVersionConflict signals an optimistic-lock failure on update. Callers
// that raced another writer may re-read and retry.
var ErrVersionConflict = errors.New("ticket version conflict")

// TicketFilter captures ticket search parameters.
type TicketFilter struct {
	TenantID     string
	ChannelID    *string
	ContactPhone *string
	AgentID      *string
	Statuses     []domain.TicketStatus
	NotStatuses  []domain.TicketStatus
	Priority     *domain.TicketPriority
	Limit        int
	Offset       int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update persists all mutable fields, guarded by the Version column.
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// FindNewest returns the most recently created match, or nil when none.
	FindNewest(ctx context.Context, filter TicketFilter) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
	Count(ctx context.Context, filter TicketFilter) (int, error)
	// MaxNumber returns the highest assigned ticket number for a tenant,
	// used only by the numbering fallback.
	MaxNumber(ctx context.Context, tenantID string) (int64, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, number, tenant_id, channel_id, contact_phone, contact_name, contact_photo,
        agent_id, subject, description, status, priority, origin,
        opened_at, first_response_at, resolved_at, closed_at, last_message_at,
        created_at, updated_at, version`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (tenant_id, channel_id, contact_phone, contact_name, contact_photo,
            agent_id, subject, description, status, priority, origin,
            opened_at, last_message_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, number, created_at, updated_at, version`
	var number *int64
	if err := r.pool.QueryRow(ctx, query,
		ticket.TenantID,
		ticket.ChannelID,
		ticket.ContactPhone,
		ticket.ContactName,
		ticket.ContactPhoto,
		ticket.AgentID,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Origin,
		ticket.OpenedAt,
		ticket.LastMessageAt,
	).Scan(&ticket.ID, &number, &ticket.CreatedAt, &ticket.UpdatedAt, &ticket.Version); err != nil {
		return err
	}
	if number != nil {
		ticket.Number = *number
	}
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET number=$1, contact_name=$2, contact_photo=$3, agent_id=$4,
            subject=$5, description=$6, status=$7, priority=$8,
            first_response_at=$9, resolved_at=$10, closed_at=$11, last_message_at=$12,
            updated_at=NOW(), version=version+1
        WHERE id=$13 AND version=$14`
	cmd, err := r.pool.Exec(ctx, query,
		nullableNumber(ticket.Number),
		ticket.ContactName,
		ticket.ContactPhoto,
		ticket.AgentID,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.LastMessageAt,
		ticket.ID,
		ticket.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrVersionConflict
		}
		return pgx.ErrNoRows
	}
	ticket.Version++
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) FindNewest(ctx context.Context, filter TicketFilter) (*domain.Ticket, error) {
	clauses, args := buildTicketClauses(filter)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT 1`,
		ticketColumns, strings.Join(clauses, " AND "))
	ticket, err := r.fetchSingle(ctx, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ticket, err
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	total, err := r.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	clauses, args := buildTicketClauses(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY last_message_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	clauses, args := buildTicketClauses(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tickets WHERE %s`, strings.Join(clauses, " AND "))
	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) MaxNumber(ctx context.Context, tenantID string) (int64, error) {
	var max *int64
	if err := r.pool.QueryRow(ctx,
		`SELECT MAX(number) FROM tickets WHERE tenant_id=$1 AND number IS NOT NULL`,
		tenantID,
	).Scan(&max); err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	ticket, err := scanTicketRow(row)
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func buildTicketClauses(filter TicketFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		clauses = append(clauses, fmt.Sprintf("tenant_id=$%d", len(args)))
	}
	if filter.ChannelID != nil {
		args = append(args, *filter.ChannelID)
		clauses = append(clauses, fmt.Sprintf("channel_id=$%d", len(args)))
	}
	if filter.ContactPhone != nil {
		args = append(args, *filter.ContactPhone)
		clauses = append(clauses, fmt.Sprintf("contact_phone=$%d", len(args)))
	}
	if filter.AgentID != nil {
		args = append(args, *filter.AgentID)
		clauses = append(clauses, fmt.Sprintf("agent_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.NotStatuses) > 0 {
		placeholders := make([]string, len(filter.NotStatuses))
		for i, status := range filter.NotStatuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status NOT IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	return clauses, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicketRow(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var number *int64
	if err := row.Scan(
		&ticket.ID,
		&number,
		&ticket.TenantID,
		&ticket.ChannelID,
		&ticket.ContactPhone,
		&ticket.ContactName,
		&ticket.ContactPhoto,
		&ticket.AgentID,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Origin,
		&ticket.OpenedAt,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.LastMessageAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	if number != nil {
		ticket.Number = *number
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicketRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func nullableNumber(n int64) *int64 {
	if n <= 0 {
		return nil
	}
	return &n
}
