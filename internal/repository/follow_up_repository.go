package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// FollowUpRepository stores close-time follow-up reminders for agents.
type FollowUpRepository interface {
	Create(ctx context.Context, followUp *domain.FollowUp) error
}

type followUpRepository struct {
	pool *pgxpool.Pool
}

// NewFollowUpRepository instantiates repository.
func NewFollowUpRepository(pool *pgxpool.Pool) FollowUpRepository {
	return &followUpRepository{pool: pool}
}

func (r *followUpRepository) Create(ctx context.Context, followUp *domain.FollowUp) error {
	const query = `
        INSERT INTO follow_ups (tenant_id, ticket_id, agent_id, title, notes, due_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		followUp.TenantID,
		followUp.TicketID,
		followUp.AgentID,
		followUp.Title,
		followUp.Notes,
		followUp.DueAt,
	).Scan(&followUp.ID, &followUp.CreatedAt)
}
