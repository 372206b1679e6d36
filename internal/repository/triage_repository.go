package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// TriageSessionRepository persists bot triage sessions. The session store
// is shared with the triage collaborator; this core only concludes
// sessions and records satisfaction replies.
type TriageSessionRepository interface {
	// ListFinalizable returns sessions either linked to the ticket id or
	// matching (tenant, phone) while still in an active status.
	ListFinalizable(ctx context.Context, tenantID, ticketID, contactPhone string) ([]domain.TriageSession, error)
	// ListRecentByContact returns the newest sessions for a contact in the
	// given statuses, newest first, bounded by limit.
	ListRecentByContact(ctx context.Context, tenantID, contactPhone string, statuses []domain.TriageSessionStatus, limit int) ([]domain.TriageSession, error)
	Save(ctx context.Context, session *domain.TriageSession) error
	SaveAll(ctx context.Context, sessions []*domain.TriageSession) error
}

type triageSessionRepository struct {
	pool *pgxpool.Pool
}

// NewTriageSessionRepository instantiates repository.
func NewTriageSessionRepository(pool *pgxpool.Pool) TriageSessionRepository {
	return &triageSessionRepository{pool: pool}
}

const sessionColumns = `id, ticket_id, tenant_id, contact_phone, status, outcome, context,
        satisfaction_score, satisfaction_comment, created_at, updated_at`

func (r *triageSessionRepository) ListFinalizable(ctx context.Context, tenantID, ticketID, contactPhone string) ([]domain.TriageSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM triage_sessions WHERE ticket_id=$1`
	args := []any{ticketID}
	if contactPhone != "" {
		query += ` OR (tenant_id=$2 AND contact_phone=$3 AND status IN ('in_progress','transferred'))`
		args = append(args, tenantID, contactPhone)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *triageSessionRepository) ListRecentByContact(ctx context.Context, tenantID, contactPhone string, statuses []domain.TriageSessionStatus, limit int) ([]domain.TriageSession, error) {
	if limit <= 0 {
		limit = 10
	}
	placeholders := make([]string, len(statuses))
	args := []any{tenantID, contactPhone}
	for i, status := range statuses {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`SELECT %s FROM triage_sessions
        WHERE tenant_id=$1 AND contact_phone=$2 AND status IN (%s)
        ORDER BY updated_at DESC LIMIT %d`,
		sessionColumns, strings.Join(placeholders, ","), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *triageSessionRepository) Save(ctx context.Context, session *domain.TriageSession) error {
	const query = `
        UPDATE triage_sessions SET ticket_id=$1, status=$2, outcome=$3, context=$4,
            satisfaction_score=$5, satisfaction_comment=$6, updated_at=NOW()
        WHERE id=$7`
	_, err := r.pool.Exec(ctx, query,
		session.TicketID,
		session.Status,
		session.Outcome,
		session.Context,
		session.SatisfactionScore,
		session.SatisfactionComment,
		session.ID,
	)
	return err
}

func (r *triageSessionRepository) SaveAll(ctx context.Context, sessions []*domain.TriageSession) error {
	for _, session := range sessions {
		if err := r.Save(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

func scanSessions(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]domain.TriageSession, error) {
	var result []domain.TriageSession
	for rows.Next() {
		var session domain.TriageSession
		if err := rows.Scan(
			&session.ID,
			&session.TicketID,
			&session.TenantID,
			&session.ContactPhone,
			&session.Status,
			&session.Outcome,
			&session.Context,
			&session.SatisfactionScore,
			&session.SatisfactionComment,
			&session.CreatedAt,
			&session.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	return result, rows.Err()
}
