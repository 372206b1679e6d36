package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// AgentDirectory exposes routing candidates per department/unit criteria.
// Candidate rows arrive ranked-ready: active agents only, current active
// ticket counts, routing priority and last assignment recency included.
type AgentDirectory interface {
	// Candidates returns active agents matching the department OR the unit
	// criterion. DepartmentMatch is set on rows matched via the department.
	Candidates(ctx context.Context, tenantID string, departmentID, unitID *string) ([]domain.AgentCandidate, error)
	GetByID(ctx context.Context, agentID string) (*domain.Agent, error)
	// RecordAssignment bumps the agent's last-assigned timestamp so future
	// rankings rotate across equally loaded agents.
	RecordAssignment(ctx context.Context, agentID string, at time.Time) error
}

type agentDirectory struct {
	pool *pgxpool.Pool
}

// NewAgentDirectory instantiates the pgx-backed directory.
func NewAgentDirectory(pool *pgxpool.Pool) AgentDirectory {
	return &agentDirectory{pool: pool}
}

func (d *agentDirectory) Candidates(ctx context.Context, tenantID string, departmentID, unitID *string) ([]domain.AgentCandidate, error) {
	if departmentID == nil && unitID == nil {
		return nil, errors.New("department or unit criterion required")
	}

	const query = `
        SELECT a.id, a.name,
               BOOL_OR(aa.department_id IS NOT DISTINCT FROM $2 AND $2 IS NOT NULL) AS department_match,
               MIN(aa.routing_priority) AS routing_priority,
               COALESCE(MAX(aa.last_assigned_at), 'epoch'::timestamptz) AS last_assigned_at,
               COALESCE(t.active_count, 0) AS active_count
        FROM agents a
        JOIN agent_assignments aa ON aa.agent_id = a.id AND aa.active = TRUE
        LEFT JOIN (
            SELECT agent_id, COUNT(*) AS active_count
            FROM tickets
            WHERE status IN ('OPEN','IN_PROGRESS','AWAITING_CUSTOMER') AND agent_id IS NOT NULL
            GROUP BY agent_id
        ) t ON t.agent_id = a.id
        WHERE a.tenant_id = $1 AND a.active = TRUE
          AND ((aa.department_id IS NOT DISTINCT FROM $2 AND $2 IS NOT NULL)
            OR (aa.unit_id IS NOT DISTINCT FROM $3 AND $3 IS NOT NULL))
        GROUP BY a.id, a.name, t.active_count`

	rows, err := d.pool.Query(ctx, query, tenantID, departmentID, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.AgentCandidate
	for rows.Next() {
		var c domain.AgentCandidate
		if err := rows.Scan(
			&c.AgentID,
			&c.Name,
			&c.DepartmentMatch,
			&c.RoutingPriority,
			&c.LastAssignedAt,
			&c.ActiveTicketCount,
		); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (d *agentDirectory) GetByID(ctx context.Context, agentID string) (*domain.Agent, error) {
	const query = `SELECT id, tenant_id, name, active, created_at FROM agents WHERE id=$1`
	var agent domain.Agent
	if err := d.pool.QueryRow(ctx, query, agentID).Scan(
		&agent.ID,
		&agent.TenantID,
		&agent.Name,
		&agent.Active,
		&agent.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &agent, nil
}

func (d *agentDirectory) RecordAssignment(ctx context.Context, agentID string, at time.Time) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE agent_assignments SET last_assigned_at=$1 WHERE agent_id=$2 AND active=TRUE`,
		at, agentID)
	return err
}
