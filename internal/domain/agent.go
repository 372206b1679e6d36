package domain

import "time"

// Agent is a human operator able to receive tickets.
type Agent struct {
	ID        string
	TenantID  string
	Name      string
	Active    bool
	CreatedAt time.Time
}

// AgentCandidate is a transient routing row produced by the agent
// directory for one assignment request. Not persisted by this core.
type AgentCandidate struct {
	AgentID           string
	Name              string
	ActiveTicketCount int
	// RoutingPriority ranks candidates within equal load; lower wins.
	RoutingPriority int
	LastAssignedAt  time.Time
	// DepartmentMatch is true when the candidate matched the requested
	// department rather than only the unit.
	DepartmentMatch bool
}
