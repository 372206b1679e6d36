// Package routing ranks agent candidates for automatic ticket assignment.
package routing

import (
	"sort"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// Select picks the best candidate for a new assignment. Ranking order:
// department matches first, then fewest active tickets, then lowest
// routing priority value, then least recently assigned. Remaining ties
// break on name and finally id so the result is deterministic.
func Select(candidates []domain.AgentCandidate) (domain.AgentCandidate, bool) {
	if len(candidates) == 0 {
		return domain.AgentCandidate{}, false
	}

	ranked := append([]domain.AgentCandidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.DepartmentMatch != b.DepartmentMatch {
			return a.DepartmentMatch
		}
		if a.ActiveTicketCount != b.ActiveTicketCount {
			return a.ActiveTicketCount < b.ActiveTicketCount
		}
		if a.RoutingPriority != b.RoutingPriority {
			return a.RoutingPriority < b.RoutingPriority
		}
		if !a.LastAssignedAt.Equal(b.LastAssignedAt) {
			return a.LastAssignedAt.Before(b.LastAssignedAt)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.AgentID < b.AgentID
	})
	return ranked[0], true
}
