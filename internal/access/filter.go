package access

import "github.com/spec-kit/support-desk/internal/domain"

// Operation identifies a ticket service operation for permission checks.
type Operation string

const (
	OpCreate       Operation = "create"
	OpAssign       Operation = "assign"
	OpSelfAssign   Operation = "self_assign"
	OpPass         Operation = "pass"
	OpCancel       Operation = "cancel"
	OpComplete     Operation = "complete"
	OpUpdateStatus Operation = "update_status"
	OpOverrideLock Operation = "override_lock"
)

// DeveloperView selects which slice of tickets a developer is asking for.
type DeveloperView string

const (
	ViewAssigned  DeveloperView = "assigned"
	ViewAvailable DeveloperView = "available"
	ViewCompleted DeveloperView = "completed"
)

// CanView reports whether the actor may read the ticket at all.
// Admins and project managers see everything; clients see their own
// tickets; developers see tickets they hold plus the unassigned open pool.
func CanView(role domain.Role, actorID int64, t *domain.Ticket) bool {
	switch role {
	case domain.RoleAdmin, domain.RoleProjectManager:
		return true
	case domain.RoleClient:
		return t.RequesterID == actorID
	case domain.RoleDeveloper:
		if t.AssignedTo(actorID) {
			return true
		}
		return !t.Assigned() && t.Status == domain.TicketStatusOpen
	}
	return false
}

// VisibleTickets filters a ticket list down to what the role may see.
func VisibleTickets(role domain.Role, actorID int64, tickets []domain.Ticket) []domain.Ticket {
	visible := make([]domain.Ticket, 0, len(tickets))
	for i := range tickets {
		if CanView(role, actorID, &tickets[i]) {
			visible = append(visible, tickets[i])
		}
	}
	return visible
}

// DeveloperVisible reports whether a ticket belongs to the given developer
// view. The three views partition what CanView grants a developer.
func DeveloperVisible(view DeveloperView, actorID int64, t *domain.Ticket) bool {
	switch view {
	case ViewAssigned:
		return t.AssignedTo(actorID) && t.Status != domain.TicketStatusClosed
	case ViewAvailable:
		return !t.Assigned() && t.Status == domain.TicketStatusOpen
	case ViewCompleted:
		return t.AssignedTo(actorID) && t.Status == domain.TicketStatusClosed
	}
	return false
}

// CanPerform reports whether the actor's role and identity permit the
// operation on the ticket. It checks role and ownership only; state guards
// (reason required, legal transition) belong to the state machine.
func CanPerform(role domain.Role, actorID int64, op Operation, t *domain.Ticket) bool {
	switch op {
	case OpCreate:
		return role == domain.RoleClient
	case OpAssign:
		return role.CanAssign()
	case OpSelfAssign:
		return role == domain.RoleDeveloper
	case OpPass, OpCancel, OpComplete, OpUpdateStatus:
		return role == domain.RoleDeveloper && t != nil && t.AssignedTo(actorID)
	case OpOverrideLock:
		return role == domain.RoleAdmin
	}
	return false
}
