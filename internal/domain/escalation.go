package domain

import "time"

// EscalationAction captures what kind of escalation happened.
type EscalationAction string

const (
	EscalationPassed   EscalationAction = "passed"
	EscalationCanceled EscalationAction = "canceled"
)

// EscalationEntry is an immutable audit record of a pass or cancel event.
// Entries are append-only; the log for a ticket never shrinks and entry
// timestamps are non-decreasing.
type EscalationEntry struct {
	ID               int64
	TicketID         int64
	Action           EscalationAction
	ActorID          int64
	Reason           string
	PreviousAssignee *int64
	NewAssignee      *int64
	CreatedAt        time.Time
}
