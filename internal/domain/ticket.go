package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Valid reports whether the priority is a known value.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// Ticket is the aggregate for client support requests.
//
// Assignment fields change only under the assignment lock. CompletedAt is
// set exactly once, when the ticket reaches CLOSED.
type Ticket struct {
	ID                  int64
	ExternalKey         string
	RequesterID         int64
	Query               string
	Status              TicketStatus
	Priority            TicketPriority
	AssignedDeveloperID *int64
	AssignedByID        *int64
	AssignmentNotes     *string
	CompletionNotes     *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

// Assigned reports whether a developer currently holds the ticket.
func (t *Ticket) Assigned() bool {
	return t.AssignedDeveloperID != nil
}

// AssignedTo reports whether the ticket is held by the given developer.
func (t *Ticket) AssignedTo(developerID int64) bool {
	return t.AssignedDeveloperID != nil && *t.AssignedDeveloperID == developerID
}

// Terminal reports whether the ticket has reached its final state.
func (t *Ticket) Terminal() bool {
	return t.Status == TicketStatusClosed
}
