package events

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketSelfAssigned  EventType = "ticket_self_assigned"
	EventTicketPassed        EventType = "ticket_passed"
	EventTicketCanceled      EventType = "ticket_canceled"
	EventTicketCompleted     EventType = "ticket_completed"
	EventTicketStatusChanged EventType = "ticket_status_changed"
)

// Event represents a domain event emitted after a completed mutation.
// Exactly one event is published per successful mutating operation.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	ActorID   int64       `json:"actor_id"`
	ActorRole domain.Role `json:"actor_role"`
	Timestamp time.Time   `json:"timestamp"`
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	RequesterID int64                 `json:"requester_id"`
	Priority    domain.TicketPriority `json:"priority"`
	Query       string                `json:"query"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	DeveloperID  int64  `json:"developer_id"`
	AssignedByID *int64 `json:"assigned_by_id,omitempty"`
	SelfAssigned bool   `json:"self_assigned"`
	Notes        string `json:"notes,omitempty"`
}

// TicketPassedPayload payload.
type TicketPassedPayload struct {
	PreviousAssignee int64  `json:"previous_assignee"`
	Reason           string `json:"reason"`
}

// TicketClosedPayload payload for cancel and complete.
type TicketClosedPayload struct {
	DeveloperID int64  `json:"developer_id"`
	RequesterID int64  `json:"requester_id"`
	Notes       string `json:"notes,omitempty"`
	Canceled    bool   `json:"canceled"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}
