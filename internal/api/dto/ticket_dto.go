package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Query    string                `json:"query"`
	Priority domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	DeveloperID int64  `json:"developer_id"`
	Notes       string `json:"notes"`
}

// ReasonRequest payload for pass and cancel.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// CompleteTicketRequest payload.
type CompleteTicketRequest struct {
	CompletionNotes string `json:"completion_notes"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status          domain.TicketStatus `json:"status"`
	CompletionNotes string              `json:"completion_notes"`
}

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID                  int64                 `json:"id"`
	ExternalKey         string                `json:"external_key"`
	RequesterID         int64                 `json:"requester_id"`
	Query               string                `json:"query"`
	Status              domain.TicketStatus   `json:"status"`
	Priority            domain.TicketPriority `json:"priority"`
	AssignedDeveloperID *int64                `json:"assigned_developer_id"`
	AssignedByID        *int64                `json:"assigned_by_id"`
	AssignmentNotes     *string               `json:"assignment_notes,omitempty"`
	CompletionNotes     *string               `json:"completion_notes,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
	CompletedAt         *time.Time            `json:"completed_at,omitempty"`
}

// EscalationResponse is one entry of a ticket's escalation log.
type EscalationResponse struct {
	ID               int64                   `json:"id"`
	TicketID         int64                   `json:"ticket_id"`
	Action           domain.EscalationAction `json:"action"`
	ActorID          int64                   `json:"actor_id"`
	Reason           string                  `json:"reason"`
	PreviousAssignee *int64                  `json:"previous_assignee,omitempty"`
	NewAssignee      *int64                  `json:"new_assignee,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
}

// NotificationResponse is one entry of the notification feed.
type NotificationResponse struct {
	ID        int64        `json:"id"`
	UserID    *int64       `json:"user_id,omitempty"`
	Role      *domain.Role `json:"role,omitempty"`
	Type      string       `json:"type"`
	Message   string       `json:"message"`
	ReadAt    *time.Time   `json:"read_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
