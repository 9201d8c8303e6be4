package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-desk/internal/access"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/locking"
	"github.com/spec-kit/support-desk/internal/repository"
	util "github.com/spec-kit/support-desk/pkg/util"
)

// TicketService is the core façade over the ticket store, the assignment
// lock manager, the state machine, and the access filter. Every operation
// follows the same shape: authorize, lock when assignment changes, apply
// the transition, persist, release, emit one event.
type TicketService struct {
	tickets     repository.TicketRepository
	escalations repository.EscalationRepository
	users       repository.UserRepository
	locks       locking.Manager
	dispatcher  events.Dispatcher
	retry       retryPolicy
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	EscalationRepo repository.EscalationRepository
	UserRepo       repository.UserRepository
	LockManager    locking.Manager
	Dispatcher     events.Dispatcher
}

// NewTicketService constructs the service.
func NewTicketService(cfg config.RetryConfig, deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		escalations: deps.EscalationRepo,
		users:       deps.UserRepo,
		locks:       deps.LockManager,
		dispatcher:  deps.Dispatcher,
		retry:       newRetryPolicy(cfg),
	}
}

// TicketListFilter describes listing parameters for any role.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	View       access.DeveloperView
	Limit      int
	Offset     int
}

// CreateTicket opens a new ticket for a client.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, query string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if !access.CanPerform(actor.Role, actor.ID, access.OpCreate, nil) {
		return nil, util.NewForbidden("only clients can create tickets")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, util.NewValidationError("query required", nil)
	}
	if !priority.Valid() {
		priority = domain.TicketPriorityMedium
	}

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		RequesterID: actor.ID,
		Query:       query,
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
	}
	if err := s.saveNew(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			RequesterID: ticket.RequesterID,
			Priority:    ticket.Priority,
			Query:       ticket.Query,
		},
	})
	return ticket, nil
}

// AssignTicket assigns a ticket to a developer on behalf of an admin or
// project manager. Reassignment of an IN_PROGRESS ticket follows the same
// lock discipline; a held lock surfaces as LOCK_CONFLICT and the admin
// escape hatch is OverrideLock.
func (s *TicketService) AssignTicket(ctx context.Context, actor domain.Actor, ticketID, developerID int64, notes string) (*domain.Ticket, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if !access.CanPerform(actor.Role, actor.ID, access.OpAssign, nil) {
		return nil, util.NewForbidden("only admins and project managers can assign tickets")
	}

	developer, err := s.getUser(ctx, developerID)
	if err != nil {
		return nil, err
	}
	if developer.Role != domain.RoleDeveloper || !developer.Active {
		return nil, util.NewValidationError("assignee must be an active developer", map[string]any{
			"developer_id": developerID,
		})
	}

	if err := s.acquireLock(ctx, ticketID, actor); err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, ticketID, actor)

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Terminal() {
		return nil, util.NewInvalidTransition("ticket is already closed", transitionDetails(ticket.Status))
	}

	fromStatus := ticket.Status
	ticket.AssignedDeveloperID = &developer.ID
	ticket.AssignedByID = &actor.ID
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		ticket.AssignmentNotes = &trimmed
	}
	if ticket.Status == domain.TicketStatusOpen {
		ticket.Status = domain.TicketStatusInProgress
	}
	if err := s.saveExisting(ctx, ticket, fromStatus); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Payload: events.TicketAssignedPayload{
			DeveloperID:  developer.ID,
			AssignedByID: &actor.ID,
			Notes:        notes,
		},
	})
	return ticket, nil
}

// SelfAssignTicket lets a developer claim an unassigned open ticket.
func (s *TicketService) SelfAssignTicket(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.Ticket, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if !access.CanPerform(actor.Role, actor.ID, access.OpSelfAssign, nil) {
		return nil, util.NewForbidden("only developers can self-assign tickets")
	}

	if err := s.acquireLock(ctx, ticketID, actor); err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, ticketID, actor)

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Terminal() {
		return nil, util.NewInvalidTransition("ticket is already closed", transitionDetails(ticket.Status))
	}
	if ticket.Assigned() || ticket.Status != domain.TicketStatusOpen {
		return nil, util.NewInvalidTransition("ticket is no longer available for self-assignment", transitionDetails(ticket.Status))
	}

	notes := "Self-assigned"
	fromStatus := ticket.Status
	ticket.AssignedDeveloperID = &actor.ID
	ticket.AssignedByID = nil
	ticket.AssignmentNotes = &notes
	ticket.Status = domain.TicketStatusInProgress
	if err := s.saveExisting(ctx, ticket, fromStatus); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketSelfAssigned,
		TicketID: ticket.ID,
		Payload: events.TicketAssignedPayload{
			DeveloperID:  actor.ID,
			SelfAssigned: true,
		},
	})
	return ticket, nil
}

// PassTicket returns an assigned ticket to the unassigned pool with a
// reason. The previous assignee is recorded in the escalation log.
func (s *TicketService) PassTicket(ctx context.Context, actor domain.Actor, ticketID int64, reason string) (*domain.Ticket, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, util.NewMissingReason("a reason is required to pass a ticket")
	}

	if err := s.acquireLock(ctx, ticketID, actor); err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, ticketID, actor)

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !access.CanPerform(actor.Role, actor.ID, access.OpPass, ticket) {
		return nil, util.NewForbidden("only the assigned developer can pass a ticket")
	}
	if ticket.Terminal() {
		return nil, util.NewInvalidTransition("ticket is already closed", transitionDetails(ticket.Status))
	}

	previous := *ticket.AssignedDeveloperID
	notes := "Passed by developer: " + reason
	fromStatus := ticket.Status
	ticket.AssignedDeveloperID = nil
	ticket.AssignedByID = nil
	ticket.AssignmentNotes = &notes
	ticket.Status = domain.TicketStatusOpen
	if err := s.saveExisting(ctx, ticket, fromStatus); err != nil {
		return nil, err
	}

	if err := s.appendEscalation(ctx, &domain.EscalationEntry{
		TicketID:         ticket.ID,
		Action:           domain.EscalationPassed,
		ActorID:          actor.ID,
		Reason:           reason,
		PreviousAssignee: &previous,
	}); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketPassed,
		TicketID: ticket.ID,
		Reason:   reason,
		Payload: events.TicketPassedPayload{
			PreviousAssignee: previous,
			Reason:           reason,
		},
	})
	return ticket, nil
}

// CancelTicket terminates a ticket as unresolved with a reason.
func (s *TicketService) CancelTicket(ctx context.Context, actor domain.Actor, ticketID int64, reason string) (*domain.Ticket, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, util.NewMissingReason("a reason is required to cancel a ticket")
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !access.CanPerform(actor.Role, actor.ID, access.OpCancel, ticket) {
		return nil, util.NewForbidden("only the assigned developer can cancel a ticket")
	}
	if ticket.Terminal() {
		return nil, util.NewInvalidTransition("ticket is already closed", transitionDetails(ticket.Status))
	}

	assignee := *ticket.AssignedDeveloperID
	now := time.Now()
	notes := "Cancelled: " + reason
	fromStatus := ticket.Status
	ticket.Status = domain.TicketStatusClosed
	ticket.CompletedAt = &now
	ticket.CompletionNotes = &notes
	if err := s.saveExisting(ctx, ticket, fromStatus); err != nil {
		return nil, err
	}

	if err := s.appendEscalation(ctx, &domain.EscalationEntry{
		TicketID:         ticket.ID,
		Action:           domain.EscalationCanceled,
		ActorID:          actor.ID,
		Reason:           reason,
		PreviousAssignee: &assignee,
		NewAssignee:      &assignee,
	}); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketCanceled,
		TicketID: ticket.ID,
		Reason:   reason,
		Payload: events.TicketClosedPayload{
			DeveloperID: assignee,
			RequesterID: ticket.RequesterID,
			Notes:       reason,
			Canceled:    true,
		},
	})
	return ticket, nil
}

// CompleteTicket closes a ticket as resolved. Completion notes are
// mandatory; they become the client-visible reply.
func (s *TicketService) CompleteTicket(ctx context.Context, actor domain.Actor, ticketID int64, completionNotes string) (*domain.Ticket, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	completionNotes = strings.TrimSpace(completionNotes)
	if completionNotes == "" {
		return nil, util.NewMissingReason("completion notes are required to close a ticket")
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !access.CanPerform(actor.Role, actor.ID, access.OpComplete, ticket) {
		return nil, util.NewForbidden("only the assigned developer can complete a ticket")
	}
	if ticket.Terminal() {
		return nil, util.NewInvalidTransition("ticket is already closed", transitionDetails(ticket.Status))
	}
	if !isValidTransition(ticket.Status, domain.TicketStatusClosed) {
		return nil, util.NewInvalidTransition(
			fmt.Sprintf("cannot close a ticket in status %s", ticket.Status),
			transitionDetails(ticket.Status))
	}

	now := time.Now()
	fromStatus := ticket.Status
	ticket.Status = domain.TicketStatusClosed
	ticket.CompletedAt = &now
	ticket.CompletionNotes = &completionNotes
	if err := s.saveExisting(ctx, ticket, fromStatus); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketCompleted,
		TicketID: ticket.ID,
		Payload: events.TicketClosedPayload{
			DeveloperID: actor.ID,
			RequesterID: ticket.RequesterID,
			Notes:       completionNotes,
		},
	})
	return ticket, nil
}

// UpdateTicketStatus moves an assigned ticket between working states.
// Closing through this path requires completion notes and shares the
// complete guards, so the two entry points cannot diverge.
func (s *TicketService) UpdateTicketStatus(ctx context.Context, actor domain.Actor, ticketID int64, newStatus domain.TicketStatus, completionNotes string) (*domain.Ticket, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}

	switch newStatus {
	case domain.TicketStatusClosed:
		return s.CompleteTicket(ctx, actor, ticketID, completionNotes)
	case domain.TicketStatusInProgress:
		// handled below
	default:
		return nil, util.NewInvalidTransition(
			fmt.Sprintf("status %s cannot be set directly", newStatus), nil)
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !access.CanPerform(actor.Role, actor.ID, access.OpUpdateStatus, ticket) {
		return nil, util.NewForbidden("only the assigned developer can update ticket status")
	}
	if ticket.Status == domain.TicketStatusInProgress {
		return ticket, nil
	}
	if !isValidTransition(ticket.Status, domain.TicketStatusInProgress) {
		return nil, util.NewInvalidTransition(
			fmt.Sprintf("cannot move a %s ticket to IN_PROGRESS", ticket.Status),
			transitionDetails(ticket.Status))
	}

	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusInProgress
	if err := s.saveExisting(ctx, ticket, oldStatus); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
		},
	})
	return ticket, nil
}

// OverrideLock force-releases the assignment lock on a ticket. Admin only.
func (s *TicketService) OverrideLock(ctx context.Context, actor domain.Actor, ticketID int64) error {
	if err := requireActive(actor); err != nil {
		return err
	}
	if !access.CanPerform(actor.Role, actor.ID, access.OpOverrideLock, nil) {
		return util.NewForbidden("only admins can override assignment locks")
	}
	if err := s.locks.Override(ctx, ticketID); err != nil {
		return util.NewUnavailable(err)
	}
	return nil
}

// GetTicket fetches one ticket, enforcing role visibility.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.Ticket, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !access.CanView(actor.Role, actor.ID, ticket) {
		return nil, util.NewForbidden("access denied")
	}
	return ticket, nil
}

// ListTickets returns the tickets visible to the actor. Developers choose
// between the assigned, available, and completed views.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}

	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}

	view := filter.View
	switch actor.Role {
	case domain.RoleClient:
		repoFilter.RequesterID = &actor.ID
	case domain.RoleDeveloper:
		if view == "" {
			view = access.ViewAssigned
		}
		switch view {
		case access.ViewAssigned:
			repoFilter.AssignedDeveloperID = &actor.ID
		case access.ViewAvailable:
			repoFilter.Unassigned = true
			repoFilter.Statuses = []domain.TicketStatus{domain.TicketStatusOpen}
		case access.ViewCompleted:
			repoFilter.AssignedDeveloperID = &actor.ID
			repoFilter.Statuses = []domain.TicketStatus{domain.TicketStatusClosed}
		default:
			return nil, util.NewValidationError("unknown view", map[string]any{"view": view})
		}
	case domain.RoleAdmin, domain.RoleProjectManager:
		// full listing
	default:
		return nil, util.NewForbidden("unknown role")
	}

	var tickets []domain.Ticket
	err := s.retry.run(ctx, func() error {
		listed, err := s.tickets.ListWithFilter(ctx, repoFilter)
		if err != nil {
			return util.NewUnavailable(err)
		}
		tickets = listed
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The repo filter narrows the query; the access filter is authoritative.
	if actor.Role == domain.RoleDeveloper {
		visible := make([]domain.Ticket, 0, len(tickets))
		for i := range tickets {
			if access.DeveloperVisible(view, actor.ID, &tickets[i]) {
				visible = append(visible, tickets[i])
			}
		}
		return visible, nil
	}
	return access.VisibleTickets(actor.Role, actor.ID, tickets), nil
}

// ListEscalations returns the append-only escalation log for a ticket.
func (s *TicketService) ListEscalations(ctx context.Context, actor domain.Actor, ticketID int64) ([]domain.EscalationEntry, error) {
	if _, err := s.GetTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	var entries []domain.EscalationEntry
	err := s.retry.run(ctx, func() error {
		listed, err := s.escalations.ListByTicket(ctx, ticketID)
		if err != nil {
			return util.NewUnavailable(err)
		}
		entries = listed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func requireActive(actor domain.Actor) error {
	if !actor.Active {
		return util.NewForbidden("account is deactivated")
	}
	if !actor.Role.Valid() {
		return util.NewForbidden("unknown role")
	}
	return nil
}

func transitionDetails(status domain.TicketStatus) map[string]any {
	return map[string]any{"status": status}
}

func (s *TicketService) acquireLock(ctx context.Context, ticketID int64, actor domain.Actor) error {
	_, err := s.locks.Acquire(ctx, ticketID, actor.ID, actor.Role)
	if err == nil {
		return nil
	}
	var conflict *locking.ConflictError
	if errors.As(err, &conflict) {
		return util.NewLockConflict("someone else is assigning this ticket", map[string]any{
			"holder_id":   conflict.HolderID,
			"holder_role": conflict.HolderRole,
		})
	}
	return util.NewUnavailable(err)
}

func (s *TicketService) releaseLock(ctx context.Context, ticketID int64, actor domain.Actor) {
	_ = s.locks.Release(ctx, ticketID, actor.ID)
}

func (s *TicketService) getTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.retry.run(ctx, func() error {
		fetched, err := s.tickets.GetByID(ctx, id)
		if err != nil {
			return mapStoreError(err, "ticket")
		}
		ticket = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) getUser(ctx context.Context, id int64) (*domain.User, error) {
	var user *domain.User
	err := s.retry.run(ctx, func() error {
		fetched, err := s.users.GetByID(ctx, id)
		if err != nil {
			return mapStoreError(err, "user")
		}
		user = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *TicketService) saveNew(ctx context.Context, ticket *domain.Ticket) error {
	return s.retry.run(ctx, func() error {
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return util.NewUnavailable(err)
		}
		return nil
	})
}

// saveExisting commits the mutation only if the ticket still has the
// status the operation read. A concurrent writer that commits first makes
// this write stale; the loser reports INVALID_TRANSITION rather than
// overwriting the winner's record.
func (s *TicketService) saveExisting(ctx context.Context, ticket *domain.Ticket, fromStatus domain.TicketStatus) error {
	return s.retry.run(ctx, func() error {
		if err := s.tickets.Update(ctx, ticket, fromStatus); err != nil {
			if errors.Is(err, repository.ErrStaleTicket) {
				return util.NewInvalidTransition("ticket was modified concurrently", transitionDetails(fromStatus))
			}
			return mapStoreError(err, "ticket")
		}
		return nil
	})
}

func (s *TicketService) appendEscalation(ctx context.Context, entry *domain.EscalationEntry) error {
	return s.retry.run(ctx, func() error {
		if err := s.escalations.Append(ctx, entry); err != nil {
			return util.NewUnavailable(err)
		}
		return nil
	})
}

func (s *TicketService) publishEvent(ctx context.Context, actor domain.Actor, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.ActorID = actor.ID
	event.ActorRole = actor.Role
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
