package locking

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// ErrConflict is returned when a non-expired lock for the ticket is held
// by somebody else.
var ErrConflict = errors.New("assignment lock held by another actor")

// ConflictError wraps ErrConflict with the current holder so callers can
// surface who is assigning the ticket.
type ConflictError struct {
	TicketID   int64
	HolderID   int64
	HolderRole domain.Role
}

func (e *ConflictError) Error() string {
	return ErrConflict.Error()
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Manager hands out short-lived exclusive locks on a ticket's assignment
// fields. Locks expire on their own after the TTL; there is no heartbeat
// because every lock-bearing operation is a single request/response.
type Manager interface {
	// Acquire succeeds if no active lock exists for the ticket, or if the
	// existing lock already belongs to the actor (re-entrant within TTL).
	// On contention it fails fast with a *ConflictError.
	Acquire(ctx context.Context, ticketID int64, actorID int64, role domain.Role) (*domain.AssignmentLock, error)

	// Release is idempotent: it no-ops when there is no active lock or the
	// lock is held by somebody else.
	Release(ctx context.Context, ticketID int64, actorID int64) error

	// Override force-releases any active lock regardless of holder. Role
	// checks are the service's job; the manager only clears the record.
	Override(ctx context.Context, ticketID int64) error
}

// IsExpired is a pure check of a lock against wall-clock time.
func IsExpired(lock *domain.AssignmentLock, now time.Time) bool {
	return lock == nil || lock.Expired(now)
}
