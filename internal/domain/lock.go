package domain

import "time"

// AssignmentLock is a short-lived exclusivity marker on a ticket's
// assignment fields. It references the ticket by id only and expires on
// its own at ExpiresAt, so abandoned operations release themselves.
type AssignmentLock struct {
	TicketID   int64
	HolderID   int64
	HolderRole Role
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the lock has passed its TTL at the given time.
func (l *AssignmentLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// HeldBy reports whether the lock belongs to the given actor.
func (l *AssignmentLock) HeldBy(actorID int64) bool {
	return l.HolderID == actorID
}
