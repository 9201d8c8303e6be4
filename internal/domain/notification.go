package domain

import "time"

// Notification is a persisted fan-out record for a lifecycle event. It is
// addressed either to a single user or to every holder of a role.
type Notification struct {
	ID        int64
	UserID    *int64
	Role      *Role
	Type      string
	Message   string
	ReadAt    *time.Time
	CreatedAt time.Time
}
