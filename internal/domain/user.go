package domain

import "time"

// Role enumerates the account roles in the support desk.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleDeveloper      Role = "developer"
	RoleClient         Role = "client"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProjectManager, RoleDeveloper, RoleClient:
		return true
	}
	return false
}

// CanAssign reports whether the role may assign tickets to developers.
func (r Role) CanAssign() bool {
	return r == RoleAdmin || r == RoleProjectManager
}

// User is an account that can authenticate and act on tickets.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor carries the identity every core operation receives explicitly.
// A deactivated actor is rejected before any other check runs.
type Actor struct {
	ID     int64
	Role   Role
	Active bool
}

// ActorFromUser builds the request-scoped actor for a user record.
func ActorFromUser(u *User) Actor {
	return Actor{ID: u.ID, Role: u.Role, Active: u.Active}
}
