package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	util "github.com/spec-kit/support-desk/pkg/util"
)

// UserService covers admin-side account management: provisioning staff,
// listing by role, and toggling activation.
type UserService struct {
	users  repository.UserRepository
	hasher *auth.PasswordHasher
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository, hasher *auth.PasswordHasher) *UserService {
	return &UserService{users: users, hasher: hasher}
}

// CreateUser provisions an account with any role. Admin only.
func (s *UserService) CreateUser(ctx context.Context, actor domain.Actor, username, email, password string, role domain.Role) (*domain.User, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		return nil, util.NewForbidden("only admins can create accounts")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, util.NewValidationError("username is required", nil)
	}
	if !role.Valid() {
		return nil, util.NewValidationError("unknown role", map[string]any{"role": role})
	}
	if len(password) < 8 {
		return nil, util.NewValidationError("password must be at least 8 characters", nil)
	}

	if existing, err := s.users.GetByUsername(ctx, username); err == nil && existing != nil {
		return nil, util.NewConflict("username already taken", map[string]any{"username": username})
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, util.NewUnavailable(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, util.NewInternalError(err)
	}

	user := &domain.User{
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, util.NewUnavailable(err)
	}
	return user, nil
}

// ListByRole returns accounts of a role. Admins and project managers use
// this to pick assignees.
func (s *UserService) ListByRole(ctx context.Context, actor domain.Actor, role domain.Role, activeOnly bool) ([]domain.User, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if !actor.Role.CanAssign() {
		return nil, util.NewForbidden("access denied")
	}
	if !role.Valid() {
		return nil, util.NewValidationError("unknown role", map[string]any{"role": role})
	}
	users, err := s.users.ListByRole(ctx, role, activeOnly)
	if err != nil {
		return nil, util.NewUnavailable(err)
	}
	return users, nil
}

// SetActive toggles an account's activation flag. Admin only; an admin
// cannot deactivate themselves.
func (s *UserService) SetActive(ctx context.Context, actor domain.Actor, userID int64, active bool) (*domain.User, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		return nil, util.NewForbidden("only admins can change account activation")
	}
	if userID == actor.ID && !active {
		return nil, util.NewValidationError("cannot deactivate your own account", nil)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err, "user")
	}
	if user.Active == active {
		return user, nil
	}
	user.Active = active
	if err := s.users.Update(ctx, user); err != nil {
		return nil, mapStoreError(err, "user")
	}
	return user, nil
}

// GetByID loads a single account. Staff can look up anyone; other roles
// only themselves.
func (s *UserService) GetByID(ctx context.Context, actor domain.Actor, userID int64) (*domain.User, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if !actor.Role.CanAssign() && actor.ID != userID {
		return nil, util.NewForbidden("access denied")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err, "user")
	}
	return user, nil
}
