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

// AuthService handles registration and credential exchange. Staff
// accounts are provisioned by admins through UserService; open
// registration only produces clients.
type AuthService struct {
	users  repository.UserRepository
	hasher *auth.PasswordHasher
	tokens *auth.TokenManager
}

// NewAuthService constructs the service.
func NewAuthService(users repository.UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenManager) *AuthService {
	return &AuthService{users: users, hasher: hasher, tokens: tokens}
}

// RegisterClient creates a client account.
func (s *AuthService) RegisterClient(ctx context.Context, username, email, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return nil, util.NewValidationError("username and email are required", nil)
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
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleClient,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, util.NewUnavailable(err)
	}
	return user, nil
}

// Login verifies credentials and issues an access token. Deactivated
// accounts are rejected even with a correct password.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, util.NewUnauthorized("invalid credentials")
		}
		return "", nil, util.NewUnavailable(err)
	}
	if !s.hasher.Compare(user.PasswordHash, password) {
		return "", nil, util.NewUnauthorized("invalid credentials")
	}
	if !user.Active {
		return "", nil, util.NewForbidden("account is deactivated")
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return "", nil, util.NewInternalError(err)
	}
	return token, user, nil
}

// Tokens exposes the token manager for middleware wiring.
func (s *AuthService) Tokens() *auth.TokenManager {
	return s.tokens
}
