package service

import (
	"context"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	util "github.com/spec-kit/support-desk/pkg/util"
)

// NotificationService reads the persisted notification feed. Writing is
// done by the event-driven worker.
type NotificationService struct {
	notifications repository.NotificationRepository
}

// NewNotificationService constructs the service.
func NewNotificationService(notifications repository.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications}
}

// ListForActor returns notifications addressed to the actor directly or
// to the actor's role.
func (s *NotificationService) ListForActor(ctx context.Context, actor domain.Actor, limit int) ([]domain.Notification, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	items, err := s.notifications.ListForUser(ctx, actor.ID, actor.Role, limit)
	if err != nil {
		return nil, util.NewUnavailable(err)
	}
	return items, nil
}
