package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/service"
)

// StatsHandler serves workload figures and the notification feed.
type StatsHandler struct {
	stats         *service.StatsService
	notifications *service.NotificationService
}

// NewStatsHandler constructs handler.
func NewStatsHandler(stats *service.StatsService, notifications *service.NotificationService) *StatsHandler {
	return &StatsHandler{stats: stats, notifications: notifications}
}

// DeveloperWorkloads GET /stats/workload.
func (h *StatsHandler) DeveloperWorkloads(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	workloads, err := h.stats.DeveloperWorkloads(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workloads})
}

// ListNotifications GET /notifications.
func (h *StatsHandler) ListNotifications(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	limit := parseInt(c.Query("limit"), 50)
	items, err := h.notifications.ListForActor(c.UserContext(), actor, limit)
	if err != nil {
		return err
	}
	resp := make([]dto.NotificationResponse, 0, len(items))
	for _, n := range items {
		resp = append(resp, dto.NotificationResponse{
			ID:        n.ID,
			UserID:    n.UserID,
			Role:      n.Role,
			Type:      n.Type,
			Message:   n.Message,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}
