package service

import (
	"context"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	util "github.com/spec-kit/support-desk/pkg/util"
)

// DeveloperWorkload summarizes one developer's ticket load.
type DeveloperWorkload struct {
	DeveloperID    int64  `json:"developer_id"`
	Username       string `json:"username"`
	Active         bool   `json:"active"`
	InProgress     int64  `json:"in_progress"`
	CompletedTotal int64  `json:"completed_total"`
	CompletedToday int64  `json:"completed_today"`
	CompletedWeek  int64  `json:"completed_week"`
}

// StatsService computes workload figures for assignment decisions.
type StatsService struct {
	tickets repository.TicketRepository
	users   repository.UserRepository
}

// NewStatsService constructs the service.
func NewStatsService(tickets repository.TicketRepository, users repository.UserRepository) *StatsService {
	return &StatsService{tickets: tickets, users: users}
}

// DeveloperWorkloads returns per-developer counts for every developer
// account, active or not. Admins and project managers only.
func (s *StatsService) DeveloperWorkloads(ctx context.Context, actor domain.Actor) ([]DeveloperWorkload, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if !actor.Role.CanAssign() {
		return nil, util.NewForbidden("access denied")
	}

	developers, err := s.users.ListByRole(ctx, domain.RoleDeveloper, false)
	if err != nil {
		return nil, util.NewUnavailable(err)
	}

	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfWeek := startOfDay.AddDate(0, 0, -int(now.Weekday()))

	workloads := make([]DeveloperWorkload, 0, len(developers))
	for i := range developers {
		dev := &developers[i]
		w := DeveloperWorkload{
			DeveloperID: dev.ID,
			Username:    dev.Username,
			Active:      dev.Active,
		}

		inProgress, err := s.tickets.CountWithFilter(ctx, repository.TicketFilter{
			AssignedDeveloperID: &dev.ID,
			Statuses:            []domain.TicketStatus{domain.TicketStatusInProgress},
		})
		if err != nil {
			return nil, util.NewUnavailable(err)
		}
		w.InProgress = inProgress

		completed, err := s.tickets.CountWithFilter(ctx, repository.TicketFilter{
			AssignedDeveloperID: &dev.ID,
			Statuses:            []domain.TicketStatus{domain.TicketStatusClosed},
		})
		if err != nil {
			return nil, util.NewUnavailable(err)
		}
		w.CompletedTotal = completed

		today, err := s.tickets.CountWithFilter(ctx, repository.TicketFilter{
			AssignedDeveloperID: &dev.ID,
			Statuses:            []domain.TicketStatus{domain.TicketStatusClosed},
			CompletedFrom:       &startOfDay,
		})
		if err != nil {
			return nil, util.NewUnavailable(err)
		}
		w.CompletedToday = today

		week, err := s.tickets.CountWithFilter(ctx, repository.TicketFilter{
			AssignedDeveloperID: &dev.ID,
			Statuses:            []domain.TicketStatus{domain.TicketStatusClosed},
			CompletedFrom:       &startOfWeek,
		})
		if err != nil {
			return nil, util.NewUnavailable(err)
		}
		w.CompletedWeek = week

		workloads = append(workloads, w)
	}
	return workloads, nil
}
