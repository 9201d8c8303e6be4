package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
)

// NotificationWorker subscribes to ticket lifecycle events and fans them
// out as persisted notification rows. Delivery channels beyond the feed
// (email, webhook) are logged stubs.
type NotificationWorker struct {
	notifications repository.NotificationRepository
	cfg           config.NotificationConfig
	logger        *zap.Logger
}

// NewNotificationWorker constructs the worker.
func NewNotificationWorker(notifications repository.NotificationRepository, cfg config.NotificationConfig, logger *zap.Logger) *NotificationWorker {
	return &NotificationWorker{notifications: notifications, cfg: cfg, logger: logger}
}

// Register subscribes the worker to every lifecycle event type.
func (w *NotificationWorker) Register(dispatcher events.Dispatcher) {
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketAssigned,
		events.EventTicketSelfAssigned,
		events.EventTicketPassed,
		events.EventTicketCanceled,
		events.EventTicketCompleted,
		events.EventTicketStatusChanged,
	} {
		dispatcher.Subscribe(eventType, w.handle)
	}
}

func (w *NotificationWorker) handle(ctx context.Context, event events.Event) error {
	for _, n := range w.fanOut(event) {
		record := n
		if err := w.notifications.Create(ctx, &record); err != nil {
			w.logger.Warn("notification persist failed",
				zap.String("event_type", string(event.Type)),
				zap.Int64("ticket_id", event.TicketID),
				zap.Error(err))
			continue
		}
		w.deliver(record)
	}
	return nil
}

// fanOut maps an event to its notification recipients. Staff roles get
// role-addressed rows; clients and developers get user-addressed rows.
func (w *NotificationWorker) fanOut(event events.Event) []domain.Notification {
	eventType := string(event.Type)
	adminRole := domain.RoleAdmin
	pmRole := domain.RoleProjectManager

	switch event.Type {
	case events.EventTicketCreated:
		payload, ok := event.Payload.(events.TicketCreatedPayload)
		if !ok {
			return nil
		}
		msg := fmt.Sprintf("New %s ticket #%d opened", payload.Priority, event.TicketID)
		return []domain.Notification{
			{Role: &adminRole, Type: eventType, Message: msg},
			{Role: &pmRole, Type: eventType, Message: msg},
		}

	case events.EventTicketAssigned, events.EventTicketSelfAssigned:
		payload, ok := event.Payload.(events.TicketAssignedPayload)
		if !ok {
			return nil
		}
		msg := fmt.Sprintf("Ticket #%d assigned to developer %d", event.TicketID, payload.DeveloperID)
		if payload.SelfAssigned {
			msg = fmt.Sprintf("Ticket #%d self-assigned by developer %d", event.TicketID, payload.DeveloperID)
		}
		devID := payload.DeveloperID
		return []domain.Notification{
			{UserID: &devID, Type: eventType, Message: msg},
			{Role: &pmRole, Type: eventType, Message: msg},
		}

	case events.EventTicketPassed:
		msg := fmt.Sprintf("Ticket #%d returned to the pool: %s", event.TicketID, event.Reason)
		return []domain.Notification{
			{Role: &adminRole, Type: eventType, Message: msg},
			{Role: &pmRole, Type: eventType, Message: msg},
		}

	case events.EventTicketCanceled, events.EventTicketCompleted:
		payload, ok := event.Payload.(events.TicketClosedPayload)
		if !ok {
			return nil
		}
		verb := "resolved"
		if payload.Canceled {
			verb = "canceled"
		}
		msg := fmt.Sprintf("Ticket #%d %s: %s", event.TicketID, verb, payload.Notes)
		requesterID := payload.RequesterID
		return []domain.Notification{
			{UserID: &requesterID, Type: eventType, Message: msg},
			{Role: &pmRole, Type: eventType, Message: msg},
		}

	case events.EventTicketStatusChanged:
		payload, ok := event.Payload.(events.TicketStatusChangedPayload)
		if !ok {
			return nil
		}
		msg := fmt.Sprintf("Ticket #%d moved from %s to %s", event.TicketID, payload.OldStatus, payload.NewStatus)
		return []domain.Notification{
			{Role: &pmRole, Type: eventType, Message: msg},
		}
	}
	return nil
}

// deliver pushes the notification over the secondary channels. Both are
// stubs that log the would-be delivery.
func (w *NotificationWorker) deliver(n domain.Notification) {
	fields := []zap.Field{
		zap.String("type", n.Type),
		zap.String("message", n.Message),
	}
	if n.UserID != nil {
		fields = append(fields, zap.Int64("user_id", *n.UserID))
	}
	if n.Role != nil {
		fields = append(fields, zap.String("role", string(*n.Role)))
	}

	if w.cfg.EmailFrom != "" {
		w.logger.Debug("email notification", append(fields, zap.String("from", w.cfg.EmailFrom))...)
	}
	if w.cfg.WebhookURL != "" {
		w.logger.Debug("webhook notification", append(fields, zap.String("url", w.cfg.WebhookURL))...)
	}
}
