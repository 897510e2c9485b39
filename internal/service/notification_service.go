package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sclint/support-desk/internal/domain"
	"github.com/sclint/support-desk/internal/events"
	"github.com/sclint/support-desk/internal/notify"
	"github.com/sclint/support-desk/internal/repository"
	apperrors "github.com/sclint/support-desk/pkg/util/errorutil"
)

// NotificationService turns ticket events into in-app notifications and
// emails, and serves each user's inbox. Delivery is best effort.
type NotificationService struct {
	dispatcher    events.Dispatcher
	users         repository.UserRepository
	notifications repository.NotificationRepository
	notifier      Notifier
	mailer        Mailer
	logger        *zap.Logger
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher       events.Dispatcher
	UserRepo         repository.UserRepository
	NotificationRepo repository.NotificationRepository
	Notifier         Notifier
	Mailer           Mailer
	Logger           *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:    deps.Dispatcher,
		users:         deps.UserRepo,
		notifications: deps.NotificationRepo,
		notifier:      deps.Notifier,
		mailer:        deps.Mailer,
		logger:        logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketForwarded, n.handleTicketForwarded)
	n.dispatcher.Subscribe(events.EventTicketUpdated, n.handleTicketUpdated)
	n.dispatcher.Subscribe(events.EventTicketBreached, n.handleTicketBreached)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	t := payload.Ticket
	errs := []error{
		n.notify(ctx, t.CreatedBy, "Ticket Created",
			fmt.Sprintf("Your ticket %s has been successfully created.", t.Key)),
	}
	if t.HandledBy != nil {
		errs = append(errs, n.notify(ctx, *t.HandledBy, "New Ticket Assigned",
			fmt.Sprintf("You have been assigned a new ticket %s", t.Key)))
	}
	return errors.Join(errs...)
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	t := payload.Ticket
	errs := []error{
		n.notify(ctx, t.CreatedBy, "Ticket Status Updated",
			fmt.Sprintf("Your ticket %s (%s) status has been updated to %s.", t.Title, t.Key, payload.NewStatus)),
	}
	if t.HandledBy != nil {
		errs = append(errs, n.notify(ctx, *t.HandledBy, "Ticket Status Changed",
			fmt.Sprintf("The status of ticket %s has been changed to %s.", t.Key, payload.NewStatus)))
	}

	handlerName := ""
	if t.HandledBy != nil {
		if handler := n.lookupUser(ctx, *t.HandledBy); handler != nil {
			handlerName = handler.FullName()
		}
	}
	errs = append(errs, n.email(ctx, t.CreatedBy,
		fmt.Sprintf("Ticket %q Updated", t.Title),
		notify.TemplateStatusChanged,
		notify.TicketEmail{
			TicketKey:   t.Key,
			TicketTitle: t.Title,
			Status:      strings.ToUpper(string(payload.NewStatus)),
			HandlerName: handlerName,
		}))
	return errors.Join(errs...)
}

func (n *NotificationService) handleTicketForwarded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketForwardedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	t := payload.Ticket

	agentName := "a support agent"
	if agent := n.lookupUser(ctx, payload.NewHandler); agent != nil {
		agentName = agent.FullName()
	}

	errs := []error{
		n.notify(ctx, t.CreatedBy, "Ticket Forwarded",
			fmt.Sprintf("Your ticket %s has been forwarded to %s", t.Key, agentName)),
		n.notify(ctx, payload.NewHandler, "New Ticket Assigned",
			fmt.Sprintf("You have been assigned a forwarded ticket %s", t.Key)),
		n.email(ctx, t.CreatedBy,
			fmt.Sprintf("Ticket %q Forwarded", t.Title),
			notify.TemplateForwarded,
			notify.TicketEmail{TicketKey: t.Key, TicketTitle: t.Title, Status: string(t.Status), AgentName: agentName}),
		n.email(ctx, payload.NewHandler,
			fmt.Sprintf("New Ticket Assigned: %s", t.Key),
			notify.TemplateAssigned,
			notify.TicketEmail{TicketKey: t.Key, TicketTitle: t.Title, Status: string(t.Status), AgentName: agentName}),
	}
	return errors.Join(errs...)
}

func (n *NotificationService) handleTicketUpdated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketUpdatedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	t := payload.Ticket
	errs := []error{
		n.notify(ctx, t.CreatedBy, "Ticket Updated",
			fmt.Sprintf("Your ticket %s has been updated.", t.Key)),
	}
	if t.HandledBy != nil {
		errs = append(errs, n.notify(ctx, *t.HandledBy, "Ticket Modified",
			fmt.Sprintf("Ticket %s has been updated.", t.Key)))
	}
	return errors.Join(errs...)
}

func (n *NotificationService) handleTicketBreached(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketBreachedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	t := payload.Ticket
	return errors.Join(
		n.notify(ctx, t.CreatedBy, "Ticket Breached",
			fmt.Sprintf("Your ticket %s has breached the SLA limit.", t.Key)),
		n.email(ctx, t.CreatedBy,
			fmt.Sprintf("Ticket %q Breached", t.Title),
			notify.TemplateBreached,
			notify.TicketEmail{TicketKey: t.Key, TicketTitle: t.Title, Status: string(t.Status)}),
	)
}

func (n *NotificationService) notify(ctx context.Context, userID, title, message string) error {
	if n.notifier == nil {
		return nil
	}
	if err := n.notifier.Notify(ctx, userID, title, message); err != nil {
		return fmt.Errorf("notify %s: %w", userID, err)
	}
	return nil
}

func (n *NotificationService) email(ctx context.Context, userID, subject string, tmpl notify.EmailTemplate, data notify.TicketEmail) error {
	if n.mailer == nil {
		return nil
	}
	recipient := n.lookupUser(ctx, userID)
	if recipient == nil || strings.TrimSpace(recipient.Email) == "" {
		return nil
	}
	data.RecipientName = recipient.FirstName
	body, err := notify.RenderEmail(tmpl, data)
	if err != nil {
		return err
	}
	if err := n.mailer.Send(ctx, recipient.Email, subject, body); err != nil {
		return fmt.Errorf("email %s: %w", userID, err)
	}
	return nil
}

func (n *NotificationService) lookupUser(ctx context.Context, userID string) *domain.User {
	if n.users == nil {
		return nil
	}
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		n.logger.Warn("notification recipient lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return user
}

// ListNotifications returns the caller's notifications, newest first.
func (n *NotificationService) ListNotifications(ctx context.Context, actor domain.Actor, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	items, err := n.notifications.ListByUser(ctx, actor.ID, unreadOnly, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return items, nil
}

// NotificationStats returns total and unread counts for the caller.
func (n *NotificationService) NotificationStats(ctx context.Context, actor domain.Actor) (domain.NotificationStats, error) {
	stats, err := n.notifications.Stats(ctx, actor.ID)
	if err != nil {
		return domain.NotificationStats{}, apperrors.MapError(err)
	}
	return stats, nil
}

// MarkNotificationRead flags one of the caller's notifications as read.
func (n *NotificationService) MarkNotificationRead(ctx context.Context, actor domain.Actor, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
	}
	if err := n.notifications.MarkRead(ctx, actor.ID, id); err != nil {
		if apperrors.IsNoRows(err) {
			return apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// DeleteNotification removes one of the caller's notifications.
func (n *NotificationService) DeleteNotification(ctx context.Context, actor domain.Actor, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
	}
	if err := n.notifications.Delete(ctx, actor.ID, id); err != nil {
		if apperrors.IsNoRows(err) {
			return apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

func unexpectedPayload(event events.Event) error {
	return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
}
