package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sclint/support-desk/internal/domain"
	"github.com/sclint/support-desk/internal/events"
	apperrors "github.com/sclint/support-desk/pkg/util/errorutil"
)

type memInbox struct {
	items []domain.Notification
}

func (m *memInbox) Create(_ context.Context, n *domain.Notification) error {
	n.ID = uuid.NewString()
	m.items = append(m.items, *n)
	return nil
}

func (m *memInbox) ListByUser(_ context.Context, userID string, unreadOnly bool, _, _ int) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, n := range m.items {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memInbox) Stats(_ context.Context, userID string) (domain.NotificationStats, error) {
	var stats domain.NotificationStats
	for _, n := range m.items {
		if n.UserID == userID {
			stats.Total++
			if !n.IsRead {
				stats.Unread++
			}
		}
	}
	return stats, nil
}

func (m *memInbox) MarkRead(_ context.Context, userID, id string) error {
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].UserID == userID {
			m.items[i].IsRead = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memInbox) Delete(_ context.Context, userID, id string) error {
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].UserID == userID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

func TestCreatedNotificationsWithoutHandler(t *testing.T) {
	h := newHarness(t)
	notifier, mailer := h.wireNotifications()
	asha := h.actor(domain.RoleIntern, "Asha")

	ticket, err := h.svc.CreateTicket(context.Background(), asha, CreateTicketInput{Title: "VPN", Description: "down"})
	require.NoError(t, err)

	sent := notifier.to(asha.ID)
	require.Len(t, sent, 1)
	assert.Equal(t, "Ticket Created", sent[0].Title)
	assert.Contains(t, sent[0].Message, ticket.Key)
	assert.NotContains(t, notifier.titles(), "New Ticket Assigned")
	assert.Empty(t, mailer.sent)
}

func TestCreatedNotificationsReachHandler(t *testing.T) {
	h := newHarness(t)
	notifier, _ := h.wireNotifications()
	ravi := h.actor(domain.RoleSupport, "Ravi")
	asha := h.actor(domain.RoleIntern, "Asha")

	_, err := h.svc.CreateTicket(context.Background(), asha, CreateTicketInput{Title: "VPN", Description: "down"})
	require.NoError(t, err)

	require.Len(t, notifier.to(asha.ID), 1)
	toRavi := notifier.to(ravi.ID)
	require.Len(t, toRavi, 1)
	assert.Equal(t, "New Ticket Assigned", toRavi[0].Title)
}

func TestStatusChangeNotifiesAndEmailsCreator(t *testing.T) {
	h := newHarness(t)
	notifier, mailer := h.wireNotifications()
	asha := h.actor(domain.RoleIntern, "Asha")
	ravi := h.actor(domain.RoleSupport, "Ravi")
	ticket := h.seed(asha, domain.TicketStatusPending, &ravi.ID)

	_, err := h.svc.UpdateStatus(context.Background(), ravi, ticket.ID, domain.TicketStatusOpen)
	require.NoError(t, err)

	require.Len(t, notifier.to(asha.ID), 1)
	assert.Equal(t, "Ticket Status Updated", notifier.to(asha.ID)[0].Title)
	require.Len(t, notifier.to(ravi.ID), 1)
	assert.Equal(t, "Ticket Status Changed", notifier.to(ravi.ID)[0].Title)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "asha@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Body, "OPEN")
	assert.Contains(t, mailer.sent[0].Body, "Ravi")
}

func TestForwardNotifiesCreatorAndNewHandler(t *testing.T) {
	h := newHarness(t)
	notifier, mailer := h.wireNotifications()
	asha := h.actor(domain.RoleIntern, "Asha")
	admin := h.actor(domain.RoleAdmin, "Ada")
	mei := h.actor(domain.RoleSupport, "Mei")
	ticket := h.seed(asha, domain.TicketStatusOpen, nil)

	_, err := h.svc.ForwardTicket(context.Background(), admin, ticket.ID, mei.ID)
	require.NoError(t, err)

	toAsha := notifier.to(asha.ID)
	require.Len(t, toAsha, 1)
	assert.Contains(t, toAsha[0].Message, "Mei")
	require.Len(t, notifier.to(mei.ID), 1)

	var recipients []string
	for _, m := range mailer.sent {
		recipients = append(recipients, m.To)
	}
	assert.ElementsMatch(t, []string{"asha@example.com", "mei@example.com"}, recipients)
}

func TestForwardNamesAgentInFull(t *testing.T) {
	h := newHarness(t)
	notifier, mailer := h.wireNotifications()
	asha := h.actor(domain.RoleIntern, "Asha")
	admin := h.actor(domain.RoleAdmin, "Ada")
	mei := h.users.add(domain.User{FirstName: "Mei", LastName: "Lin", Role: domain.RoleSupport, CreatedAt: h.clock.Now()})
	ticket := h.seed(asha, domain.TicketStatusOpen, nil)

	_, err := h.svc.ForwardTicket(context.Background(), admin, ticket.ID, mei.ID)
	require.NoError(t, err)

	toAsha := notifier.to(asha.ID)
	require.Len(t, toAsha, 1)
	assert.Contains(t, toAsha[0].Message, "forwarded to Mei Lin")
	var toCreator []string
	for _, m := range mailer.sent {
		if m.To == "asha@example.com" {
			toCreator = append(toCreator, m.Body)
		}
	}
	require.Len(t, toCreator, 1)
	assert.Contains(t, toCreator[0], "forwarded to <strong>Mei Lin</strong>")
}

func TestNotificationFailuresDoNotFailTheOperation(t *testing.T) {
	h := newHarness(t)
	notifier, mailer := h.wireNotifications()
	notifier.err = errors.New("redis down")
	mailer.err = errors.New("sendgrid 500")
	asha := h.actor(domain.RoleIntern, "Asha")
	ticket := h.seed(asha, domain.TicketStatusPending, nil)

	updated, err := h.svc.UpdateStatus(context.Background(), asha, ticket.ID, domain.TicketStatusOpen)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, updated.Status)
}

func TestNotificationHandlerRejectsUnknownPayload(t *testing.T) {
	ns := NewNotificationService(NotificationDependencies{Notifier: &recordingNotifier{}, Logger: zap.NewNop()})
	err := ns.handleTicketBreached(context.Background(), events.Event{Type: events.EventTicketBreached, Payload: "nope"})
	require.Error(t, err)
}

func TestNotificationInbox(t *testing.T) {
	inbox := &memInbox{}
	ns := NewNotificationService(NotificationDependencies{NotificationRepo: inbox})
	asha := domain.Actor{ID: uuid.NewString(), Role: domain.RoleIntern}
	bo := domain.Actor{ID: uuid.NewString(), Role: domain.RoleIntern}

	for _, title := range []string{"one", "two"} {
		require.NoError(t, inbox.Create(context.Background(), &domain.Notification{UserID: asha.ID, Title: title}))
	}
	first := inbox.items[0].ID

	items, err := ns.ListNotifications(context.Background(), asha, false, 10, 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, ns.MarkNotificationRead(context.Background(), asha, first))
	stats, err := ns.NotificationStats(context.Background(), asha)
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationStats{Total: 2, Unread: 1}, stats)

	unread, err := ns.ListNotifications(context.Background(), asha, true, 10, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	err = ns.MarkNotificationRead(context.Background(), bo, first)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	err = ns.DeleteNotification(context.Background(), asha, "42")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	require.NoError(t, ns.DeleteNotification(context.Background(), asha, first))
	stats, err = ns.NotificationStats(context.Background(), asha)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}
