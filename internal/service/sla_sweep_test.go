package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sclint/support-desk/internal/domain"
	"github.com/sclint/support-desk/internal/events"
)

func (h *harness) wireNotifications() (*recordingNotifier, *recordingMailer) {
	notifier := &recordingNotifier{}
	mailer := &recordingMailer{}
	NewNotificationService(NotificationDependencies{
		Dispatcher: h.dispatcher,
		UserRepo:   h.users,
		Notifier:   notifier,
		Mailer:     mailer,
		Logger:     zap.NewNop(),
	}).RegisterHandlers()
	return notifier, mailer
}

func (h *harness) countEvents(et events.EventType) int {
	n := 0
	for _, got := range h.eventTypes() {
		if got == et {
			n++
		}
	}
	return n
}

func TestSweepReclassifiesByBusinessHours(t *testing.T) {
	h := newHarness(t)
	asha := h.actor(domain.RoleIntern, "Asha")
	ticket := h.seed(asha, domain.TicketStatusPending, nil)

	h.clock.Set(monday.Add(5*time.Hour + 59*time.Minute))
	report, err := h.svc.RunSLASweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Zero(t, report.Reclassified)
	assert.Equal(t, domain.TicketPriorityLow, h.tickets.get(ticket.ID).Priority)

	h.clock.Set(monday.Add(6 * time.Hour))
	report, err = h.svc.RunSLASweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reclassified)
	assert.Equal(t, domain.TicketPriorityMedium, h.tickets.get(ticket.ID).Priority)

	report, err = h.svc.RunSLASweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Reclassified)

	entries, err := h.history.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ChangeTypePriority, entries[0].ChangeType)
	assert.Equal(t, domain.AuthorTypeSystem, entries[0].ChangedByType)
	assert.Nil(t, entries[0].ChangedByID)
}

func TestSweepIgnoresEveningHours(t *testing.T) {
	h := newHarness(t)
	asha := h.actor(domain.RoleIntern, "Asha")
	h.clock.Set(monday.Add(8 * time.Hour)) // 17:00
	ticket := h.seed(asha, domain.TicketStatusOpen, nil)

	h.clock.Set(monday.Add(14 * time.Hour)) // 23:00, one business hour in
	_, err := h.svc.RunSLASweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityLow, h.tickets.get(ticket.ID).Priority)
	assert.Equal(t, domain.TicketStatusOpen, h.tickets.get(ticket.ID).Status)
}

func TestSweepBreachesAcrossWeekendWithFrozenPriority(t *testing.T) {
	h := newHarness(t)
	notifier, mailer := h.wireNotifications()
	asha := h.actor(domain.RoleIntern, "Asha")

	friday := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	h.clock.Set(friday)
	ticket := h.seed(asha, domain.TicketStatusPending, nil)

	h.clock.Set(friday.Add(7 * time.Hour))
	_, err := h.svc.RunSLASweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityMedium, h.tickets.get(ticket.ID).Priority)

	mondayMorning := time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)
	h.clock.Set(mondayMorning)
	report, err := h.svc.RunSLASweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Breached)

	stored := h.tickets.get(ticket.ID)
	assert.Equal(t, domain.TicketStatusBreached, stored.Status)
	assert.Equal(t, domain.TicketPriorityMedium, stored.Priority)

	h.clock.Advance(15 * time.Minute)
	report, err = h.svc.RunSLASweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)

	assert.Equal(t, 1, h.countEvents(events.EventTicketBreached))
	breachNotes := 0
	for _, title := range notifier.titles() {
		if title == "Ticket Breached" {
			breachNotes++
		}
	}
	assert.Equal(t, 1, breachNotes)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "asha@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Body, ticket.Key)
}

func TestReopenedBreachIsNotBreachedAgain(t *testing.T) {
	h := newHarness(t)
	notifier, mailer := h.wireNotifications()
	asha := h.actor(domain.RoleIntern, "Asha")
	ticket := h.seed(asha, domain.TicketStatusPending, nil)

	h.clock.Advance(25 * time.Hour)
	report, err := h.svc.RunSLASweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Breached)
	breachedAt := h.tickets.get(ticket.ID).BreachedAt
	require.NotNil(t, breachedAt)

	_, err = h.svc.UpdateStatus(context.Background(), asha, ticket.ID, domain.TicketStatusOpen)
	require.NoError(t, err)

	h.clock.Advance(15 * time.Minute)
	report, err = h.svc.RunSLASweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Zero(t, report.Breached)

	reopened := h.tickets.get(ticket.ID)
	assert.Equal(t, domain.TicketStatusOpen, reopened.Status)
	assert.Equal(t, *breachedAt, *reopened.BreachedAt)

	outcome, err := h.svc.SweepReclassify(context.Background(), &reopened)
	require.NoError(t, err)
	assert.Equal(t, SweepSkipped, outcome)
	assert.Equal(t, domain.TicketPriorityLow, h.tickets.get(ticket.ID).Priority)

	assert.Equal(t, 1, h.countEvents(events.EventTicketBreached))
	breachNotes := 0
	for _, title := range notifier.titles() {
		if title == "Ticket Breached" {
			breachNotes++
		}
	}
	assert.Equal(t, 1, breachNotes)
	breachEmails := 0
	for _, m := range mailer.sent {
		if strings.Contains(m.Subject, "Breached") {
			breachEmails++
		}
	}
	assert.Equal(t, 1, breachEmails)
}

func TestSweepReclassifySkipsTerminalTickets(t *testing.T) {
	h := newHarness(t)
	asha := h.actor(domain.RoleIntern, "Asha")
	ticket := h.seed(asha, domain.TicketStatusSolved, nil)

	h.clock.Advance(72 * time.Hour)
	outcome, err := h.svc.SweepReclassify(context.Background(), &ticket)
	require.NoError(t, err)
	assert.Equal(t, SweepSkipped, outcome)
	assert.Equal(t, domain.TicketStatusSolved, h.tickets.get(ticket.ID).Status)
}

func TestSweepReclassifyLosesRaceQuietly(t *testing.T) {
	h := newHarness(t)
	asha := h.actor(domain.RoleIntern, "Asha")
	ticket := h.seed(asha, domain.TicketStatusPending, nil)
	stale := ticket

	h.clock.Advance(25 * time.Hour)
	_, err := h.svc.UpdateStatus(context.Background(), asha, ticket.ID, domain.TicketStatusSolved)
	require.NoError(t, err)

	outcome, err := h.svc.SweepReclassify(context.Background(), &stale)
	require.NoError(t, err)
	assert.Equal(t, SweepSkipped, outcome)
	assert.Equal(t, domain.TicketStatusSolved, h.tickets.get(ticket.ID).Status)
	assert.Zero(t, h.countEvents(events.EventTicketBreached))
}

func TestConcurrentSweepsBreachOnce(t *testing.T) {
	h := newHarness(t)
	asha := h.actor(domain.RoleIntern, "Asha")
	for i := 0; i < 5; i++ {
		h.tickets.put(domain.Ticket{Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityLow, CreatedBy: asha.ID, CreatedAt: monday})
	}
	h.clock.Advance(48 * time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.svc.RunSLASweep(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, h.countEvents(events.EventTicketBreached))
}

func TestSweepContinuesPastFailures(t *testing.T) {
	h := newHarness(t)
	asha := h.actor(domain.RoleIntern, "Asha")
	bad := h.seed(asha, domain.TicketStatusPending, nil)
	good := h.tickets.put(domain.Ticket{Key: "SCLINT002A", Status: domain.TicketStatusOpen, CreatedBy: asha.ID, CreatedAt: monday})
	h.tickets.failOn["breach:"+bad.ID] = errors.New("deadlock detected")

	h.clock.Advance(30 * time.Hour)
	report, err := h.svc.RunSLASweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Breached)
	assert.Equal(t, domain.TicketStatusBreached, h.tickets.get(good.ID).Status)
	assert.Equal(t, domain.TicketStatusPending, h.tickets.get(bad.ID).Status)
}

func TestSweepListFailure(t *testing.T) {
	h := newHarness(t)
	h.tickets.failOn["list"] = errors.New("connection reset")

	_, err := h.svc.RunSLASweep(context.Background())
	require.Error(t, err)
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	h := newHarness(t)
	asha := h.actor(domain.RoleIntern, "Asha")
	ticket := h.seed(asha, domain.TicketStatusPending, nil)
	h.clock.Advance(30 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.svc.RunSLASweep(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.TicketStatusPending, h.tickets.get(ticket.ID).Status)
}
