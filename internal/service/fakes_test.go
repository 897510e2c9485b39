package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sclint/support-desk/internal/domain"
	"github.com/sclint/support-desk/internal/repository"
)

type memTickets struct {
	mu      sync.Mutex
	rows    map[string]domain.Ticket
	keys    map[string]bool
	order   []string
	failOn  map[string]error
	failAll error
}

func newMemTickets() *memTickets {
	return &memTickets{rows: map[string]domain.Ticket{}, keys: map[string]bool{}, failOn: map[string]error{}}
}

func (m *memTickets) fail(op string) error {
	if m.failAll != nil {
		return m.failAll
	}
	return m.failOn[op]
}

func (m *memTickets) Create(_ context.Context, t *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create"); err != nil {
		return err
	}
	t.ID = uuid.NewString()
	m.rows[t.ID] = *t
	m.order = append(m.order, t.ID)
	return nil
}

func (m *memTickets) Update(_ context.Context, t *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("update"); err != nil {
		return err
	}
	stored, ok := m.rows[t.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	row := *t
	row.BreachedAt = stored.BreachedAt
	m.rows[t.ID] = row
	return nil
}

func (m *memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (m *memTickets) GetByKey(_ context.Context, key string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.rows {
		if t.Key == key {
			t := t
			return &t, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memTickets) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

func (m *memTickets) matching(filter repository.TicketFilter) []domain.Ticket {
	var out []domain.Ticket
	for _, id := range m.order {
		t, ok := m.rows[id]
		if !ok {
			continue
		}
		if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.HandledBy != nil && !t.IsHandledBy(*filter.HandledBy) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, t.Priority) {
			continue
		}
		if filter.CreatedFrom != nil && t.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && !t.CreatedAt.Before(*filter.CreatedTo) {
			continue
		}
		if filter.SearchTerm != nil {
			term := strings.ToLower(*filter.SearchTerm)
			if !strings.Contains(strings.ToLower(t.Title+" "+t.Description+" "+t.Key), term) {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func (m *memTickets) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list"); err != nil {
		return nil, err
	}
	out := m.matching(filter)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memTickets) ListSweepable(context.Context) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list"); err != nil {
		return nil, err
	}
	var out []domain.Ticket
	for _, t := range m.rows {
		if t.Sweepable() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memTickets) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("count"); err != nil {
		return 0, err
	}
	return len(m.rows), nil
}

func (m *memTickets) CountByStatus(_ context.Context, filter repository.TicketFilter) (map[domain.TicketStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[domain.TicketStatus]int{}
	for _, t := range m.matching(filter) {
		counts[t.Status]++
	}
	return counts, nil
}

func (m *memTickets) ReserveKey(_ context.Context, key string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("reserve"); err != nil {
		return false, err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memTickets) MarkBreached(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn["breach:"+id]; err != nil {
		return false, err
	}
	t, ok := m.rows[id]
	if !ok || !t.Sweepable() {
		return false, nil
	}
	t.Status = domain.TicketStatusBreached
	t.UpdatedAt = at
	t.BreachedAt = &at
	m.rows[id] = t
	return true, nil
}

func (m *memTickets) UpdatePriority(_ context.Context, id string, p domain.TicketPriority, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn["priority:"+id]; err != nil {
		return false, err
	}
	t, ok := m.rows[id]
	if !ok || !t.Sweepable() || t.Priority == p {
		return false, nil
	}
	t.Priority = p
	t.UpdatedAt = at
	m.rows[id] = t
	return true, nil
}

func (m *memTickets) get(id string) domain.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

// put seeds a ticket directly, bypassing the service.
func (m *memTickets) put(t domain.Ticket) domain.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.rows[t.ID] = t
	m.order = append(m.order, t.ID)
	if t.Key != "" {
		m.keys[t.Key] = true
	}
	return t
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

type memUsers struct {
	mu      sync.Mutex
	users   []domain.User
	listErr error
}

func (m *memUsers) add(u domain.User) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.ApprovalStatus == "" {
		u.ApprovalStatus = domain.ApprovalApproved
	}
	if u.Email == "" {
		u.Email = strings.ToLower(u.FirstName) + "@example.com"
	}
	m.users = append(m.users, u)
	return u
}

func (m *memUsers) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, u := range m.users {
		if u.ID == id {
			m.users = append(m.users[:i], m.users[i+1:]...)
			return
		}
	}
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) ListSupportAgents(context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.User
	for _, u := range m.users {
		if u.IsEligibleAgent() {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type memHistory struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
	err     error
}

func (m *memHistory) Create(_ context.Context, h *domain.TicketHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	h.ID = uuid.NewString()
	m.entries = append(m.entries, *h)
	return nil
}

func (m *memHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range m.entries {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

type sentNotification struct {
	UserID, Title, Message string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, userID, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentNotification{userID, title, message})
	return nil
}

func (r *recordingNotifier) to(userID string) []sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentNotification
	for _, n := range r.sent {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		out = append(out, n.Title)
	}
	return out
}

type sentEmail struct {
	To, Subject, Body string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (r *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentEmail{to, subject, body})
	return nil
}

type fakeStorage struct {
	stored  []Upload
	removed []string
	err     error
}

func (f *fakeStorage) Remove(_ context.Context, url string) error {
	f.removed = append(f.removed, url)
	return nil
}

func (f *fakeStorage) Store(_ context.Context, u Upload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.stored = append(f.stored, u)
	return "https://files.example.com/" + u.FileName, nil
}
