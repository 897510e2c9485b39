package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sclint/support-desk/internal/clock"
	"github.com/sclint/support-desk/internal/domain"
	"github.com/sclint/support-desk/internal/events"
	"github.com/sclint/support-desk/internal/repository"
	"github.com/sclint/support-desk/internal/sla"
	apperrors "github.com/sclint/support-desk/pkg/util/errorutil"
)

// DefaultBreachAfter is the wall-clock age at which an open ticket breaches its SLA.
const DefaultBreachAfter = 24 * time.Hour

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets        repository.TicketRepository
	users          repository.UserRepository
	history        repository.TicketHistoryRepository
	dispatcher     events.Dispatcher
	rotator        *SupportRotator
	keys           *TicketKeyGenerator
	classifier     *sla.Classifier
	storage        FileStorage
	clock          clock.Clock
	logger         *zap.Logger
	breachAfter    time.Duration
	maxUploadBytes int64
	location       *time.Location
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	UserRepo       repository.UserRepository
	HistoryRepo    repository.TicketHistoryRepository
	Dispatcher     events.Dispatcher
	Rotator        *SupportRotator
	Keys           *TicketKeyGenerator
	Classifier     *sla.Classifier
	Storage        FileStorage
	Clock          clock.Clock
	Logger         *zap.Logger
	BreachAfter    time.Duration
	MaxUploadBytes int64
	// Location anchors month boundaries for stats.
	Location *time.Location
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Title       string  `valid:"required~title is required"`
	Description string  `valid:"required~description is required"`
	Attachment  *Upload `valid:"-"`
}

// EditTicketInput carries the fields a caller wants to change. Nil leaves a field as is.
type EditTicketInput struct {
	Title       *string
	Description *string
	Attachment  *Upload
}

// ListTicketsInput describes list filters.
type ListTicketsInput struct {
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	HandledBy   *string
	Mine        bool
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// StatsInput scopes the stats query. Month is YYYY-MM.
type StatsInput struct {
	Mine  bool
	Month string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	breachAfter := deps.BreachAfter
	if breachAfter <= 0 {
		breachAfter = DefaultBreachAfter
	}
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = sla.NewClassifier(sla.DefaultCalendar(), clk)
	}
	keys := deps.Keys
	if keys == nil {
		keys = NewTicketKeyGenerator(deps.TicketRepo, clk, DefaultTicketKeyPrefix)
	}
	rotator := deps.Rotator
	if rotator == nil {
		rotator = NewSupportRotator(deps.UserRepo)
	}
	return &TicketService{
		tickets:        deps.TicketRepo,
		users:          deps.UserRepo,
		history:        deps.HistoryRepo,
		dispatcher:     deps.Dispatcher,
		rotator:        rotator,
		keys:           keys,
		classifier:     classifier,
		storage:        deps.Storage,
		clock:          clk,
		logger:         logger,
		breachAfter:    breachAfter,
		maxUploadBytes: deps.MaxUploadBytes,
		location:       loc,
	}
}

// CreateTicket opens a ticket on behalf of actor and routes it to the next support agent.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input CreateTicketInput) (*domain.Ticket, error) {
	if actor.Role == domain.RoleSupport {
		return nil, apperrors.NewForbidden("support agents cannot raise tickets")
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if _, err := govalidator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewValidationError("invalid ticket", fieldErrors(err))
	}
	if err := s.checkUpload(input.Attachment); err != nil {
		return nil, err
	}

	key, err := s.keys.Generate(ctx, actor.FirstName)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	turn, err := s.rotator.Reserve(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	attachmentURL, err := s.storeAttachment(ctx, input.Attachment)
	if err != nil {
		turn.Release()
		return nil, err
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		Key:           key,
		Title:         input.Title,
		Description:   input.Description,
		AttachmentURL: attachmentURL,
		Status:        domain.TicketStatusPending,
		Priority:      domain.TicketPriorityLow,
		CreatedBy:     actor.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if turn.Agent != nil {
		ticket.HandledBy = &turn.Agent.ID
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		turn.Release()
		s.discardAttachment(ctx, attachmentURL)
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.ActorFor(actor),
		Payload:  events.TicketCreatedPayload{Ticket: *ticket},
	})
	return ticket, nil
}

// ListTickets returns tickets visible to actor. Interns only see their own.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, input ListTicketsInput) ([]domain.Ticket, error) {
	if err := validateStatuses(input.Statuses); err != nil {
		return nil, err
	}
	for _, p := range input.Priorities {
		if !p.Valid() {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": p})
		}
	}

	filter := repository.TicketFilter{
		HandledBy:   input.HandledBy,
		Statuses:    input.Statuses,
		Priorities:  input.Priorities,
		SearchTerm:  input.SearchTerm,
		CreatedFrom: input.CreatedFrom,
		CreatedTo:   input.CreatedTo,
		Limit:       input.Limit,
		Offset:      input.Offset,
	}
	s.applyReadScope(&filter, actor, input.Mine)

	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicket fetches a ticket by UUID or by its human key.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ref string) (*domain.Ticket, error) {
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// GetTicketHistory returns the audit trail of a readable ticket.
func (s *TicketService) GetTicketHistory(ctx context.Context, actor domain.Actor, ref string) ([]domain.TicketHistory, error) {
	ticket, err := s.GetTicket(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// UpdateStatus moves a ticket to target on behalf of actor.
func (s *TicketService) UpdateStatus(ctx context.Context, actor domain.Actor, ref string, target domain.TicketStatus) (*domain.Ticket, error) {
	if !target.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": target})
	}
	if target == domain.TicketStatusBreached {
		return nil, apperrors.NewValidationError("breached is set by the SLA sweep only", map[string]any{"status": target})
	}

	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ticket.CreatedBy != actor.ID && !ticket.IsHandledBy(actor.ID) && !actor.IsStaff() {
		return nil, apperrors.NewForbidden("only the creator, the handler or staff may change status")
	}
	if target == domain.TicketStatusClosed && !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("only admins may close tickets")
	}
	if !CanTransition(ticket.Status, target) {
		return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   target,
		})
	}

	oldStatus := ticket.Status
	now := s.clock.Now()
	ticket.Status = target
	ticket.UpdatedAt = now
	if target == domain.TicketStatusSolved {
		ticket.ResolvedAt = &now
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	evActor := events.ActorFor(actor)
	s.recordHistory(ctx, ticket.ID, evActor, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": target})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    evActor,
		Payload: events.TicketStatusChangedPayload{
			Ticket:    *ticket,
			OldStatus: oldStatus,
			NewStatus: target,
		},
	})
	return ticket, nil
}

// ForwardTicket reassigns a ticket to another support agent. Admin only.
func (s *TicketService) ForwardTicket(ctx context.Context, actor domain.Actor, ref, agentID string) (*domain.Ticket, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("only admins may forward tickets")
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, apperrors.NewValidationError("support agent is required", map[string]any{"field": "support_user_id"})
	}

	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(agentID); err != nil {
		return nil, apperrors.NewNotFound("support agent", map[string]any{"user_id": agentID})
	}
	agent, err := s.users.GetByID(ctx, agentID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("support agent", map[string]any{"user_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	if agent.Role != domain.RoleSupport {
		return nil, apperrors.NewValidationError("target user is not a support agent", map[string]any{"user_id": agentID})
	}

	previous := ticket.HandledBy
	ticket.ForwardedTo = &agent.ID
	ticket.HandledBy = &agent.ID
	ticket.UpdatedAt = s.clock.Now()

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	evActor := events.ActorFor(actor)
	s.recordHistory(ctx, ticket.ID, evActor, domain.ChangeTypeHandler,
		map[string]any{"handled_by": previous},
		map[string]any{"handled_by": agent.ID, "forwarded_to": agent.ID})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketForwarded,
		TicketID: ticket.ID,
		Actor:    evActor,
		Payload: events.TicketForwardedPayload{
			Ticket:          *ticket,
			PreviousHandler: previous,
			NewHandler:      agent.ID,
		},
	})
	return ticket, nil
}

// EditTicket updates title, description or attachment.
func (s *TicketService) EditTicket(ctx context.Context, actor domain.Actor, ref string, input EditTicketInput) (*domain.Ticket, error) {
	details := map[string]any{}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		details["title"] = "title cannot be blank"
	}
	if input.Description != nil && strings.TrimSpace(*input.Description) == "" {
		details["description"] = "description cannot be blank"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}
	if input.Title == nil && input.Description == nil && input.Attachment == nil {
		return nil, apperrors.NewValidationError("nothing to update", nil)
	}
	if err := s.checkUpload(input.Attachment); err != nil {
		return nil, err
	}

	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ticket.CreatedBy != actor.ID && !actor.IsStaff() {
		return nil, apperrors.NewForbidden("only the creator or staff may edit a ticket")
	}

	oldValue := map[string]any{}
	newValue := map[string]any{}
	var fields []string

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		oldValue["title"], newValue["title"] = ticket.Title, title
		ticket.Title = title
		fields = append(fields, "title")
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		oldValue["description"], newValue["description"] = ticket.Description, description
		ticket.Description = description
		fields = append(fields, "description")
	}
	if input.Attachment != nil {
		url, err := s.storeAttachment(ctx, input.Attachment)
		if err != nil {
			return nil, err
		}
		oldValue["attachment_url"], newValue["attachment_url"] = ticket.AttachmentURL, url
		ticket.AttachmentURL = url
		fields = append(fields, "attachment_url")
	}
	ticket.UpdatedAt = s.clock.Now()

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if input.Attachment != nil {
			s.discardAttachment(ctx, ticket.AttachmentURL)
		}
		return nil, apperrors.MapError(err)
	}

	evActor := events.ActorFor(actor)
	s.recordHistory(ctx, ticket.ID, evActor, domain.ChangeTypeEdit, oldValue, newValue)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticket.ID,
		Actor:    evActor,
		Payload:  events.TicketUpdatedPayload{Ticket: *ticket, Fields: fields},
	})
	return ticket, nil
}

// DeleteTicket removes a ticket permanently. Its key stays reserved.
func (s *TicketService) DeleteTicket(ctx context.Context, actor domain.Actor, ref string) error {
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return err
	}
	if ticket.CreatedBy != actor.ID && !actor.IsAdmin() {
		return apperrors.NewForbidden("only the creator or an admin may delete a ticket")
	}
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		if apperrors.IsNoRows(err) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
		}
		return apperrors.MapError(err)
	}
	s.logger.Info("ticket deleted", zap.String("ticket_id", ticket.ID), zap.String("key", ticket.Key), zap.String("actor_id", actor.ID))
	return nil
}

// GetStats counts visible tickets by status.
func (s *TicketService) GetStats(ctx context.Context, actor domain.Actor, input StatsInput) (*domain.TicketStats, error) {
	var filter repository.TicketFilter
	if month := strings.TrimSpace(input.Month); month != "" {
		start, err := time.ParseInLocation("2006-01", month, s.location)
		if err != nil {
			return nil, apperrors.NewValidationError("month must be formatted as YYYY-MM", map[string]any{"month": month})
		}
		end := start.AddDate(0, 1, 0)
		filter.CreatedFrom = &start
		filter.CreatedTo = &end
	}
	s.applyReadScope(&filter, actor, input.Mine)

	counts, err := s.tickets.CountByStatus(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	stats := &domain.TicketStats{ByStatus: make(map[domain.TicketStatus]int, len(domain.TicketStatuses))}
	for _, status := range domain.TicketStatuses {
		stats.ByStatus[status] = counts[status]
		stats.Total += counts[status]
	}
	return stats, nil
}

func (s *TicketService) lookup(ctx context.Context, ref string) (*domain.Ticket, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperrors.NewValidationError("ticket id is required", nil)
	}

	var (
		ticket *domain.Ticket
		err    error
	)
	if _, parseErr := uuid.Parse(ref); parseErr == nil {
		ticket, err = s.tickets.GetByID(ctx, ref)
	} else {
		ticket, err = s.tickets.GetByKey(ctx, strings.ToUpper(ref))
	}
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ref})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) applyReadScope(filter *repository.TicketFilter, actor domain.Actor, mine bool) {
	if mine || !actor.IsStaff() {
		id := actor.ID
		filter.CreatedBy = &id
	}
}

func (s *TicketService) checkUpload(upload *Upload) error {
	if upload == nil {
		return nil
	}
	if s.maxUploadBytes > 0 && upload.Size > s.maxUploadBytes {
		return apperrors.NewValidationError("attachment too large", map[string]any{
			"size":      upload.Size,
			"max_bytes": s.maxUploadBytes,
		})
	}
	return nil
}

func (s *TicketService) storeAttachment(ctx context.Context, upload *Upload) (*string, error) {
	if upload == nil {
		return nil, nil
	}
	if s.storage == nil {
		return nil, apperrors.NewDependencyFailure("file storage", errors.New("file storage not configured"))
	}
	url, err := s.storage.Store(ctx, *upload)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("file storage", err)
	}
	return &url, nil
}

// discardAttachment removes an upload whose ticket row was never written.
func (s *TicketService) discardAttachment(ctx context.Context, url *string) {
	if url == nil || s.storage == nil {
		return
	}
	if err := s.storage.Remove(ctx, *url); err != nil {
		s.logger.Warn("failed to remove orphaned attachment", zap.String("url", *url), zap.Error(err))
	}
}

func (s *TicketService) recordHistory(ctx context.Context, ticketID string, actor events.Actor, changeType domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: actor.Type,
		ChangedByID:   actor.UserID,
		ChangeType:    changeType,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record ticket history",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(changeType)),
			zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.clock.Now()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func canRead(actor domain.Actor, ticket *domain.Ticket) bool {
	return actor.IsStaff() || ticket.CreatedBy == actor.ID
}

func validateStatuses(statuses []domain.TicketStatus) error {
	for _, status := range statuses {
		if !status.Valid() {
			return apperrors.NewValidationError("invalid status", map[string]any{"status": status})
		}
	}
	return nil
}

func fieldErrors(err error) map[string]any {
	details := map[string]any{}
	for field, msg := range govalidator.ErrorsByField(err) {
		details[strings.ToLower(field)] = msg
	}
	return details
}
