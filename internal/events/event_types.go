package events

import (
	"time"

	"github.com/sclint/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketForwarded     EventType = "ticket_forwarded"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketBreached      EventType = "ticket_breached"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   domain.ChangeAuthorType `json:"type"`
	UserID *string                 `json:"user_id,omitempty"`
}

// SystemActor is the author of sweep-driven events.
var SystemActor = Actor{Type: domain.AuthorTypeSystem}

// ActorFor converts an authenticated caller into event metadata.
func ActorFor(a domain.Actor) Actor {
	id := a.ID
	return Actor{Type: domain.AuthorTypeFor(a.Role), UserID: &id}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Ticket domain.Ticket `json:"ticket"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Ticket    domain.Ticket       `json:"ticket"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketForwardedPayload payload.
type TicketForwardedPayload struct {
	Ticket          domain.Ticket `json:"ticket"`
	PreviousHandler *string       `json:"previous_handler,omitempty"`
	NewHandler      string        `json:"new_handler"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	Ticket domain.Ticket `json:"ticket"`
	Fields []string      `json:"fields"`
}

// TicketBreachedPayload payload.
type TicketBreachedPayload struct {
	Ticket       domain.Ticket `json:"ticket"`
	ElapsedHours float64       `json:"elapsed_hours"`
}
