package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus   TicketChangeType = "STATUS_CHANGE"
	ChangeTypePriority TicketChangeType = "PRIORITY_CHANGE"
	ChangeTypeHandler  TicketChangeType = "HANDLER_CHANGE"
	ChangeTypeBreach   TicketChangeType = "SLA_BREACH"
	ChangeTypeEdit     TicketChangeType = "TICKET_EDIT"
)

// ChangeAuthorType indicates who made a change.
type ChangeAuthorType string

const (
	AuthorTypeUser   ChangeAuthorType = "USER"
	AuthorTypeStaff  ChangeAuthorType = "STAFF"
	AuthorTypeSystem ChangeAuthorType = "SYSTEM"
)

// AuthorTypeFor maps an actor role onto a history author type.
func AuthorTypeFor(role Role) ChangeAuthorType {
	if role == RoleSupport || role == RoleAdmin {
		return AuthorTypeStaff
	}
	return AuthorTypeUser
}

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType ChangeAuthorType
	ChangedByID   *string
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
