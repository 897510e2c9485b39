package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending  TicketStatus = "Pending"
	TicketStatusOpen     TicketStatus = "Open"
	TicketStatusSolved   TicketStatus = "Solved"
	TicketStatusBreached TicketStatus = "Breached"
	TicketStatusClosed   TicketStatus = "Closed"
)

// TicketStatuses lists every status in display order.
var TicketStatuses = []TicketStatus{
	TicketStatusPending,
	TicketStatusOpen,
	TicketStatusSolved,
	TicketStatusBreached,
	TicketStatusClosed,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, known := range TicketStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusSolved || s == TicketStatusClosed
}

// Sweepable reports whether the SLA sweep still ages tickets in this status.
func (s TicketStatus) Sweepable() bool {
	return s == TicketStatusPending || s == TicketStatusOpen
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "Low"
	TicketPriorityMedium   TicketPriority = "Medium"
	TicketPriorityHigh     TicketPriority = "High"
	TicketPriorityCritical TicketPriority = "Critical"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID            string
	Key           string
	Title         string
	Description   string
	AttachmentURL *string
	Status        TicketStatus
	Priority      TicketPriority
	CreatedBy     string
	HandledBy     *string
	ForwardedTo   *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ResolvedAt    *time.Time

	// BreachedAt is stamped once, the first time the SLA sweep breaches the
	// ticket. It survives a reopen.
	BreachedAt *time.Time
}

// IsHandledBy reports whether userID is the current handler.
func (t *Ticket) IsHandledBy(userID string) bool {
	return t.HandledBy != nil && *t.HandledBy == userID
}

// Sweepable reports whether the SLA sweep may still age or breach the ticket.
// A ticket that breached once keeps its frozen priority even after a reopen.
func (t *Ticket) Sweepable() bool {
	return t.Status.Sweepable() && t.BreachedAt == nil
}

// TicketStats holds per-status counts.
type TicketStats struct {
	Total    int
	ByStatus map[TicketStatus]int
}
