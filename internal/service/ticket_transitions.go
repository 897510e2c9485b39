package service

import "github.com/sclint/support-desk/internal/domain"

// allowedTransitions lists the statuses a user may move a ticket to. Breached
// is never a target here; only the SLA sweep enters it.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusPending:  {domain.TicketStatusOpen, domain.TicketStatusSolved, domain.TicketStatusClosed},
	domain.TicketStatusOpen:     {domain.TicketStatusPending, domain.TicketStatusSolved, domain.TicketStatusClosed},
	domain.TicketStatusBreached: {domain.TicketStatusOpen, domain.TicketStatusSolved, domain.TicketStatusClosed},
}

// CanTransition reports whether a user may move a ticket from one status to another.
func CanTransition(from, to domain.TicketStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
