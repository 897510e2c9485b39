package sla

import (
	"time"

	"github.com/sclint/support-desk/internal/clock"
	"github.com/sclint/support-desk/internal/domain"
)

// tier maps an upper bound of elapsed business hours (exclusive) to a priority.
type tier struct {
	below    float64
	priority domain.TicketPriority
}

var tiers = []tier{
	{below: 6, priority: domain.TicketPriorityLow},
	{below: 12, priority: domain.TicketPriorityMedium},
	{below: 18, priority: domain.TicketPriorityHigh},
}

// PriorityForHours maps elapsed business hours onto a priority tier.
func PriorityForHours(hours float64) domain.TicketPriority {
	for _, t := range tiers {
		if hours < t.below {
			return t.priority
		}
	}
	return domain.TicketPriorityCritical
}

// Classifier derives ticket priority from business-hours age.
type Classifier struct {
	calendar Calendar
	clock    clock.Clock
}

// NewClassifier builds a classifier over the calendar. A nil clock uses wall time.
func NewClassifier(calendar Calendar, clk clock.Clock) *Classifier {
	if clk == nil {
		clk = clock.Real()
	}
	return &Classifier{calendar: calendar, clock: clk}
}

// Classify returns the current priority of a ticket created at createdAt.
func (c *Classifier) Classify(createdAt time.Time) domain.TicketPriority {
	return c.ClassifyAt(createdAt, c.clock.Now())
}

// ClassifyAt returns the priority of a ticket created at createdAt as of now.
func (c *Classifier) ClassifyAt(createdAt, now time.Time) domain.TicketPriority {
	return PriorityForHours(c.calendar.ElapsedHours(createdAt, now))
}

// ElapsedHours exposes the business-hours age of createdAt as of the clock's now.
func (c *Classifier) ElapsedHours(createdAt time.Time) float64 {
	return c.calendar.ElapsedHours(createdAt, c.clock.Now())
}
