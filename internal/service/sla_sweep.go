package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sclint/support-desk/internal/domain"
	"github.com/sclint/support-desk/internal/events"
)

// SweepOutcome is what the sweep did to a single ticket.
type SweepOutcome string

const (
	SweepSkipped      SweepOutcome = "skipped"
	SweepUnchanged    SweepOutcome = "unchanged"
	SweepReclassified SweepOutcome = "reclassified"
	SweepBreached     SweepOutcome = "breached"
)

// SweepReport summarises one SLA sweep run.
type SweepReport struct {
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Scanned      int           `json:"scanned"`
	Reclassified int           `json:"reclassified"`
	Breached     int           `json:"breached"`
	Failed       int           `json:"failed"`
}

// SweepReclassify ages a single Pending or Open ticket. Past the breach
// threshold it moves to Breached and keeps its last persisted priority;
// otherwise its priority is recomputed from business hours. A ticket that
// breached before and was reopened is left alone, so it is never breached
// or announced twice.
func (s *TicketService) SweepReclassify(ctx context.Context, ticket *domain.Ticket) (SweepOutcome, error) {
	if !ticket.Sweepable() {
		return SweepSkipped, nil
	}

	now := s.clock.Now()
	age := now.Sub(ticket.CreatedAt)

	if age >= s.breachAfter {
		moved, err := s.tickets.MarkBreached(ctx, ticket.ID, now)
		if err != nil {
			return "", fmt.Errorf("mark ticket %s breached: %w", ticket.ID, err)
		}
		if !moved {
			return SweepSkipped, nil
		}

		oldStatus := ticket.Status
		ticket.Status = domain.TicketStatusBreached
		ticket.UpdatedAt = now
		ticket.BreachedAt = &now

		s.recordHistory(ctx, ticket.ID, events.SystemActor, domain.ChangeTypeBreach,
			map[string]any{"status": oldStatus},
			map[string]any{"status": domain.TicketStatusBreached, "elapsed_hours": age.Hours()})
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketBreached,
			TicketID: ticket.ID,
			Actor:    events.SystemActor,
			Payload:  events.TicketBreachedPayload{Ticket: *ticket, ElapsedHours: age.Hours()},
		})
		return SweepBreached, nil
	}

	priority := s.classifier.ClassifyAt(ticket.CreatedAt, now)
	if priority == ticket.Priority {
		return SweepUnchanged, nil
	}

	changed, err := s.tickets.UpdatePriority(ctx, ticket.ID, priority, now)
	if err != nil {
		return "", fmt.Errorf("update priority of ticket %s: %w", ticket.ID, err)
	}
	if !changed {
		return SweepUnchanged, nil
	}

	oldPriority := ticket.Priority
	ticket.Priority = priority
	ticket.UpdatedAt = now
	s.recordHistory(ctx, ticket.ID, events.SystemActor, domain.ChangeTypePriority,
		map[string]any{"priority": oldPriority},
		map[string]any{"priority": priority})
	return SweepReclassified, nil
}

// RunSLASweep ages every Pending and Open ticket that never breached. A failure on one ticket is
// logged and counted and the sweep moves on.
func (s *TicketService) RunSLASweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{StartedAt: s.clock.Now()}
	start := time.Now()

	tickets, err := s.tickets.ListSweepable(ctx)
	if err != nil {
		report.Duration = time.Since(start)
		return report, fmt.Errorf("list sweepable tickets: %w", err)
	}

	for i := range tickets {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		ticket := &tickets[i]
		report.Scanned++

		outcome, err := s.SweepReclassify(ctx, ticket)
		if err != nil {
			report.Failed++
			s.logger.Error("sla sweep failed for ticket",
				zap.String("ticket_id", ticket.ID),
				zap.String("key", ticket.Key),
				zap.Error(err))
			continue
		}
		switch outcome {
		case SweepReclassified:
			report.Reclassified++
		case SweepBreached:
			report.Breached++
		}
	}

	report.Duration = time.Since(start)
	s.logger.Info("sla sweep completed",
		zap.Int("scanned", report.Scanned),
		zap.Int("reclassified", report.Reclassified),
		zap.Int("breached", report.Breached),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	return report, nil
}
