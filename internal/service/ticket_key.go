package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sclint/support-desk/internal/clock"
	"github.com/sclint/support-desk/internal/domain"
	"github.com/sclint/support-desk/internal/repository"
	apperrors "github.com/sclint/support-desk/pkg/util/errorutil"
)

// DefaultTicketKeyPrefix prefixes every human-facing ticket key.
const DefaultTicketKeyPrefix = "SCLINT"

// maxKeyAttempts bounds the collision walk. Each step moves past a key that is
// already registered, so the walk only ends early on a storage error.
const maxKeyAttempts = 10000

// TicketKeyGenerator issues keys of the form PREFIX + zero-padded sequence +
// creator initial, e.g. SCLINT001A. Every issued key is reserved in a
// registry that is never pruned, so keys stay unique after deletions.
type TicketKeyGenerator struct {
	tickets repository.TicketRepository
	clock   clock.Clock
	prefix  string
}

// NewTicketKeyGenerator builds a generator. An empty prefix falls back to DefaultTicketKeyPrefix.
func NewTicketKeyGenerator(tickets repository.TicketRepository, clk clock.Clock, prefix string) *TicketKeyGenerator {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultTicketKeyPrefix
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &TicketKeyGenerator{tickets: tickets, clock: clk, prefix: strings.ToUpper(strings.TrimSpace(prefix))}
}

// Generate reserves and returns a fresh key for a creator named firstName.
func (g *TicketKeyGenerator) Generate(ctx context.Context, firstName string) (string, error) {
	initial := domain.Initial(firstName)
	if initial == 0 {
		return "", apperrors.NewValidationError("creator first name is required", map[string]any{"field": "first_name"})
	}

	count, err := g.tickets.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("count tickets: %w", err)
	}

	for seq := count + 1; seq <= count+maxKeyAttempts; seq++ {
		candidate := FormatTicketKey(g.prefix, seq, initial)
		reserved, err := g.tickets.ReserveKey(ctx, candidate, g.clock.Now())
		if err != nil {
			return "", fmt.Errorf("reserve ticket key %s: %w", candidate, err)
		}
		if reserved {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free ticket key after %d attempts", maxKeyAttempts)
}

// FormatTicketKey renders a key. Sequences above 999 simply widen.
func FormatTicketKey(prefix string, seq int, initial rune) string {
	return fmt.Sprintf("%s%03d%c", prefix, seq, initial)
}
