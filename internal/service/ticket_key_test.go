package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sclint/support-desk/internal/clock"
	"github.com/sclint/support-desk/internal/domain"
	apperrors "github.com/sclint/support-desk/pkg/util/errorutil"
)

func TestFormatTicketKey(t *testing.T) {
	assert.Equal(t, "SCLINT001A", FormatTicketKey("SCLINT", 1, 'A'))
	assert.Equal(t, "SCLINT042R", FormatTicketKey("SCLINT", 42, 'R'))
	assert.Equal(t, "SCLINT1000Z", FormatTicketKey("SCLINT", 1000, 'Z'))
}

func TestTicketKeyGeneratorUsesCountAndInitial(t *testing.T) {
	tickets := newMemTickets()
	gen := NewTicketKeyGenerator(tickets, clock.NewFake(monday), "")

	key, err := gen.Generate(context.Background(), "asha")
	require.NoError(t, err)
	assert.Equal(t, "SCLINT001A", key)

	tickets.put(domain.Ticket{Key: key})
	key, err = gen.Generate(context.Background(), "Ravi")
	require.NoError(t, err)
	assert.Equal(t, "SCLINT002R", key)
}

func TestTicketKeyGeneratorNeverReusesDeletedKeys(t *testing.T) {
	tickets := newMemTickets()
	gen := NewTicketKeyGenerator(tickets, clock.NewFake(monday), "sclint")

	first := tickets.put(domain.Ticket{Key: "SCLINT001A"})
	tickets.put(domain.Ticket{Key: "SCLINT002A"})
	require.NoError(t, tickets.Delete(context.Background(), first.ID))

	key, err := gen.Generate(context.Background(), "Asha")
	require.NoError(t, err)
	assert.Equal(t, "SCLINT003A", key)
}

func TestTicketKeyGeneratorUniqueUnderConcurrency(t *testing.T) {
	tickets := newMemTickets()
	gen := NewTicketKeyGenerator(tickets, clock.NewFake(monday), "SCLINT")

	const n = 50
	keys := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key, err := gen.Generate(context.Background(), "Asha")
			if err == nil {
				keys[i] = key
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, key := range keys {
		require.NotEmpty(t, key)
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestTicketKeyGeneratorErrors(t *testing.T) {
	tickets := newMemTickets()
	gen := NewTicketKeyGenerator(tickets, clock.NewFake(monday), "SCLINT")

	_, err := gen.Generate(context.Background(), "  ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	boom := errors.New("registry unavailable")
	tickets.failOn["reserve"] = boom
	_, err = gen.Generate(context.Background(), "Asha")
	assert.ErrorIs(t, err, boom)

	tickets.failOn["reserve"] = nil
	tickets.failOn["count"] = boom
	_, err = gen.Generate(context.Background(), "Asha")
	assert.ErrorIs(t, err, boom)
}
