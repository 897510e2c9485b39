package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInMemoryDispatcherIsolatesHandlers(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())

	var calls []string
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		panic("handler exploded")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "third")
		return nil
	})
	d.Subscribe(EventTicketBreached, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "t1"}))
	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestAsyncDispatcherDelivers(t *testing.T) {
	d := NewAsyncDispatcher(zap.NewNop(), 8, 2)

	var mu sync.Mutex
	got := map[string]bool{}
	done := make(chan struct{}, 3)
	d.Subscribe(EventTicketUpdated, func(_ context.Context, e Event) error {
		mu.Lock()
		got[e.TicketID] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- d.Run(ctx) }()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketUpdated, TicketID: id}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}

	cancel()
	require.NoError(t, <-stopped)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, got)
}

func TestAsyncDispatcherDropsWhenFull(t *testing.T) {
	d := NewAsyncDispatcher(zap.NewNop(), 1, 1)

	// Nothing is draining, so the second publish overflows.
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "kept"}))
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "dropped"}))
	assert.Len(t, d.queue, 1)

	var delivered []string
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		delivered = append(delivered, e.TicketID)
		return nil
	})

	// A cancelled run drains the queue before returning.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	assert.Equal(t, []string{"kept"}, delivered)
}
