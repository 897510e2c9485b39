package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

type registry struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func newRegistry() registry {
	return registry{listeners: make(map[EventType][]EventHandler)}
}

// Subscribe registers a handler for the given event type.
func (r *registry) Subscribe(eventType EventType, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[eventType] = append(r.listeners[eventType], handler)
}

func (r *registry) handlers(eventType EventType) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventHandler{}, r.listeners[eventType]...)
}

// deliver runs every handler for event. A failing or panicking handler is
// logged and does not stop the others.
func deliver(ctx context.Context, logger *zap.Logger, handlers []EventHandler, event Event) {
	for _, handler := range handlers {
		if err := invoke(ctx, handler, event); err != nil {
			logger.Warn("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
}

func invoke(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	registry
	logger *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher that delivers on the caller's goroutine.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{registry: newRegistry(), logger: logger}
}

// Publish synchronously invokes handlers for the given event.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	deliver(ctx, d.logger, d.handlers(event.Type), event)
	return nil
}

// AsyncDispatcher queues events on a buffered channel drained by a fixed set
// of workers. Publishing never blocks; a full queue drops the event.
type AsyncDispatcher struct {
	registry
	logger  *zap.Logger
	queue   chan Event
	workers int
}

// NewAsyncDispatcher creates a dispatcher with the given queue size and worker count.
func NewAsyncDispatcher(logger *zap.Logger, queueSize, workers int) *AsyncDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	return &AsyncDispatcher{
		registry: newRegistry(),
		logger:   logger,
		queue:    make(chan Event, queueSize),
		workers:  workers,
	}
}

// Publish enqueues event for delivery.
func (d *AsyncDispatcher) Publish(_ context.Context, event Event) error {
	select {
	case d.queue <- event:
	default:
		d.logger.Warn("event queue full; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
	}
	return nil
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already queued and returns.
func (d *AsyncDispatcher) Run(ctx context.Context) error {
	deliverCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case event := <-d.queue:
					deliver(deliverCtx, d.logger, d.handlers(event.Type), event)
				case <-ctx.Done():
					d.drain(deliverCtx)
					return
				}
			}
		}()
	}
	d.logger.Info("event dispatcher started", zap.Int("workers", d.workers), zap.Int("queue_size", cap(d.queue)))
	wg.Wait()
	d.logger.Info("event dispatcher stopped")
	return nil
}

func (d *AsyncDispatcher) drain(ctx context.Context) {
	for {
		select {
		case event := <-d.queue:
			deliver(ctx, d.logger, d.handlers(event.Type), event)
		default:
			return
		}
	}
}
