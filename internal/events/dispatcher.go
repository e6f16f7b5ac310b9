package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when the async queue cannot take more events.
var ErrQueueFull = errors.New("event queue full")

// ErrDispatcherClosed is returned when publishing after Close.
var ErrDispatcherClosed = errors.New("event dispatcher closed")

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

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	registry
}

// NewInMemoryDispatcher creates a dispatcher that runs handlers inline and
// returns their joined errors.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{registry: registry{listeners: make(map[EventType][]EventHandler)}}
}

// Publish synchronously invokes handlers for the given event.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, handler := range d.handlers(event.Type) {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncDispatcher buffers events in a bounded queue drained by worker
// goroutines. Publish never blocks.
type AsyncDispatcher struct {
	registry
	queue  chan Event
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewAsyncDispatcher creates a dispatcher with the given queue capacity.
func NewAsyncDispatcher(queueSize int, logger *zap.Logger) *AsyncDispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncDispatcher{
		registry: registry{listeners: make(map[EventType][]EventHandler)},
		queue:    make(chan Event, queueSize),
		logger:   logger,
	}
}

// Publish enqueues the event.
func (d *AsyncDispatcher) Publish(_ context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- event:
		return nil
	default:
		d.logger.Warn("dropping event, queue full", zap.String("event_type", string(event.Type)), zap.String("event_id", event.ID))
		return ErrQueueFull
	}
}

// Drain delivers queued events until ctx is done or the dispatcher is
// closed and empty.
func (d *AsyncDispatcher) Drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, event)
		}
	}
}

func (d *AsyncDispatcher) deliver(ctx context.Context, event Event) {
	for _, handler := range d.handlers(event.Type) {
		if err := handler(ctx, event); err != nil {
			d.logger.Error("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}
}

// Close stops accepting events. Already queued events are still drained.
func (d *AsyncDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}
