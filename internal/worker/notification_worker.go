// Package worker moves event fan-out off the request path.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/events"
)

// EventSink consumes one drained event.
type EventSink func(ctx context.Context, event events.Event) error

// NotificationWorker buffers lifecycle events and drains them on a
// background goroutine. When the buffer is full the event is dropped with
// a warning; the realtime stream is best-effort by contract.
type NotificationWorker struct {
	queue  chan events.Event
	sink   EventSink
	logger *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewNotificationWorker constructs a worker with the given buffer size.
func NewNotificationWorker(sink EventSink, buffer int, logger *zap.Logger) *NotificationWorker {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		queue:  make(chan events.Event, buffer),
		sink:   sink,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Attach subscribes the worker's enqueue handler to every lifecycle event.
func (w *NotificationWorker) Attach(dispatcher events.Dispatcher) {
	types := []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketPriorityChanged,
		events.EventTicketAssigned,
		events.EventTicketTransferred,
		events.EventTicketClosed,
		events.EventTicketReopened,
		events.EventCSATRegistered,
	}
	for _, eventType := range types {
		dispatcher.Subscribe(eventType, w.enqueue)
	}
}

// Start launches the drain loop. The loop stops when ctx is cancelled or
// Stop is called.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		go w.run(ctx)
	})
}

// Stop terminates the drain loop. Buffered events are discarded.
func (w *NotificationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *NotificationWorker) enqueue(_ context.Context, event events.Event) error {
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("notification queue full; event dropped",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
	}
	return nil
}

func (w *NotificationWorker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event := <-w.queue:
			if err := w.sink(ctx, event); err != nil {
				w.logger.Warn("event sink failed",
					zap.String("event_type", string(event.Type)), zap.Error(err))
			}
		}
	}
}
