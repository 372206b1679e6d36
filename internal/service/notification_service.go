package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/notify"
	"github.com/spec-kit/ticket-engine/internal/observability"
)

// NotificationService fans lifecycle events out to the realtime broadcast
// channel and the in-process metrics. Broadcast failures are logged only;
// the UI refresh stream is fire-and-forget.
type NotificationService struct {
	broadcaster notify.Broadcaster
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(broadcaster notify.Broadcaster, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
	}
}

// Register subscribes the service to every lifecycle event type.
func (s *NotificationService) Register(dispatcher events.Dispatcher) {
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
		dispatcher.Subscribe(eventType, s.Handle)
	}
}

// Handle processes one event. Exposed so a background worker can drain
// events off the request path.
func (s *NotificationService) Handle(ctx context.Context, event events.Event) error {
	s.metrics.RecordTicketEvent(event.TenantID, string(event.Type))
	if closed, ok := event.Payload.(events.TicketClosedPayload); ok {
		s.metrics.RecordHandlingTime(time.Duration(closed.HandlingSeconds) * time.Second)
	}
	if err := s.broadcaster.Broadcast(ctx, event); err != nil {
		s.logger.Warn("realtime broadcast failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
	return nil
}
