package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/events"
)

// Broadcaster pushes lifecycle events to interested live consumers
// (agent dashboards, websocket bridges).
type Broadcaster interface {
	Broadcast(ctx context.Context, event events.Event) error
}

// NoopBroadcaster discards events.
type NoopBroadcaster struct{}

func (NoopBroadcaster) Broadcast(context.Context, events.Event) error { return nil }

type redisBroadcaster struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBroadcaster publishes events as JSON on a redis pub/sub channel.
func NewRedisBroadcaster(client *redis.Client, channel string, logger *zap.Logger) Broadcaster {
	if client == nil {
		logger.Warn("redis client not configured; realtime broadcast disabled")
		return NoopBroadcaster{}
	}
	return &redisBroadcaster{client: client, channel: channel, logger: logger}
}

func (b *redisBroadcaster) Broadcast(ctx context.Context, event events.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}
