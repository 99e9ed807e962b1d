package eventing

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisBridge mirrors bus envelopes over a Redis channel so that every
// gateway instance behind a shared store fans out to its own local
// rooms. Envelopes carry the origin instance id; a bridge never
// re-forwards an envelope it did not originate.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	bus        *Bus
	instanceID string
	logger     *zap.Logger
}

// NewRedisBridge constructs a bridge and subscribes it to the bus.
func NewRedisBridge(client *redis.Client, channel string, bus *Bus, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	bridge := &RedisBridge{
		client:     client,
		channel:    channel,
		bus:        bus,
		instanceID: NewEventID(),
		logger:     logger,
	}
	bus.Subscribe(bridge.forward)
	return bridge
}

// forward publishes locally-originated envelopes to the Redis channel.
func (b *RedisBridge) forward(ctx context.Context, env Envelope) {
	if b == nil || b.client == nil {
		return
	}
	if env.Origin != "" {
		// Already travelled the wire once.
		return
	}
	env.Origin = b.instanceID
	payload, err := json.Marshal(env)
	if err != nil {
		b.logger.Error("bridge encode failed", zap.String("event_id", env.EventID), zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Error("bridge publish failed", zap.String("event_id", env.EventID), zap.Error(err))
	}
}

// Run consumes remote envelopes until the context is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	if b == nil || b.client == nil || b.bus == nil {
		return nil
	}
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("bridge decode failed", zap.Error(err))
				continue
			}
			if env.Origin == b.instanceID {
				continue
			}
			b.bus.Publish(ctx, env)
		}
	}
}
