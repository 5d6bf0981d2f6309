package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const relayChannel = "realtime:events"

type relayMessage struct {
	Target  Target          `json:"target"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay fans events out through Redis pub/sub so that every instance
// delivers to its own locally connected subscribers.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	logger *zap.Logger
}

// NewRedisRelay creates a relay delivering into hub.
func NewRedisRelay(client *redis.Client, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, logger: logger}
}

// Publish sends a message to every instance, this one included.
func (r *RedisRelay) Publish(ctx context.Context, target Target, eventType string, payload []byte) error {
	data, err := json.Marshal(relayMessage{Target: target, Type: eventType, Payload: payload})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, relayChannel, data).Err(); err != nil {
		return fmt.Errorf("publish relay: %w", err)
	}
	return nil
}

// Run delivers relayed messages to the local hub until ctx is done.
// ready, if not nil, is closed once the subscription is confirmed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.client.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe relay: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.logger.Warn("dropping malformed relay message", zap.Error(err))
				continue
			}
			r.hub.Deliver(m.Target, m.Type, m.Payload)
		}
	}
}
