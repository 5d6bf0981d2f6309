package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/events"
	"ridehail/internal/observability"
)

// Notifier publishes domain events to realtime subscribers and, when
// configured, to an external event sink.
type Notifier struct {
	hub    *Hub
	relay  *RedisRelay
	sink   events.Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewNotifier creates a Notifier delivering through hub. relay and sink
// may be nil.
func NewNotifier(hub *Hub, relay *RedisRelay, sink events.Sink, logger *zap.Logger) *Notifier {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Notifier{hub: hub, relay: relay, sink: sink, logger: logger, now: time.Now}
}

// Publish delivers event to target. Delivery is best-effort and
// at-most-once; an error means the event could not be handed to the
// delivery path at all. Sink failures are logged only.
func (n *Notifier) Publish(ctx context.Context, event domain.Event, target Target) error {
	env, err := events.NewEnvelope(event, n.now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	var deliverErr error
	if n.relay != nil {
		deliverErr = n.relay.Publish(ctx, target, string(env.Type), payload)
	} else {
		n.hub.Deliver(target, string(env.Type), payload)
	}

	if err := n.sink.Publish(ctx, env); err != nil {
		observability.EventSinkFailures.WithLabelValues(fmt.Sprintf("%T", n.sink)).Inc()
		n.logger.Warn("event sink publish failed",
			zap.String("event_type", string(env.Type)),
			zap.String("key", env.Key),
			zap.Error(err),
		)
	}

	return deliverErr
}
