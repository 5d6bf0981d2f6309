package service

import (
	"context"

	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/realtime"
)

// Notifier delivers domain events to connected clients.
// This interface allows for testing with recording implementations.
type Notifier interface {
	Publish(ctx context.Context, event domain.Event, target realtime.Target) error
}

// Ensure realtime.Notifier implements Notifier.
var _ Notifier = (*realtime.Notifier)(nil)

// notify publishes event and logs a failure. Notifications never fail the
// operation that produced them.
func notify(ctx context.Context, n Notifier, logger *zap.Logger, event domain.Event, target realtime.Target) {
	if n == nil {
		return
	}
	if err := n.Publish(ctx, event, target); err != nil {
		logger.Warn("notification failed",
			zap.String("event_type", string(event.Type())),
			zap.String("key", event.Key()),
			zap.Error(err),
		)
	}
}
