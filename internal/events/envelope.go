// Package events encodes domain events for the wire and ships them to
// external brokers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"ridehail/internal/domain"
)

// Envelope is the wire form shared by realtime subscribers and brokers.
type Envelope struct {
	Type       domain.EventType `json:"type"`
	Key        string           `json:"key"`
	OccurredAt time.Time        `json:"occurred_at"`
	Data       json.RawMessage  `json:"data"`
}

// NewEnvelope wraps an event.
func NewEnvelope(event domain.Event, at time.Time) (Envelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", event.Type(), err)
	}
	return Envelope{
		Type:       event.Type(),
		Key:        event.Key(),
		OccurredAt: at.UTC(),
		Data:       data,
	}, nil
}

// Decode returns the typed event carried by the envelope.
func Decode(env Envelope) (domain.Event, error) {
	switch env.Type {
	case domain.EventRideRequested:
		return decodeAs[domain.RideRequested](env)
	case domain.EventRideAssigned:
		return decodeAs[domain.RideAssigned](env)
	case domain.EventRideStarted:
		return decodeAs[domain.RideStarted](env)
	case domain.EventRideCompleted:
		return decodeAs[domain.RideCompleted](env)
	case domain.EventRideCancelled:
		return decodeAs[domain.RideCancelled](env)
	case domain.EventDriverLocationUpdated:
		return decodeAs[domain.DriverLocationUpdated](env)
	case domain.EventDriverStatusUpdated:
		return decodeAs[domain.DriverStatusUpdated](env)
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

func decodeAs[T domain.Event](env Envelope) (domain.Event, error) {
	var event T
	if err := json.Unmarshal(env.Data, &event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return event, nil
}
