package events

import "context"

// Sink forwards events to a system outside the process.
type Sink interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, Envelope) error { return nil }
func (NopSink) Close() error                            { return nil }
