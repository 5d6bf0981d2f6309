package app

import (
	"fmt"

	"ridehail/internal/config"
	"ridehail/internal/events"
)

// NewEventSink builds the sink selected by EVENTS_SINK.
func NewEventSink(cfg config.EventsConfig) (events.Sink, error) {
	switch cfg.Sink {
	case config.SinkNone, "":
		return events.NopSink{}, nil
	case config.SinkKafka:
		return events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.SinkAMQP:
		sink, err := events.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown event sink %q", cfg.Sink)
	}
}
