package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/domain"
)

func TestDecode_EveryEventType(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	all := []domain.Event{
		domain.RideRequested{RideID: "r1", PassengerID: "p1", RequestedAt: at},
		domain.RideAssigned{RideID: "r1", PassengerID: "p1", DriverID: "d1", AssignedAt: at},
		domain.RideStarted{RideID: "r1", PassengerID: "p1", DriverID: "d1", StartedAt: at},
		domain.RideCompleted{RideID: "r1", PassengerID: "p1", DriverID: "d1", Price: 98.77, SurgeMultiplier: 1.4, CompletedAt: at},
		domain.RideCancelled{RideID: "r1", PassengerID: "p1", CancelledBy: "p1", CancelledAt: at},
		domain.DriverLocationUpdated{DriverID: "d1", Lat: 1, Lng: 2, Timestamp: at},
		domain.DriverStatusUpdated{DriverID: "d1", Status: domain.DriverStatusOnline, UpdatedAt: at},
	}

	for _, event := range all {
		t.Run(string(event.Type()), func(t *testing.T) {
			env, err := NewEnvelope(event, at)
			require.NoError(t, err)
			assert.Equal(t, event.Key(), env.Key)

			raw, err := json.Marshal(env)
			require.NoError(t, err)
			var back Envelope
			require.NoError(t, json.Unmarshal(raw, &back))

			decoded, err := Decode(back)
			require.NoError(t, err)
			assert.Equal(t, event, decoded)
		})
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode(Envelope{Type: "ride.teleported", Data: json.RawMessage(`{}`)})
	assert.Error(t, err)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSink_KeysByEntity(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}

	env, err := NewEnvelope(domain.RideStarted{RideID: "r9"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, sink.Publish(context.Background(), env))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "r9", string(w.msgs[0].Key))
	assert.Equal(t, "ride.started", string(w.msgs[0].Headers[0].Value))
}

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestNewKafkaSink_FlushesWithoutWaitingForBatch(t *testing.T) {
	sink := NewKafkaSink([]string{"localhost:9092"}, "ride-events")
	t.Cleanup(func() { _ = sink.Close() })

	writer, ok := sink.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "ride-events", writer.Topic)
	assert.Equal(t, kafkaBatchTimeout, writer.BatchTimeout)
	assert.True(t, writer.BatchTimeout > 0 && writer.BatchTimeout < time.Second)
}

func TestAMQPSink_RoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	sink := &AMQPSink{ch: ch, exchange: "ride_events"}

	env, err := NewEnvelope(domain.DriverStatusUpdated{DriverID: "d1", Status: domain.DriverStatusOffline}, time.Now())
	require.NoError(t, err)
	require.NoError(t, sink.Publish(context.Background(), env))

	assert.Equal(t, "ride_events", ch.exchange)
	assert.Equal(t, "driver.statusUpdated", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
}
