package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/events"
)

func passenger(id string) domain.Caller { return domain.Caller{ID: id, Role: domain.RolePassenger} }
func driver(id string) domain.Caller    { return domain.Caller{ID: id, Role: domain.RoleDriver} }

func drain(sub *Subscriber) [][]byte {
	var out [][]byte
	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_JoinBindsIdentityChannels(t *testing.T) {
	hub := NewHub()
	sub := NewSubscriber("s1", driver("d1"), 4)
	hub.Join(sub)

	assert.ElementsMatch(t, []string{BroadcastChannel, "user:d1", "role:DRIVER"}, hub.Channels("s1"))
}

func TestHub_DeliverToTargets(t *testing.T) {
	hub := NewHub()
	p1 := NewSubscriber("s1", passenger("p1"), 4)
	d1 := NewSubscriber("s2", driver("d1"), 4)
	other := NewSubscriber("s3", passenger("p2"), 4)
	hub.Join(p1)
	hub.Join(d1)
	hub.Join(other)

	assert.Equal(t, 2, hub.Deliver(To("p1", "d1"), "ride.assigned", []byte("a")))
	assert.Len(t, drain(p1), 1)
	assert.Len(t, drain(d1), 1)
	assert.Empty(t, drain(other))

	assert.Equal(t, 3, hub.Deliver(Broadcast(), "ride.requested", []byte("b")))
	assert.Equal(t, 1, hub.Deliver(Target{Channels: []string{RoleChannel(domain.RoleDriver)}}, "x", []byte("c")))
}

func TestHub_DeliverOncePerSubscriber(t *testing.T) {
	hub := NewHub()
	sub := NewSubscriber("s1", passenger("p1"), 4)
	hub.Join(sub)

	hub.Deliver(Target{Channels: []string{BroadcastChannel, "user:p1", "role:PASSENGER"}}, "x", []byte("m"))
	assert.Len(t, drain(sub), 1)
}

func TestHub_FullBufferDrops(t *testing.T) {
	hub := NewHub()
	sub := NewSubscriber("s1", passenger("p1"), 1)
	hub.Join(sub)

	assert.Equal(t, 1, hub.Deliver(To("p1"), "x", []byte("1")))
	assert.Equal(t, 0, hub.Deliver(To("p1"), "x", []byte("2")))
	assert.Equal(t, [][]byte{[]byte("1")}, drain(sub))
}

func TestHub_LeaveAndChannels(t *testing.T) {
	hub := NewHub()
	sub := NewSubscriber("s1", passenger("p1"), 1)
	hub.Join(sub)

	assert.True(t, hub.JoinChannel("s1", "ops"))
	assert.False(t, hub.JoinChannel("nope", "ops"))
	assert.Equal(t, 1, hub.Deliver(Target{Channels: []string{"ops"}}, "x", []byte("1")))
	drain(sub)

	hub.LeaveChannel("s1", "ops")
	assert.Equal(t, 0, hub.Deliver(Target{Channels: []string{"ops"}}, "x", []byte("1")))

	hub.Leave("s1")
	_, open := <-sub.Messages()
	assert.False(t, open)
	assert.Empty(t, hub.Channels("s1"))
	assert.Equal(t, 0, hub.Deliver(Broadcast(), "x", []byte("1")))

	hub.Leave("s1")
}

type recordingSink struct {
	envs []events.Envelope
	err  error
}

func (s *recordingSink) Publish(_ context.Context, env events.Envelope) error {
	s.envs = append(s.envs, env)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func TestNotifier_PublishesEnvelope(t *testing.T) {
	hub := NewHub()
	sub := NewSubscriber("s1", passenger("p1"), 4)
	hub.Join(sub)
	sink := &recordingSink{err: errors.New("broker down")}
	n := NewNotifier(hub, nil, sink, zap.NewNop())

	err := n.Publish(context.Background(), domain.RideStarted{RideID: "r1", PassengerID: "p1", DriverID: "d1"}, To("p1", "d1"))
	require.NoError(t, err, "sink failures are not delivery failures")

	msgs := drain(sub)
	require.Len(t, msgs, 1)
	var env events.Envelope
	require.NoError(t, json.Unmarshal(msgs[0], &env))
	assert.Equal(t, domain.EventRideStarted, env.Type)

	decoded, err := events.Decode(env)
	require.NoError(t, err)
	assert.Equal(t, "r1", decoded.(domain.RideStarted).RideID)

	require.Len(t, sink.envs, 1)
}

func TestRedisRelay_FansOutToLocalHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub()
	sub := NewSubscriber("s1", passenger("p1"), 4)
	hub.Join(sub)
	relay := NewRedisRelay(client, hub, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	go func() { _ = relay.Run(ctx, ready) }()
	<-ready

	n := NewNotifier(hub, relay, nil, zap.NewNop())
	require.NoError(t, n.Publish(ctx, domain.RideCancelled{RideID: "r1", PassengerID: "p1"}, To("p1")))

	select {
	case msg := <-sub.Messages():
		var env events.Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, domain.EventRideCancelled, env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("relayed message not delivered")
	}
}
