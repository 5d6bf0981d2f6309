// Package realtime delivers events to connected subscribers.
package realtime

import (
	"sync"

	"ridehail/internal/domain"
	"ridehail/internal/observability"
)

// Subscriber is one connected party. Messages are queued on a bounded
// buffer drained by the transport.
type Subscriber struct {
	ID     string
	Caller domain.Caller
	send   chan []byte
}

// NewSubscriber creates a subscriber with the given buffer size.
func NewSubscriber(id string, caller domain.Caller, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 1
	}
	return &Subscriber{ID: id, Caller: caller, send: make(chan []byte, buffer)}
}

// Messages returns the subscriber's outbound queue. It is closed on Leave.
func (s *Subscriber) Messages() <-chan []byte { return s.send }

// Hub is the subscription registry: subscriber id -> set of channels.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	memberships map[string]map[string]struct{} // subscriber id -> channels
	channels    map[string]map[string]*Subscriber
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		memberships: make(map[string]map[string]struct{}),
		channels:    make(map[string]map[string]*Subscriber),
	}
}

// Join registers a subscriber and joins it to the broadcast channel and
// the channels of its verified identity.
func (h *Hub) Join(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub.ID]; ok {
		return
	}
	h.subscribers[sub.ID] = sub
	h.memberships[sub.ID] = make(map[string]struct{})
	observability.RealtimeSubscribers.Inc()

	h.joinLocked(sub, BroadcastChannel)
	h.joinLocked(sub, UserChannel(sub.Caller.ID))
	h.joinLocked(sub, RoleChannel(sub.Caller.Role))
}

// JoinChannel adds a registered subscriber to a channel. It reports false
// when the subscriber is unknown.
func (h *Hub) JoinChannel(subscriberID, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subscribers[subscriberID]
	if !ok {
		return false
	}
	h.joinLocked(sub, channel)
	return true
}

// LeaveChannel removes a subscriber from one channel.
func (h *Hub) LeaveChannel(subscriberID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(subscriberID, channel)
}

// Leave removes a subscriber from every channel and closes its queue.
func (h *Hub) Leave(subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subscribers[subscriberID]
	if !ok {
		return
	}
	for channel := range h.memberships[subscriberID] {
		h.leaveLocked(subscriberID, channel)
	}
	delete(h.memberships, subscriberID)
	delete(h.subscribers, subscriberID)
	close(sub.send)
	observability.RealtimeSubscribers.Dec()
}

// Channels returns the channels a subscriber belongs to.
func (h *Hub) Channels(subscriberID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.memberships[subscriberID]))
	for channel := range h.memberships[subscriberID] {
		out = append(out, channel)
	}
	return out
}

// Deliver queues payload to every subscriber of the target channels, once
// per subscriber. Full queues drop the message. It returns the number of
// subscribers the message was queued for.
func (h *Hub) Deliver(target Target, eventType string, payload []byte) int {
	h.mu.RLock()
	recipients := make(map[string]*Subscriber)
	for _, channel := range target.Channels {
		for id, sub := range h.channels[channel] {
			recipients[id] = sub
		}
	}

	delivered := 0
	for _, sub := range recipients {
		select {
		case sub.send <- payload:
			delivered++
		default:
			observability.RealtimeDropped.WithLabelValues(eventType).Inc()
		}
	}
	h.mu.RUnlock()

	observability.RealtimeDelivered.WithLabelValues(eventType).Add(float64(delivered))
	return delivered
}

func (h *Hub) joinLocked(sub *Subscriber, channel string) {
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[string]*Subscriber)
		h.channels[channel] = members
	}
	members[sub.ID] = sub
	h.memberships[sub.ID][channel] = struct{}{}
}

func (h *Hub) leaveLocked(subscriberID, channel string) {
	if members, ok := h.channels[channel]; ok {
		delete(members, subscriberID)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	delete(h.memberships[subscriberID], channel)
}
