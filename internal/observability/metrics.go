// Package observability holds the Prometheus collectors of the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ridehail"

var (
	RidesCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_created_total", Help: "Total number of rides created"})

	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride status transitions by target status"},
		[]string{"status"},
	)

	Assignments = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "assignments_total", Help: "Driver assignment attempts by outcome"},
		[]string{"outcome"},
	)

	MatchLatency       = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Time to match a ride against candidates"})
	BroadcastFallbacks = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "broadcast_fallbacks_total", Help: "Rides left unmatched and broadcast"})
	RetryQueueDepth    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "retry_queue_depth", Help: "Rides waiting for a matching retry"})
	RetryGiveUps       = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "retry_give_ups_total", Help: "Rides that exhausted matching retries"})

	LocationUpdates = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "location_updates_total", Help: "Accepted driver location updates"})

	RealtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "realtime_subscribers", Help: "Connected realtime subscribers"})

	RealtimeDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "realtime_delivered_total", Help: "Realtime messages queued to subscribers by event type"},
		[]string{"event"},
	)
	RealtimeDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "realtime_dropped_total", Help: "Realtime messages dropped because a subscriber buffer was full"},
		[]string{"event"},
	)
	EventSinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "event_sink_failures_total", Help: "Events the external sink failed to accept"},
		[]string{"sink"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rate_limited_total", Help: "Requests rejected by the rate limiter"})
)
