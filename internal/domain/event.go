package domain

import "time"

// EventType names a realtime event on the wire.
type EventType string

const (
	EventRideRequested         EventType = "ride.requested"
	EventRideAssigned          EventType = "ride.assigned"
	EventRideStarted           EventType = "ride.started"
	EventRideCompleted         EventType = "ride.completed"
	EventRideCancelled         EventType = "ride.cancelled"
	EventDriverLocationUpdated EventType = "driver.locationUpdated"
	EventDriverStatusUpdated   EventType = "driver.statusUpdated"
)

// Event is the closed set of lifecycle, location and status events.
// Only types declared in this package implement it.
type Event interface {
	Type() EventType
	// Key identifies the entity the event is about (ride or driver id).
	Key() string
	isEvent()
}

// RideRequested is broadcast when a ride could not be matched immediately.
type RideRequested struct {
	RideID      string      `json:"ride_id"`
	PassengerID string      `json:"passenger_id"`
	Pickup      Coordinate  `json:"pickup"`
	Dropoff     *Coordinate `json:"dropoff,omitempty"`
	RequestedAt time.Time   `json:"requested_at"`
}

// RideAssigned is sent to the driver and passenger after assignment.
type RideAssigned struct {
	RideID      string     `json:"ride_id"`
	PassengerID string     `json:"passenger_id"`
	DriverID    string     `json:"driver_id"`
	Pickup      Coordinate `json:"pickup"`
	AssignedAt  time.Time  `json:"assigned_at"`
}

// RideStarted is sent to the driver and passenger when the trip begins.
type RideStarted struct {
	RideID      string    `json:"ride_id"`
	PassengerID string    `json:"passenger_id"`
	DriverID    string    `json:"driver_id"`
	StartedAt   time.Time `json:"started_at"`
}

// RideCompleted carries the final fare.
type RideCompleted struct {
	RideID          string    `json:"ride_id"`
	PassengerID     string    `json:"passenger_id"`
	DriverID        string    `json:"driver_id"`
	Price           float64   `json:"price"`
	SurgeMultiplier float64   `json:"surge_multiplier"`
	CompletedAt     time.Time `json:"completed_at"`
}

// RideCancelled is sent to the passenger and, if assigned, the driver.
type RideCancelled struct {
	RideID      string    `json:"ride_id"`
	PassengerID string    `json:"passenger_id"`
	DriverID    string    `json:"driver_id,omitempty"`
	CancelledBy string    `json:"cancelled_by"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// DriverLocationUpdated is broadcast on every accepted location report.
type DriverLocationUpdated struct {
	DriverID  string    `json:"driver_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// DriverStatusUpdated is broadcast when a driver toggles availability.
type DriverStatusUpdated struct {
	DriverID  string       `json:"driver_id"`
	Status    DriverStatus `json:"status"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (RideRequested) Type() EventType         { return EventRideRequested }
func (RideAssigned) Type() EventType          { return EventRideAssigned }
func (RideStarted) Type() EventType           { return EventRideStarted }
func (RideCompleted) Type() EventType         { return EventRideCompleted }
func (RideCancelled) Type() EventType         { return EventRideCancelled }
func (DriverLocationUpdated) Type() EventType { return EventDriverLocationUpdated }
func (DriverStatusUpdated) Type() EventType   { return EventDriverStatusUpdated }

func (e RideRequested) Key() string         { return e.RideID }
func (e RideAssigned) Key() string          { return e.RideID }
func (e RideStarted) Key() string           { return e.RideID }
func (e RideCompleted) Key() string         { return e.RideID }
func (e RideCancelled) Key() string         { return e.RideID }
func (e DriverLocationUpdated) Key() string { return e.DriverID }
func (e DriverStatusUpdated) Key() string   { return e.DriverID }

func (RideRequested) isEvent()         {}
func (RideAssigned) isEvent()          {}
func (RideStarted) isEvent()           {}
func (RideCompleted) isEvent()         {}
func (RideCancelled) isEvent()         {}
func (DriverLocationUpdated) isEvent() {}
func (DriverStatusUpdated) isEvent()   {}
