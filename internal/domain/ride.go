package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested RideStatus = "REQUESTED"
	RideStatusAssigned  RideStatus = "ASSIGNED"
	RideStatusStarted   RideStatus = "STARTED"
	RideStatusCompleted RideStatus = "COMPLETED"
	RideStatusCancelled RideStatus = "CANCELLED"
)

// rideTransitions lists the statuses reachable from each status.
var rideTransitions = map[RideStatus][]RideStatus{
	RideStatusRequested: {RideStatusAssigned, RideStatusCancelled},
	RideStatusAssigned:  {RideStatusStarted, RideStatusCancelled},
	RideStatusStarted:   {RideStatusCompleted, RideStatusCancelled},
	RideStatusCompleted: {},
	RideStatusCancelled: {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	for _, allowed := range rideTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s admits no further transition.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// ActiveRideStatuses are the non-terminal statuses.
var ActiveRideStatuses = []RideStatus{RideStatusRequested, RideStatusAssigned, RideStatusStarted}

// Ride represents a ride request and its lifecycle.
type Ride struct {
	ID              string
	PassengerID     string
	DriverID        string // empty until assigned
	Pickup          Coordinate
	Dropoff         *Coordinate
	Status          RideStatus
	Price           *float64 // set once, at COMPLETED
	SurgeMultiplier float64
	CreatedAt       time.Time
	StartedAt       time.Time
	CompletedAt     time.Time
	CancelledAt     time.Time
	CancelledBy     string
	CancelReason    string
}

// HasDriver reports whether a driver has been assigned.
func (r *Ride) HasDriver() bool {
	return r.DriverID != ""
}

// IsParticipant reports whether userID is the passenger or the assigned driver.
func (r *Ride) IsParticipant(userID string) bool {
	return userID != "" && (r.PassengerID == userID || r.DriverID == userID)
}
