package domain

import "time"

// DriverStatus represents the current status of a driver.
type DriverStatus string

const (
	DriverStatusOnline  DriverStatus = "ONLINE"
	DriverStatusOffline DriverStatus = "OFFLINE"
	DriverStatusOnTrip  DriverStatus = "ON_TRIP"
)

// Valid reports whether s is a known driver status.
func (s DriverStatus) Valid() bool {
	switch s {
	case DriverStatusOnline, DriverStatusOffline, DriverStatusOnTrip:
		return true
	}
	return false
}

// Driver represents a driver in the registry.
type Driver struct {
	ID        string
	Name      string
	VehicleID string // optional
	Status    DriverStatus
	CreatedAt time.Time
}

// DriverStats aggregates a driver's ride history.
type DriverStats struct {
	DriverID       string  `json:"driver_id"`
	TotalRides     int     `json:"total_rides"`
	CompletedRides int     `json:"completed_rides"`
	CancelledRides int     `json:"cancelled_rides"`
	ActiveRides    int     `json:"active_rides"`
	Earnings       float64 `json:"earnings"`
}
