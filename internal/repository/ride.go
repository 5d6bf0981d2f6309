package repository

import (
	"context"
	"time"

	"ridehail/internal/domain"
)

// RideRepository defines the persistence operations for rides.
//
// Every lifecycle write is conditional on the status the caller expects and
// returns ErrStale when the row no longer matches.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// ListByParticipant returns one page of rides where userID is the
	// passenger or the driver, newest first, plus the total count.
	ListByParticipant(ctx context.Context, userID string, offset, limit int) ([]*domain.Ride, int, error)

	// ListActive returns non-terminal rides, newest first. An empty userID
	// returns every active ride.
	ListActive(ctx context.Context, userID string) ([]*domain.Ride, error)

	// ListByStatus returns up to limit rides in the given status, oldest first.
	ListByStatus(ctx context.Context, status domain.RideStatus, limit int) ([]*domain.Ride, error)

	// AssignDriver sets the driver and moves REQUESTED to ASSIGNED, only if
	// no driver is set yet.
	AssignDriver(ctx context.Context, rideID, driverID string) error

	// Start moves ASSIGNED to STARTED.
	Start(ctx context.Context, rideID string, at time.Time) error

	// Complete moves STARTED to COMPLETED and stores the fare.
	Complete(ctx context.Context, rideID string, price, surgeMultiplier float64, at time.Time) error

	// Cancel moves the ride from the given non-terminal status to CANCELLED.
	Cancel(ctx context.Context, rideID string, from domain.RideStatus, cancelledBy, reason string, at time.Time) error

	// DriverStats aggregates the rides of a driver.
	DriverStats(ctx context.Context, driverID string) (*domain.DriverStats, error)
}
