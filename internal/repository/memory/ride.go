package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// RideRepository is an in-memory repository.RideRepository.
type RideRepository struct {
	view *view
}

// Create persists a new ride.
func (r *RideRepository) Create(_ context.Context, ride *domain.Ride) (err error) {
	r.view.write(func() {
		if _, ok := r.view.ride(ride.ID); ok {
			err = repository.ErrDuplicate
			return
		}
		r.view.putRide(cloneRide(ride))
	})
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(_ context.Context, id string) (ride *domain.Ride, err error) {
	r.view.read(func() {
		found, ok := r.view.ride(id)
		if !ok {
			err = repository.ErrNotFound
			return
		}
		ride = cloneRide(found)
	})
	return ride, err
}

// ListByParticipant returns one page of a user's rides, newest first.
func (r *RideRepository) ListByParticipant(_ context.Context, userID string, offset, limit int) ([]*domain.Ride, int, error) {
	rides := r.filter(func(ride *domain.Ride) bool { return ride.IsParticipant(userID) })
	sortNewestFirst(rides)

	total := len(rides)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return rides[offset:end], total, nil
}

// ListActive returns non-terminal rides, newest first.
func (r *RideRepository) ListActive(_ context.Context, userID string) ([]*domain.Ride, error) {
	rides := r.filter(func(ride *domain.Ride) bool {
		if !slices.Contains(domain.ActiveRideStatuses, ride.Status) {
			return false
		}
		return userID == "" || ride.IsParticipant(userID)
	})
	sortNewestFirst(rides)
	return rides, nil
}

// ListByStatus returns up to limit rides in the given status, oldest first.
func (r *RideRepository) ListByStatus(_ context.Context, status domain.RideStatus, limit int) ([]*domain.Ride, error) {
	rides := r.filter(func(ride *domain.Ride) bool { return ride.Status == status })
	sort.Slice(rides, func(i, j int) bool {
		if !rides[i].CreatedAt.Equal(rides[j].CreatedAt) {
			return rides[i].CreatedAt.Before(rides[j].CreatedAt)
		}
		return rides[i].ID < rides[j].ID
	})
	if limit > 0 && len(rides) > limit {
		rides = rides[:limit]
	}
	return rides, nil
}

// AssignDriver sets the driver on a REQUESTED ride that has none.
func (r *RideRepository) AssignDriver(_ context.Context, rideID, driverID string) error {
	return r.update(rideID, func(ride *domain.Ride) bool {
		if ride.Status != domain.RideStatusRequested || ride.HasDriver() {
			return false
		}
		ride.DriverID = driverID
		ride.Status = domain.RideStatusAssigned
		return true
	})
}

// Start moves ASSIGNED to STARTED.
func (r *RideRepository) Start(_ context.Context, rideID string, at time.Time) error {
	return r.update(rideID, func(ride *domain.Ride) bool {
		if ride.Status != domain.RideStatusAssigned {
			return false
		}
		ride.Status = domain.RideStatusStarted
		ride.StartedAt = at
		return true
	})
}

// Complete moves STARTED to COMPLETED and stores the fare.
func (r *RideRepository) Complete(_ context.Context, rideID string, price, surgeMultiplier float64, at time.Time) error {
	return r.update(rideID, func(ride *domain.Ride) bool {
		if ride.Status != domain.RideStatusStarted || ride.Price != nil {
			return false
		}
		ride.Status = domain.RideStatusCompleted
		ride.Price = &price
		ride.SurgeMultiplier = surgeMultiplier
		ride.CompletedAt = at
		return true
	})
}

// Cancel moves the ride from a non-terminal status to CANCELLED.
func (r *RideRepository) Cancel(_ context.Context, rideID string, from domain.RideStatus, cancelledBy, reason string, at time.Time) error {
	return r.update(rideID, func(ride *domain.Ride) bool {
		if ride.Status != from || from.IsTerminal() {
			return false
		}
		ride.Status = domain.RideStatusCancelled
		ride.CancelledAt = at
		ride.CancelledBy = cancelledBy
		ride.CancelReason = reason
		return true
	})
}

// DriverStats aggregates the rides of a driver.
func (r *RideRepository) DriverStats(_ context.Context, driverID string) (*domain.DriverStats, error) {
	stats := &domain.DriverStats{DriverID: driverID}
	for _, ride := range r.filter(func(ride *domain.Ride) bool { return ride.DriverID == driverID }) {
		stats.TotalRides++
		switch ride.Status {
		case domain.RideStatusCompleted:
			stats.CompletedRides++
			if ride.Price != nil {
				stats.Earnings += *ride.Price
			}
		case domain.RideStatusCancelled:
			stats.CancelledRides++
		case domain.RideStatusAssigned, domain.RideStatusStarted:
			stats.ActiveRides++
		}
	}
	return stats, nil
}

// update applies mutate to a copy of the ride and stores it when mutate
// reports that its precondition held.
func (r *RideRepository) update(rideID string, mutate func(*domain.Ride) bool) (err error) {
	r.view.write(func() {
		current, ok := r.view.ride(rideID)
		if !ok {
			err = repository.ErrStale
			return
		}
		updated := cloneRide(current)
		if !mutate(updated) {
			err = repository.ErrStale
			return
		}
		r.view.putRide(updated)
	})
	return err
}

func (r *RideRepository) filter(keep func(*domain.Ride) bool) []*domain.Ride {
	var out []*domain.Ride
	r.view.read(func() {
		for _, ride := range r.view.allRides() {
			if keep(ride) {
				out = append(out, cloneRide(ride))
			}
		}
	})
	return out
}

func sortNewestFirst(rides []*domain.Ride) {
	sort.Slice(rides, func(i, j int) bool {
		if !rides[i].CreatedAt.Equal(rides[j].CreatedAt) {
			return rides[i].CreatedAt.After(rides[j].CreatedAt)
		}
		return rides[i].ID > rides[j].ID
	})
}

var _ repository.RideRepository = (*RideRepository)(nil)
