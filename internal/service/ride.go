package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/observability"
	"ridehail/internal/pricing"
	"ridehail/internal/realtime"
	"ridehail/internal/repository"
)

// Paging defaults for ride history.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// RidePage is one page of a caller's ride history.
type RidePage struct {
	Rides []*domain.Ride
	Total int
	Page  int
	Limit int
}

// TripMetrics are the tracked distance and duration reported at
// completion. Nil fields are estimated from pickup and dropoff.
type TripMetrics struct {
	DistanceKm  *float64
	TimeMinutes *float64
}

// RideService drives rides through their lifecycle after creation.
type RideService struct {
	rides    repository.RideRepository
	tx       repository.Transactor
	dispatch *DispatchService
	pricing  *pricing.Engine
	notifier Notifier
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time
}

// NewRideService creates a new RideService. Fares are priced at the hour
// of day in loc; nil means UTC.
func NewRideService(
	rides repository.RideRepository,
	tx repository.Transactor,
	dispatch *DispatchService,
	engine *pricing.Engine,
	notifier Notifier,
	logger *zap.Logger,
	loc *time.Location,
) *RideService {
	if loc == nil {
		loc = time.UTC
	}
	return &RideService{
		rides:    rides,
		tx:       tx,
		dispatch: dispatch,
		pricing:  engine,
		notifier: notifier,
		logger:   logger,
		location: loc,
		now:      time.Now,
	}
}

// CreateRide creates a ride for the calling passenger and tries to match it.
func (s *RideService) CreateRide(ctx context.Context, caller domain.Caller, pickup domain.Coordinate, dropoff *domain.Coordinate) (*domain.Ride, error) {
	return s.dispatch.CreateRide(ctx, caller, pickup, dropoff)
}

// GetRide returns a ride visible to the caller.
func (s *RideService) GetRide(ctx context.Context, caller domain.Caller, rideID string) (*domain.Ride, error) {
	ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !ride.IsParticipant(caller.ID) {
		return nil, ErrNotRideParticipant
	}
	return ride, nil
}

// ListRideHistory returns the caller's rides, newest first.
func (s *RideService) ListRideHistory(ctx context.Context, caller domain.Caller, page, limit int) (*RidePage, error) {
	if page < 1 || limit < 1 || limit > MaxLimit {
		return nil, ErrInvalidPage
	}

	rides, total, err := s.rides.ListByParticipant(ctx, caller.ID, (page-1)*limit, limit)
	if err != nil {
		return nil, infraError("list ride history", err)
	}
	return &RidePage{Rides: rides, Total: total, Page: page, Limit: limit}, nil
}

// ListActiveRides returns the caller's non-terminal rides. Admins see all.
func (s *RideService) ListActiveRides(ctx context.Context, caller domain.Caller) ([]*domain.Ride, error) {
	userID := caller.ID
	if caller.IsAdmin() {
		userID = ""
	}
	rides, err := s.rides.ListActive(ctx, userID)
	if err != nil {
		return nil, infraError("list active rides", err)
	}
	return rides, nil
}

// AssignDriver assigns a driver to a REQUESTED ride.
func (s *RideService) AssignDriver(ctx context.Context, caller domain.Caller, rideID, driverID string) (*domain.Ride, error) {
	return s.dispatch.AssignDriver(ctx, caller, rideID, driverID)
}

// AcceptRide lets the calling driver take a REQUESTED ride.
func (s *RideService) AcceptRide(ctx context.Context, caller domain.Caller, rideID string) (*domain.Ride, error) {
	if caller.Role != domain.RoleDriver {
		return nil, ErrRoleNotAllowed
	}
	return s.dispatch.AssignDriver(ctx, caller, rideID, caller.ID)
}

// StartRide moves an ASSIGNED ride to STARTED. Only the assigned driver
// may start it.
func (s *RideService) StartRide(ctx context.Context, caller domain.Caller, rideID string) (*domain.Ride, error) {
	ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := authorizeDriver(caller, ride); err != nil {
		return nil, err
	}

	if !ride.Status.CanTransitionTo(domain.RideStatusStarted) {
		if ride.Status == domain.RideStatusRequested {
			return nil, ErrRideNotAssigned
		}
		return nil, rideStatusConflict(ride.Status)
	}

	at := s.now().UTC()
	if err := s.rides.Start(ctx, rideID, at); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, s.staleConflict(ctx, rideID)
		}
		return nil, infraError("start ride", err)
	}

	ride.Status = domain.RideStatusStarted
	ride.StartedAt = at
	observability.RideTransitions.WithLabelValues(string(domain.RideStatusStarted)).Inc()

	notify(ctx, s.notifier, s.logger, domain.RideStarted{
		RideID:      ride.ID,
		PassengerID: ride.PassengerID,
		DriverID:    ride.DriverID,
		StartedAt:   at,
	}, realtime.To(ride.PassengerID, ride.DriverID))

	return ride, nil
}

// CompleteRide prices a STARTED ride and completes it. The driver is
// released to ONLINE in the same transaction.
func (s *RideService) CompleteRide(ctx context.Context, caller domain.Caller, rideID string, metrics TripMetrics) (*domain.Ride, pricing.Quote, error) {
	ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, pricing.Quote{}, err
	}
	if err := authorizeDriver(caller, ride); err != nil {
		return nil, pricing.Quote{}, err
	}

	if !ride.Status.CanTransitionTo(domain.RideStatusCompleted) {
		if !ride.Status.IsTerminal() {
			return nil, pricing.Quote{}, ErrRideNotStarted
		}
		return nil, pricing.Quote{}, rideStatusConflict(ride.Status)
	}

	distanceKm, timeMinutes, err := tripMetrics(ride, metrics)
	if err != nil {
		return nil, pricing.Quote{}, err
	}

	at := s.now()
	quote, err := s.pricing.Quote(ctx, pricing.Input{
		DistanceKm:  distanceKm,
		TimeMinutes: timeMinutes,
		Hour:        at.In(s.location).Hour(),
		Pickup:      &ride.Pickup,
	})
	if err != nil {
		return nil, pricing.Quote{}, fmt.Errorf("%w: %w", ErrInvalidTripMetrics, err)
	}

	at = at.UTC()
	err = s.tx.WithinTx(ctx, func(st repository.Stores) error {
		err := st.Rides.Complete(ctx, rideID, quote.FinalPrice, quote.SurgeMultiplier, at)
		if errors.Is(err, repository.ErrStale) {
			return ErrRideStateChanged
		}
		if err != nil {
			return infraError("complete ride", err)
		}
		return releaseDriver(ctx, st.Drivers, ride.DriverID)
	})
	if errors.Is(err, ErrRideStateChanged) {
		return nil, pricing.Quote{}, s.staleConflict(ctx, rideID)
	}
	if err != nil {
		return nil, pricing.Quote{}, txError("complete ride", err)
	}

	price := quote.FinalPrice
	ride.Status = domain.RideStatusCompleted
	ride.Price = &price
	ride.SurgeMultiplier = quote.SurgeMultiplier
	ride.CompletedAt = at
	observability.RideTransitions.WithLabelValues(string(domain.RideStatusCompleted)).Inc()

	s.logger.Info("ride completed",
		zap.String("ride_id", ride.ID),
		zap.String("driver_id", ride.DriverID),
		zap.Float64("price", price),
		zap.Float64("surge_multiplier", quote.SurgeMultiplier),
	)
	notify(ctx, s.notifier, s.logger, domain.RideCompleted{
		RideID:          ride.ID,
		PassengerID:     ride.PassengerID,
		DriverID:        ride.DriverID,
		Price:           price,
		SurgeMultiplier: quote.SurgeMultiplier,
		CompletedAt:     at,
	}, realtime.To(ride.PassengerID, ride.DriverID))

	return ride, quote, nil
}

// CancelRide cancels a non-terminal ride on behalf of its passenger, its
// assigned driver or an admin. An assigned driver goes back ONLINE.
func (s *RideService) CancelRide(ctx context.Context, caller domain.Caller, rideID, reason string) (*domain.Ride, error) {
	ride, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !ride.IsParticipant(caller.ID) {
		return nil, ErrNotRideParticipant
	}
	if !ride.Status.CanTransitionTo(domain.RideStatusCancelled) {
		return nil, rideStatusConflict(ride.Status)
	}

	at := s.now().UTC()
	err = s.tx.WithinTx(ctx, func(st repository.Stores) error {
		err := st.Rides.Cancel(ctx, rideID, ride.Status, caller.ID, reason, at)
		if errors.Is(err, repository.ErrStale) {
			return ErrRideStateChanged
		}
		if err != nil {
			return infraError("cancel ride", err)
		}
		if !ride.HasDriver() {
			return nil
		}
		return releaseDriver(ctx, st.Drivers, ride.DriverID)
	})
	if errors.Is(err, ErrRideStateChanged) {
		return nil, s.staleConflict(ctx, rideID)
	}
	if err != nil {
		return nil, txError("cancel ride", err)
	}

	ride.Status = domain.RideStatusCancelled
	ride.CancelledAt = at
	ride.CancelledBy = caller.ID
	ride.CancelReason = reason
	observability.RideTransitions.WithLabelValues(string(domain.RideStatusCancelled)).Inc()

	s.dispatch.dequeue(ctx, rideID)
	notify(ctx, s.notifier, s.logger, domain.RideCancelled{
		RideID:      ride.ID,
		PassengerID: ride.PassengerID,
		DriverID:    ride.DriverID,
		CancelledBy: caller.ID,
		Reason:      reason,
		CancelledAt: at,
	}, realtime.To(ride.PassengerID, ride.DriverID))

	return ride, nil
}

// EstimateFare quotes a trip from pickup to dropoff as if it finished at
// at. A zero at means now. Nothing is persisted.
func (s *RideService) EstimateFare(ctx context.Context, pickup, dropoff domain.Coordinate, at time.Time) (pricing.Quote, error) {
	if !pickup.Valid() {
		return pricing.Quote{}, ErrInvalidPickupLocation
	}
	if !dropoff.Valid() {
		return pricing.Quote{}, ErrInvalidDropoff
	}
	if at.IsZero() {
		at = s.now()
	}

	distanceKm, timeMinutes := pricing.EstimateTrip(pickup, dropoff)
	return s.pricing.Quote(ctx, pricing.Input{
		DistanceKm:  distanceKm,
		TimeMinutes: timeMinutes,
		Hour:        at.In(s.location).Hour(),
		Pickup:      &pickup,
	})
}

func (s *RideService) load(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	ride, err := s.rides.GetByID(ctx, rideID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, infraError("get ride", err)
	}
	return ride, nil
}

// staleConflict re-reads a ride whose conditional write lost a race and
// names the state it moved to.
func (s *RideService) staleConflict(ctx context.Context, rideID string) error {
	current, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return ErrRideStateChanged
	}
	return rideStatusConflict(current.Status)
}

func authorizeDriver(caller domain.Caller, ride *domain.Ride) error {
	if caller.Role != domain.RoleDriver {
		return ErrRoleNotAllowed
	}
	if !ride.HasDriver() {
		return ErrRideNotAssigned
	}
	if ride.DriverID != caller.ID {
		return ErrNotAssignedDriver
	}
	return nil
}

// releaseDriver moves an ON_TRIP driver back to ONLINE. A driver already
// moved elsewhere is left as is.
func releaseDriver(ctx context.Context, drivers repository.DriverRepository, driverID string) error {
	err := drivers.UpdateStatusIf(ctx, driverID, domain.DriverStatusOnTrip, domain.DriverStatusOnline)
	if err != nil && !errors.Is(err, repository.ErrStale) {
		return infraError("release driver", err)
	}
	return nil
}

func tripMetrics(ride *domain.Ride, m TripMetrics) (distanceKm, timeMinutes float64, err error) {
	switch {
	case m.DistanceKm != nil:
		distanceKm = *m.DistanceKm
		timeMinutes = distanceKm * pricing.MinutesPerKm
	case ride.Dropoff != nil:
		distanceKm, timeMinutes = pricing.EstimateTrip(ride.Pickup, *ride.Dropoff)
	default:
		return 0, 0, ErrMissingTripMetrics
	}
	if m.TimeMinutes != nil {
		timeMinutes = *m.TimeMinutes
	}
	if !(distanceKm >= 0) || !(timeMinutes >= 0) {
		return 0, 0, ErrInvalidTripMetrics
	}
	return distanceKm, timeMinutes, nil
}
