package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/observability"
	"ridehail/internal/realtime"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// DispatchConfig tunes matching and the retry schedule.
type DispatchConfig struct {
	DefaultRadiusKm float64       // radius used when matching a new ride
	NearbyRadiusKm  float64       // default radius of FindNearbyDrivers
	LocationMaxAge  time.Duration // older locations are ignored; 0 disables
	RetryBase       time.Duration
	RetryMax        time.Duration
	MaxAttempts     int
}

// DefaultDispatchConfig returns the default dispatch configuration.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		DefaultRadiusKm: 5.0,
		NearbyRadiusKm:  10.0,
		LocationMaxAge:  5 * time.Minute,
		RetryBase:       10 * time.Second,
		RetryMax:        2 * time.Minute,
		MaxAttempts:     10,
	}
}

// Candidate is a driver eligible for a pickup.
type Candidate struct {
	DriverID   string                `json:"driver_id"`
	DistanceKm float64               `json:"distance_km"`
	Location   domain.DriverLocation `json:"location"`
}

// DispatchService matches rides with drivers and owns ride assignment.
type DispatchService struct {
	rides     repository.RideRepository
	drivers   repository.DriverRepository
	tx        repository.Transactor
	locations redis.LocationStoreInterface
	queue     redis.RetryQueueInterface
	notifier  Notifier
	logger    *zap.Logger
	config    DispatchConfig
	now       func() time.Time
}

// NewDispatchService creates a new DispatchService. queue may be nil, in
// which case unmatched rides are only broadcast.
func NewDispatchService(
	rides repository.RideRepository,
	drivers repository.DriverRepository,
	tx repository.Transactor,
	locations redis.LocationStoreInterface,
	queue redis.RetryQueueInterface,
	notifier Notifier,
	logger *zap.Logger,
	config DispatchConfig,
) *DispatchService {
	return &DispatchService{
		rides:     rides,
		drivers:   drivers,
		tx:        tx,
		locations: locations,
		queue:     queue,
		notifier:  notifier,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// MatchNearestDriver ranks the ONLINE candidates within radiusKm of pickup
// by distance, ties broken by driver ID. Candidates without a fresh
// location are skipped. The result may be empty.
func (s *DispatchService) MatchNearestDriver(ctx context.Context, pickup domain.Coordinate, radiusKm float64, candidates []*domain.Driver) ([]Candidate, error) {
	if !(radiusKm > 0) || math.IsInf(radiusKm, 1) {
		return nil, ErrInvalidRadius
	}
	if !pickup.Valid() {
		return nil, ErrInvalidPickupLocation
	}

	ids := make([]string, 0, len(candidates))
	for _, d := range candidates {
		if d != nil && d.Status == domain.DriverStatusOnline {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		return []Candidate{}, nil
	}

	locations, err := s.locations.GetMany(ctx, ids)
	if err != nil {
		return nil, infraError("get driver locations", err)
	}

	now := s.now()
	matches := make([]Candidate, 0, len(locations))
	for _, id := range ids {
		loc, ok := locations[id]
		if !ok {
			continue
		}
		if s.config.LocationMaxAge > 0 && now.Sub(loc.Timestamp) > s.config.LocationMaxAge {
			continue
		}
		distance := geo.HaversineKm(pickup, loc.Coordinate())
		if distance <= radiusKm {
			matches = append(matches, Candidate{DriverID: id, DistanceKm: distance, Location: loc})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].DistanceKm != matches[j].DistanceKm {
			return matches[i].DistanceKm < matches[j].DistanceKm
		}
		return matches[i].DriverID < matches[j].DriverID
	})
	return matches, nil
}

// FindNearbyDrivers returns the ONLINE drivers around a point, nearest
// first. A zero radius uses the configured default.
func (s *DispatchService) FindNearbyDrivers(ctx context.Context, at domain.Coordinate, radiusKm float64) ([]Candidate, error) {
	if radiusKm == 0 {
		radiusKm = s.config.NearbyRadiusKm
	}
	if !at.Valid() {
		return nil, ErrInvalidLocation
	}
	online, err := s.drivers.ListByStatus(ctx, domain.DriverStatusOnline)
	if err != nil {
		return nil, infraError("list online drivers", err)
	}
	return s.MatchNearestDriver(ctx, at, radiusKm, online)
}

// CreateRide persists a REQUESTED ride for the calling passenger and tries
// to assign the nearest driver. The ride is returned even when matching
// fails; unmatched rides are broadcast and queued for retry.
func (s *DispatchService) CreateRide(ctx context.Context, caller domain.Caller, pickup domain.Coordinate, dropoff *domain.Coordinate) (*domain.Ride, error) {
	if caller.Role != domain.RolePassenger {
		return nil, ErrRoleNotAllowed
	}
	if !pickup.Valid() {
		return nil, ErrInvalidPickupLocation
	}
	if dropoff != nil && !dropoff.Valid() {
		return nil, ErrInvalidDropoff
	}

	ride := &domain.Ride{
		ID:              uuid.NewString(),
		PassengerID:     caller.ID,
		Pickup:          pickup,
		Dropoff:         dropoff,
		Status:          domain.RideStatusRequested,
		SurgeMultiplier: 1.0,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.rides.Create(ctx, ride); err != nil {
		return nil, infraError("create ride", err)
	}
	observability.RidesCreated.Inc()
	observability.RideTransitions.WithLabelValues(string(domain.RideStatusRequested)).Inc()

	log := s.logger.With(zap.String("ride_id", ride.ID))

	matched, outcome, err := s.tryMatch(ctx, ride)
	if err != nil {
		log.Warn("matching failed, ride stays requested", zap.Error(err))
		s.schedule(ctx, ride.ID, 1)
		return ride, nil
	}

	switch outcome {
	case matchAssigned:
		log.Info("ride assigned", zap.String("driver_id", matched.DriverID))
		return matched, nil
	case matchRideUnavailable:
		current, err := s.rides.GetByID(ctx, ride.ID)
		if err != nil {
			return ride, nil
		}
		return current, nil
	}

	observability.BroadcastFallbacks.Inc()
	log.Info("no driver available, broadcasting request")
	notify(ctx, s.notifier, s.logger, domain.RideRequested{
		RideID:      ride.ID,
		PassengerID: ride.PassengerID,
		Pickup:      ride.Pickup,
		Dropoff:     ride.Dropoff,
		RequestedAt: ride.CreatedAt,
	}, realtime.Broadcast())
	s.schedule(ctx, ride.ID, 1)

	return ride, nil
}

// AssignDriver assigns driverID to a REQUESTED ride. Admins may assign any
// driver; a driver may only assign themself.
func (s *DispatchService) AssignDriver(ctx context.Context, caller domain.Caller, rideID, driverID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	if !caller.IsAdmin() && !(caller.Role == domain.RoleDriver && caller.ID == driverID) {
		return nil, ErrRoleNotAllowed
	}

	ride, err := s.assign(ctx, rideID, driverID)
	if err != nil {
		observability.Assignments.WithLabelValues(assignmentOutcome(err)).Inc()
		return nil, err
	}
	s.afterAssign(ctx, ride)
	return ride, nil
}

type matchOutcome int

const (
	matchNone matchOutcome = iota
	matchAssigned
	matchRideUnavailable
)

// tryMatch walks the candidates of ride in order until one assignment
// commits. Driver-side conflicts move on to the next candidate; a ride
// that is no longer assignable stops the walk.
func (s *DispatchService) tryMatch(ctx context.Context, ride *domain.Ride) (*domain.Ride, matchOutcome, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	online, err := s.drivers.ListByStatus(ctx, domain.DriverStatusOnline)
	if err != nil {
		return nil, matchNone, infraError("list online drivers", err)
	}
	candidates, err := s.MatchNearestDriver(ctx, ride.Pickup, s.config.DefaultRadiusKm, online)
	if err != nil {
		return nil, matchNone, err
	}

	for _, c := range candidates {
		assigned, err := s.assign(ctx, ride.ID, c.DriverID)
		if err == nil {
			s.afterAssign(ctx, assigned)
			return assigned, matchAssigned, nil
		}

		observability.Assignments.WithLabelValues(assignmentOutcome(err)).Inc()
		switch {
		case isDriverSideError(err):
			s.logger.Debug("candidate unavailable",
				zap.String("ride_id", ride.ID),
				zap.String("driver_id", c.DriverID),
				zap.Error(err),
			)
			continue
		case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
			return nil, matchRideUnavailable, nil
		default:
			return nil, matchNone, err
		}
	}
	return nil, matchNone, nil
}

// assign commits ride (driverID, ASSIGNED) and driver ON_TRIP together.
func (s *DispatchService) assign(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	var assigned *domain.Ride
	err := s.tx.WithinTx(ctx, func(st repository.Stores) error {
		ride, err := st.Rides.GetByID(ctx, rideID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRideNotFound
		}
		if err != nil {
			return infraError("get ride", err)
		}
		if ride.HasDriver() {
			return ErrRideAlreadyAssigned
		}
		if !ride.Status.CanTransitionTo(domain.RideStatusAssigned) {
			return rideStatusConflict(ride.Status)
		}

		driver, err := st.Drivers.GetByID(ctx, driverID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDriverNotFound
		}
		if err != nil {
			return infraError("get driver", err)
		}
		if driver.Status != domain.DriverStatusOnline {
			return ErrDriverUnavailable
		}

		err = st.Rides.AssignDriver(ctx, rideID, driverID)
		switch {
		case errors.Is(err, repository.ErrStale):
			return ErrRideStateChanged
		case errors.Is(err, repository.ErrDuplicate):
			return ErrDriverUnavailable
		case err != nil:
			return infraError("assign driver", err)
		}

		err = st.Drivers.UpdateStatusIf(ctx, driverID, domain.DriverStatusOnline, domain.DriverStatusOnTrip)
		if errors.Is(err, repository.ErrStale) {
			return ErrDriverStateChanged
		}
		if err != nil {
			return infraError("update driver status", err)
		}

		ride.DriverID = driverID
		ride.Status = domain.RideStatusAssigned
		assigned = ride
		return nil
	})
	if err != nil {
		return nil, txError("assign driver", err)
	}
	return assigned, nil
}

func (s *DispatchService) afterAssign(ctx context.Context, ride *domain.Ride) {
	observability.Assignments.WithLabelValues("assigned").Inc()
	observability.RideTransitions.WithLabelValues(string(domain.RideStatusAssigned)).Inc()

	s.dequeue(ctx, ride.ID)
	notify(ctx, s.notifier, s.logger, domain.RideAssigned{
		RideID:      ride.ID,
		PassengerID: ride.PassengerID,
		DriverID:    ride.DriverID,
		Pickup:      ride.Pickup,
		AssignedAt:  s.now().UTC(),
	}, realtime.To(ride.PassengerID, ride.DriverID))
}

// schedule queues rideID for its next matching attempt.
func (s *DispatchService) schedule(ctx context.Context, rideID string, attempt int) {
	if s.queue == nil {
		return
	}
	due := s.now().Add(s.retryDelay(attempt))
	if err := s.queue.Schedule(ctx, rideID, due); err != nil {
		s.logger.Warn("failed to schedule matching retry",
			zap.String("ride_id", rideID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

func (s *DispatchService) dequeue(ctx context.Context, rideID string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Remove(ctx, rideID); err != nil {
		s.logger.Warn("failed to remove ride from retry queue", zap.String("ride_id", rideID), zap.Error(err))
	}
}

// retryDelay is the wait before the given attempt (1-based): RetryBase
// doubling up to RetryMax.
func (s *DispatchService) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.RetryBase
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = s.config.RetryMax
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func isDriverSideError(err error) bool {
	return errors.Is(err, ErrDriverUnavailable) ||
		errors.Is(err, ErrDriverStateChanged) ||
		errors.Is(err, ErrDriverNotFound)
}

func assignmentOutcome(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrValidation):
		return "rejected"
	default:
		return "error"
	}
}
