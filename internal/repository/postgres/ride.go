package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

const rideColumns = `id, passenger_id, driver_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	status, price, surge_multiplier, created_at, started_at, completed_at, cancelled_at, cancelled_by, cancel_reason`

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	var dropoffLat, dropoffLng sql.NullFloat64
	if ride.Dropoff != nil {
		dropoffLat = sql.NullFloat64{Float64: ride.Dropoff.Lat, Valid: true}
		dropoffLng = sql.NullFloat64{Float64: ride.Dropoff.Lng, Valid: true}
	}

	var price sql.NullFloat64
	if ride.Price != nil {
		price = sql.NullFloat64{Float64: *ride.Price, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.PassengerID,
		nullString(ride.DriverID),
		ride.Pickup.Lat,
		ride.Pickup.Lng,
		dropoffLat,
		dropoffLng,
		ride.Status,
		price,
		ride.SurgeMultiplier,
		ride.CreatedAt,
		nullTime(ride.StartedAt),
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
		nullString(ride.CancelledBy),
		nullString(ride.CancelReason),
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// ListByParticipant returns one page of a user's rides, newest first.
func (r *RideRepository) ListByParticipant(ctx context.Context, userID string, offset, limit int) ([]*domain.Ride, int, error) {
	var total int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rides WHERE passenger_id = $1 OR driver_id = $1`,
		userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rides, err := r.list(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE passenger_id = $1 OR driver_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	return rides, total, nil
}

// ListActive returns non-terminal rides, newest first.
func (r *RideRepository) ListActive(ctx context.Context, userID string) ([]*domain.Ride, error) {
	statuses := make([]string, len(domain.ActiveRideStatuses))
	for i, status := range domain.ActiveRideStatuses {
		statuses[i] = string(status)
	}

	if userID == "" {
		return r.list(ctx, `SELECT `+rideColumns+` FROM rides
			WHERE status = ANY($1)
			ORDER BY created_at DESC, id DESC`,
			pq.Array(statuses),
		)
	}
	return r.list(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE status = ANY($1) AND (passenger_id = $2 OR driver_id = $2)
		ORDER BY created_at DESC, id DESC`,
		pq.Array(statuses), userID,
	)
}

// ListByStatus returns up to limit rides in the given status, oldest first.
func (r *RideRepository) ListByStatus(ctx context.Context, status domain.RideStatus, limit int) ([]*domain.Ride, error) {
	return r.list(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`,
		status, limit,
	)
}

// AssignDriver sets the driver on a REQUESTED ride that has none.
func (r *RideRepository) AssignDriver(ctx context.Context, rideID, driverID string) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE rides SET driver_id = $1, status = $2
		WHERE id = $3 AND status = $4 AND driver_id IS NULL`,
		driverID, domain.RideStatusAssigned, rideID, domain.RideStatusRequested,
	)
	if isUniqueViolation(err) {
		// uq_rides_driver_active: the driver already holds an active ride.
		return repository.ErrDuplicate
	}
	if err != nil {
		return err
	}
	return expectOne(result, repository.ErrStale)
}

// Start moves ASSIGNED to STARTED.
func (r *RideRepository) Start(ctx context.Context, rideID string, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE rides SET status = $1, started_at = $2 WHERE id = $3 AND status = $4`,
		domain.RideStatusStarted, at, rideID, domain.RideStatusAssigned,
	)
	if err != nil {
		return err
	}
	return expectOne(result, repository.ErrStale)
}

// Complete moves STARTED to COMPLETED and stores the fare.
func (r *RideRepository) Complete(ctx context.Context, rideID string, price, surgeMultiplier float64, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE rides SET status = $1, price = $2, surge_multiplier = $3, completed_at = $4
		WHERE id = $5 AND status = $6 AND price IS NULL`,
		domain.RideStatusCompleted, price, surgeMultiplier, at, rideID, domain.RideStatusStarted,
	)
	if err != nil {
		return err
	}
	return expectOne(result, repository.ErrStale)
}

// Cancel moves the ride from a non-terminal status to CANCELLED.
func (r *RideRepository) Cancel(ctx context.Context, rideID string, from domain.RideStatus, cancelledBy, reason string, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE rides SET status = $1, cancelled_at = $2, cancelled_by = $3, cancel_reason = $4
		WHERE id = $5 AND status = $6`,
		domain.RideStatusCancelled, at, nullString(cancelledBy), nullString(reason), rideID, from,
	)
	if err != nil {
		return err
	}
	return expectOne(result, repository.ErrStale)
}

// DriverStats aggregates the rides of a driver.
func (r *RideRepository) DriverStats(ctx context.Context, driverID string) (*domain.DriverStats, error) {
	stats := domain.DriverStats{DriverID: driverID}
	err := r.q.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status IN ($4, $5)),
			COALESCE(SUM(price) FILTER (WHERE status = $2), 0)
		FROM rides WHERE driver_id = $1`,
		driverID,
		domain.RideStatusCompleted,
		domain.RideStatusCancelled,
		domain.RideStatusAssigned,
		domain.RideStatusStarted,
	).Scan(
		&stats.TotalRides,
		&stats.CompletedRides,
		&stats.CancelledRides,
		&stats.ActiveRides,
		&stats.Earnings,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *RideRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

func scanRide(s scanner) (*domain.Ride, error) {
	var ride domain.Ride
	var driverID, cancelledBy, cancelReason sql.NullString
	var dropoffLat, dropoffLng, price, surge sql.NullFloat64
	var startedAt, completedAt, cancelledAt sql.NullTime

	if err := s.Scan(
		&ride.ID,
		&ride.PassengerID,
		&driverID,
		&ride.Pickup.Lat,
		&ride.Pickup.Lng,
		&dropoffLat,
		&dropoffLng,
		&ride.Status,
		&price,
		&surge,
		&ride.CreatedAt,
		&startedAt,
		&completedAt,
		&cancelledAt,
		&cancelledBy,
		&cancelReason,
	); err != nil {
		return nil, err
	}

	ride.DriverID = driverID.String
	if dropoffLat.Valid && dropoffLng.Valid {
		ride.Dropoff = &domain.Coordinate{Lat: dropoffLat.Float64, Lng: dropoffLng.Float64}
	}
	if price.Valid {
		p := price.Float64
		ride.Price = &p
	}
	ride.SurgeMultiplier = surge.Float64
	ride.StartedAt = startedAt.Time
	ride.CompletedAt = completedAt.Time
	ride.CancelledAt = cancelledAt.Time
	ride.CancelledBy = cancelledBy.String
	ride.CancelReason = cancelReason.String

	return &ride, nil
}

var _ repository.RideRepository = (*RideRepository)(nil)
