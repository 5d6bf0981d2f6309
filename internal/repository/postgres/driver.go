package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

const driverColumns = `id, name, vehicle_id, status, created_at`

// Create adds a new driver.
func (r *DriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	query := `INSERT INTO drivers (` + driverColumns + `) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.ExecContext(ctx, query,
		driver.ID,
		driver.Name,
		nullString(driver.VehicleID),
		driver.Status,
		driver.CreatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`

	driver, err := scanDriver(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return driver, nil
}

// ListByStatus retrieves drivers currently in the given status.
func (r *DriverRepository) ListByStatus(ctx context.Context, status domain.DriverStatus) ([]*domain.Driver, error) {
	return r.list(ctx, `SELECT `+driverColumns+` FROM drivers WHERE status = $1 ORDER BY id`, status)
}

// UpdateStatusIf moves a driver from one status to another.
func (r *DriverRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.DriverStatus) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE drivers SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return err
	}
	return expectOne(result, repository.ErrStale)
}

func (r *DriverRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Driver, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, driver)
	}
	return drivers, rows.Err()
}

func scanDriver(s scanner) (*domain.Driver, error) {
	var driver domain.Driver
	var vehicleID sql.NullString
	if err := s.Scan(
		&driver.ID,
		&driver.Name,
		&vehicleID,
		&driver.Status,
		&driver.CreatedAt,
	); err != nil {
		return nil, err
	}
	driver.VehicleID = vehicleID.String
	return &driver, nil
}

var _ repository.DriverRepository = (*DriverRepository)(nil)
