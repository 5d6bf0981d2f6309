package repository

import (
	"context"

	"ridehail/internal/domain"
)

// DriverRepository defines the persistence operations for drivers.
type DriverRepository interface {
	// Create adds a new driver.
	Create(ctx context.Context, driver *domain.Driver) error

	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// ListByStatus retrieves drivers currently in the given status.
	ListByStatus(ctx context.Context, status domain.DriverStatus) ([]*domain.Driver, error)

	// UpdateStatusIf moves a driver from one status to another. It returns
	// ErrStale when the driver is not currently in from.
	UpdateStatusIf(ctx context.Context, id string, from, to domain.DriverStatus) error
}
