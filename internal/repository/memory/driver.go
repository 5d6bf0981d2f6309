package memory

import (
	"context"
	"sort"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// DriverRepository is an in-memory repository.DriverRepository.
type DriverRepository struct {
	view *view
}

// Create adds a new driver.
func (r *DriverRepository) Create(_ context.Context, driver *domain.Driver) (err error) {
	r.view.write(func() {
		if _, ok := r.view.driver(driver.ID); ok {
			err = repository.ErrDuplicate
			return
		}
		r.view.putDriver(cloneDriver(driver))
	})
	return err
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(_ context.Context, id string) (driver *domain.Driver, err error) {
	r.view.read(func() {
		d, ok := r.view.driver(id)
		if !ok {
			err = repository.ErrNotFound
			return
		}
		driver = cloneDriver(d)
	})
	return driver, err
}

// ListByStatus retrieves drivers currently in the given status.
func (r *DriverRepository) ListByStatus(_ context.Context, status domain.DriverStatus) ([]*domain.Driver, error) {
	return r.filter(func(d *domain.Driver) bool { return d.Status == status }), nil
}

// UpdateStatusIf moves a driver from one status to another.
func (r *DriverRepository) UpdateStatusIf(_ context.Context, id string, from, to domain.DriverStatus) (err error) {
	r.view.write(func() {
		d, ok := r.view.driver(id)
		if !ok || d.Status != from {
			err = repository.ErrStale
			return
		}
		updated := cloneDriver(d)
		updated.Status = to
		r.view.putDriver(updated)
	})
	return err
}

func (r *DriverRepository) filter(keep func(*domain.Driver) bool) []*domain.Driver {
	var out []*domain.Driver
	r.view.read(func() {
		for _, d := range r.view.allDrivers() {
			if keep(d) {
				out = append(out, cloneDriver(d))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var _ repository.DriverRepository = (*DriverRepository)(nil)
