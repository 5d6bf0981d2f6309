// Package memory is an in-process implementation of the repositories.
// Transactions take the store's write lock and stage their writes so that
// readers never observe a partially applied unit of work.
package memory

import (
	"context"
	"sync"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// Store holds rides and drivers.
type Store struct {
	mu      sync.RWMutex
	rides   map[string]*domain.Ride
	drivers map[string]*domain.Driver
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		rides:   make(map[string]*domain.Ride),
		drivers: make(map[string]*domain.Driver),
	}
}

// Rides returns a ride repository backed by the store.
func (s *Store) Rides() *RideRepository {
	return &RideRepository{view: &view{store: s}}
}

// Drivers returns a driver repository backed by the store.
func (s *Store) Drivers() *DriverRepository {
	return &DriverRepository{view: &view{store: s}}
}

// WithinTx runs fn while holding the write lock. Writes are applied only
// when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := &view{
		store:   s,
		inTx:    true,
		rides:   make(map[string]*domain.Ride),
		drivers: make(map[string]*domain.Driver),
	}
	if err := fn(repository.Stores{
		Rides:   &RideRepository{view: v},
		Drivers: &DriverRepository{view: v},
	}); err != nil {
		return err
	}

	for id, r := range v.rides {
		s.rides[id] = r
	}
	for id, d := range v.drivers {
		s.drivers[id] = d
	}
	return nil
}

// view reads through staged writes when inside a transaction.
type view struct {
	store   *Store
	inTx    bool
	rides   map[string]*domain.Ride
	drivers map[string]*domain.Driver
}

func (v *view) read(fn func()) {
	if v.inTx {
		fn()
		return
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	fn()
}

func (v *view) write(fn func()) {
	if v.inTx {
		fn()
		return
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	fn()
}

func (v *view) ride(id string) (*domain.Ride, bool) {
	if v.inTx {
		if r, ok := v.rides[id]; ok {
			return r, true
		}
	}
	r, ok := v.store.rides[id]
	return r, ok
}

func (v *view) putRide(r *domain.Ride) {
	if v.inTx {
		v.rides[r.ID] = r
		return
	}
	v.store.rides[r.ID] = r
}

func (v *view) driver(id string) (*domain.Driver, bool) {
	if v.inTx {
		if d, ok := v.drivers[id]; ok {
			return d, true
		}
	}
	d, ok := v.store.drivers[id]
	return d, ok
}

func (v *view) putDriver(d *domain.Driver) {
	if v.inTx {
		v.drivers[d.ID] = d
		return
	}
	v.store.drivers[d.ID] = d
}

// allRides merges committed and staged rides.
func (v *view) allRides() []*domain.Ride {
	out := make([]*domain.Ride, 0, len(v.store.rides))
	for id, r := range v.store.rides {
		if staged, ok := v.rides[id]; ok && v.inTx {
			r = staged
		}
		out = append(out, r)
	}
	if v.inTx {
		for id, r := range v.rides {
			if _, ok := v.store.rides[id]; !ok {
				out = append(out, r)
			}
		}
	}
	return out
}

func (v *view) allDrivers() []*domain.Driver {
	out := make([]*domain.Driver, 0, len(v.store.drivers))
	for id, d := range v.store.drivers {
		if staged, ok := v.drivers[id]; ok && v.inTx {
			d = staged
		}
		out = append(out, d)
	}
	if v.inTx {
		for id, d := range v.drivers {
			if _, ok := v.store.drivers[id]; !ok {
				out = append(out, d)
			}
		}
	}
	return out
}

func cloneRide(r *domain.Ride) *domain.Ride {
	c := *r
	if r.Dropoff != nil {
		d := *r.Dropoff
		c.Dropoff = &d
	}
	if r.Price != nil {
		p := *r.Price
		c.Price = &p
	}
	return &c
}

func cloneDriver(d *domain.Driver) *domain.Driver {
	c := *d
	return &c
}

var _ repository.Transactor = (*Store)(nil)
