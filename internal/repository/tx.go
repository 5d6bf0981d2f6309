package repository

import "context"

// Stores groups the repositories bound to one transaction.
type Stores struct {
	Rides   RideRepository
	Drivers DriverRepository
}

// Transactor runs fn in a single transaction. Writes made through the
// given stores commit together when fn returns nil and are discarded
// otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Stores) error) error
}
