package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ridehail/internal/repository"
)

// Transactor runs repository work inside a database transaction.
type Transactor struct {
	db *sql.DB
}

// NewTransactor creates a new Transactor.
func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx begins a transaction, hands tx-scoped repositories to fn and
// commits when fn succeeds.
func (t *Transactor) WithinTx(ctx context.Context, fn func(repository.Stores) error) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(repository.Stores{
		Rides:   NewRideRepositoryWithTx(tx),
		Drivers: NewDriverRepositoryWithTx(tx),
	}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ repository.Transactor = (*Transactor)(nil)
