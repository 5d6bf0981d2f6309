package app

import (
	"context"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"ridehail/internal/config"
	"ridehail/internal/repository"
	"ridehail/internal/repository/memory"
	"ridehail/internal/repository/postgres"
)

// Stores bundles the ride and driver repositories with their transactor.
type Stores struct {
	Rides   repository.RideRepository
	Drivers repository.DriverRepository
	Tx      repository.Transactor
	close   func() error
}

// Close releases the underlying connection pool, if any.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// NewStores opens the store selected by STORE_DRIVER.
func NewStores(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application, logger *zap.Logger) (*Stores, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		logger.Warn("using in-memory store; rides and drivers are lost on restart")
		store := memory.NewStore()
		return &Stores{Rides: store.Rides(), Drivers: store.Drivers(), Tx: store}, nil

	case config.StorePostgres:
		db, err := NewDatabase(ctx, cfg.Database, nrApp)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		logger.Info("connected to postgres", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))
		return &Stores{
			Rides:   postgres.NewRideRepository(db),
			Drivers: postgres.NewDriverRepository(db),
			Tx:      postgres.NewTransactor(db),
			close:   db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
