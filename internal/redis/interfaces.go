package redis

import (
	"context"
	"time"

	"ridehail/internal/domain"
)

// LocationStoreInterface defines the driver location operations.
type LocationStoreInterface interface {
	Upsert(ctx context.Context, driverID string, lat, lng float64) (domain.DriverLocation, error)
	Get(ctx context.Context, driverID string) (domain.DriverLocation, error)
	GetMany(ctx context.Context, driverIDs []string) (map[string]domain.DriverLocation, error)
	GetAll(ctx context.Context) ([]domain.DriverLocation, error)
	Remove(ctx context.Context, driverID string) error
}

// RetryQueueInterface defines the unmatched-ride queue operations.
type RetryQueueInterface interface {
	Schedule(ctx context.Context, rideID string, due time.Time) error
	ScheduleIfAbsent(ctx context.Context, rideID string, due time.Time) (bool, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	IncrAttempts(ctx context.Context, rideID string) (int, error)
	Remove(ctx context.Context, rideID string) error
	Len(ctx context.Context) (int64, error)
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ RetryQueueInterface    = (*RetryQueue)(nil)
)
