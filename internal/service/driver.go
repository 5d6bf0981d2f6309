package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/observability"
	"ridehail/internal/realtime"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// DriverService handles the driver registry and driver locations.
type DriverService struct {
	drivers   repository.DriverRepository
	rides     repository.RideRepository
	locations redis.LocationStoreInterface
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewDriverService creates a new DriverService.
func NewDriverService(
	drivers repository.DriverRepository,
	rides repository.RideRepository,
	locations redis.LocationStoreInterface,
	notifier Notifier,
	logger *zap.Logger,
) *DriverService {
	return &DriverService{
		drivers:   drivers,
		rides:     rides,
		locations: locations,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Ensure DriverService accepts socket location frames.
var _ realtime.LocationUpdater = (*DriverService)(nil)

// RegisterDriverRequest contains the parameters for registering a driver.
type RegisterDriverRequest struct {
	ID        string // admins only; drivers always register themselves
	Name      string
	VehicleID string
}

// RegisterDriver adds a driver to the registry in OFFLINE status.
func (s *DriverService) RegisterDriver(ctx context.Context, caller domain.Caller, req RegisterDriverRequest) (*domain.Driver, error) {
	id := strings.TrimSpace(req.ID)
	switch caller.Role {
	case domain.RoleAdmin:
		if id == "" {
			id = uuid.NewString()
		}
	case domain.RoleDriver:
		if id != "" && id != caller.ID {
			return nil, ErrRoleNotAllowed
		}
		id = caller.ID
	default:
		return nil, ErrRoleNotAllowed
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidDriverName
	}

	driver := &domain.Driver{
		ID:        id,
		Name:      name,
		VehicleID: strings.TrimSpace(req.VehicleID),
		Status:    domain.DriverStatusOffline,
		CreatedAt: s.now().UTC(),
	}
	if err := s.drivers.Create(ctx, driver); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDriverExists
		}
		return nil, infraError("create driver", err)
	}

	s.logger.Info("driver registered", zap.String("driver_id", driver.ID))
	return driver, nil
}

// UpdateLocation records the calling driver's position and broadcasts it.
func (s *DriverService) UpdateLocation(ctx context.Context, caller domain.Caller, lat, lng float64) (domain.DriverLocation, error) {
	if caller.Role != domain.RoleDriver {
		return domain.DriverLocation{}, ErrRoleNotAllowed
	}
	if !(domain.Coordinate{Lat: lat, Lng: lng}).Valid() {
		return domain.DriverLocation{}, ErrInvalidLocation
	}
	if _, err := s.load(ctx, caller.ID); err != nil {
		return domain.DriverLocation{}, err
	}

	loc, err := s.locations.Upsert(ctx, caller.ID, lat, lng)
	if err != nil {
		return domain.DriverLocation{}, infraError("update driver location", err)
	}
	observability.LocationUpdates.Inc()

	notify(ctx, s.notifier, s.logger, domain.DriverLocationUpdated{
		DriverID:  loc.DriverID,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		Timestamp: loc.Timestamp,
	}, realtime.Broadcast())

	return loc, nil
}

// UpdateStatus toggles the calling driver between ONLINE and OFFLINE.
// ON_TRIP is owned by the ride lifecycle and cannot be set or left here.
func (s *DriverService) UpdateStatus(ctx context.Context, caller domain.Caller, status domain.DriverStatus) (*domain.Driver, error) {
	if caller.Role != domain.RoleDriver {
		return nil, ErrRoleNotAllowed
	}
	if status != domain.DriverStatusOnline && status != domain.DriverStatusOffline {
		return nil, ErrInvalidStatus
	}

	driver, err := s.load(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	if driver.Status == domain.DriverStatusOnTrip {
		return nil, ErrDriverOnTrip
	}
	if driver.Status == status {
		return driver, nil
	}

	err = s.drivers.UpdateStatusIf(ctx, driver.ID, driver.Status, status)
	if errors.Is(err, repository.ErrStale) {
		return nil, ErrDriverStateChanged
	}
	if err != nil {
		return nil, infraError("update driver status", err)
	}
	driver.Status = status

	if status == domain.DriverStatusOffline {
		if err := s.locations.Remove(ctx, driver.ID); err != nil {
			s.logger.Warn("failed to remove driver location", zap.String("driver_id", driver.ID), zap.Error(err))
		}
	}

	notify(ctx, s.notifier, s.logger, domain.DriverStatusUpdated{
		DriverID:  driver.ID,
		Status:    status,
		UpdatedAt: s.now().UTC(),
	}, realtime.Broadcast())

	return driver, nil
}

// GetLocation returns the last reported location of a driver.
func (s *DriverService) GetLocation(ctx context.Context, driverID string) (domain.DriverLocation, error) {
	if driverID == "" {
		return domain.DriverLocation{}, ErrInvalidDriverID
	}
	loc, err := s.locations.Get(ctx, driverID)
	if errors.Is(err, redis.ErrLocationNotFound) {
		return domain.DriverLocation{}, ErrLocationNotFound
	}
	if err != nil {
		return domain.DriverLocation{}, infraError("get driver location", err)
	}
	return loc, nil
}

// ListLocations returns every stored driver location. Admin only.
func (s *DriverService) ListLocations(ctx context.Context, caller domain.Caller) ([]domain.DriverLocation, error) {
	if !caller.IsAdmin() {
		return nil, ErrRoleNotAllowed
	}
	locs, err := s.locations.GetAll(ctx)
	if err != nil {
		return nil, infraError("list driver locations", err)
	}
	return locs, nil
}

// Stats aggregates a driver's rides. Drivers see their own; admins any.
// An empty driverID means the caller.
func (s *DriverService) Stats(ctx context.Context, caller domain.Caller, driverID string) (*domain.DriverStats, error) {
	if driverID == "" {
		driverID = caller.ID
	}
	if !caller.IsAdmin() && !(caller.Role == domain.RoleDriver && caller.ID == driverID) {
		return nil, ErrRoleNotAllowed
	}
	if _, err := s.load(ctx, driverID); err != nil {
		return nil, err
	}

	stats, err := s.rides.DriverStats(ctx, driverID)
	if err != nil {
		return nil, infraError("driver stats", err)
	}
	return stats, nil
}

func (s *DriverService) load(ctx context.Context, driverID string) (*domain.Driver, error) {
	driver, err := s.drivers.GetByID(ctx, driverID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDriverNotFound
	}
	if err != nil {
		return nil, infraError("get driver", err)
	}
	return driver, nil
}
