package service

import (
	"context"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/pricing"
	"ridehail/internal/repository"
)

// DefaultSurgeRadiusKm is the area around a pickup used for supply and demand.
const DefaultSurgeRadiusKm = 5.0

// SurgeSignal measures supply and demand around a pickup for demand-based
// surge pricing. Supply is the ONLINE drivers with a fresh location in
// range; demand is the REQUESTED and ASSIGNED rides picking up in range.
type SurgeSignal struct {
	dispatch *DispatchService
	rides    repository.RideRepository
	radiusKm float64
}

// NewSurgeSignal creates a SurgeSignal. A non-positive radius uses
// DefaultSurgeRadiusKm.
func NewSurgeSignal(dispatch *DispatchService, rides repository.RideRepository, radiusKm float64) *SurgeSignal {
	if radiusKm <= 0 {
		radiusKm = DefaultSurgeRadiusKm
	}
	return &SurgeSignal{dispatch: dispatch, rides: rides, radiusKm: radiusKm}
}

// Ensure SurgeSignal implements pricing.DemandSignal.
var _ pricing.DemandSignal = (*SurgeSignal)(nil)

// Supply returns the number of available drivers near at.
func (s *SurgeSignal) Supply(ctx context.Context, at domain.Coordinate) (int, error) {
	nearby, err := s.dispatch.FindNearbyDrivers(ctx, at, s.radiusKm)
	if err != nil {
		return 0, err
	}
	return len(nearby), nil
}

// Demand returns the number of open ride requests near at.
func (s *SurgeSignal) Demand(ctx context.Context, at domain.Coordinate) (int, error) {
	active, err := s.rides.ListActive(ctx, "")
	if err != nil {
		return 0, infraError("list active rides", err)
	}

	count := 0
	for _, ride := range active {
		if ride.Status == domain.RideStatusStarted {
			continue
		}
		if geo.HaversineKm(at, ride.Pickup) <= s.radiusKm {
			count++
		}
	}
	return count, nil
}
