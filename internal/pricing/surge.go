package pricing

import (
	"context"
	"math/rand/v2"

	"ridehail/internal/domain"
)

// SurgeContext is what a surge provider may look at.
type SurgeContext struct {
	Hour   int
	Pickup *domain.Coordinate
}

// SurgeProvider maps a pricing context to a multiplier (>= 1).
type SurgeProvider interface {
	Multiplier(ctx context.Context, sc SurgeContext) float64
}

// SurgeFunc adapts a function to SurgeProvider.
type SurgeFunc func(ctx context.Context, sc SurgeContext) float64

func (f SurgeFunc) Multiplier(ctx context.Context, sc SurgeContext) float64 { return f(ctx, sc) }

// Band is a half-open multiplier range [Min, Max).
type Band struct {
	Min, Max float64
}

var (
	PeakBand      = Band{Min: 1.5, Max: 2.0}
	LateNightBand = Band{Min: 1.2, Max: 1.5}
	NormalBand    = Band{Min: 1.0, Max: 1.2}
)

// BandForHour returns the surge band for an hour of day.
// Peak is 07-09 and 17-19 inclusive, late night is 23 and 00-05.
func BandForHour(hour int) Band {
	switch {
	case (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19):
		return PeakBand
	case hour >= 23 || hour <= 5:
		return LateNightBand
	default:
		return NormalBand
	}
}

// TimeOfDaySurge draws a multiplier uniformly from the band of the hour.
// It stands in for a real demand signal.
type TimeOfDaySurge struct {
	random func() float64
}

// NewTimeOfDaySurge creates a TimeOfDaySurge. random must return values in
// [0, 1); nil uses math/rand/v2.
func NewTimeOfDaySurge(random func() float64) *TimeOfDaySurge {
	if random == nil {
		random = rand.Float64
	}
	return &TimeOfDaySurge{random: random}
}

func (s *TimeOfDaySurge) Multiplier(_ context.Context, sc SurgeContext) float64 {
	band := BandForHour(sc.Hour)
	return band.Min + s.random()*(band.Max-band.Min)
}

// DemandSignal reports supply and demand around a point.
type DemandSignal interface {
	Supply(ctx context.Context, at domain.Coordinate) (int, error)
	Demand(ctx context.Context, at domain.Coordinate) (int, error)
}

// DemandConfig holds the demand/supply ratio thresholds.
type DemandConfig struct {
	LowSurgeRatio  float64 // 1.25x
	MedSurgeRatio  float64 // 1.5x
	HighSurgeRatio float64 // MaxSurge
	MaxSurge       float64
}

// DefaultDemandConfig returns the default thresholds.
func DefaultDemandConfig() DemandConfig {
	return DemandConfig{
		LowSurgeRatio:  1.2,
		MedSurgeRatio:  1.5,
		HighSurgeRatio: 2.0,
		MaxSurge:       2.0,
	}
}

// DemandSurge prices from the demand/supply ratio near the pickup. Without
// a pickup or on signal errors it falls back to the next provider.
type DemandSurge struct {
	signal   DemandSignal
	config   DemandConfig
	fallback SurgeProvider
}

// NewDemandSurge creates a DemandSurge. A nil fallback means no surge.
func NewDemandSurge(signal DemandSignal, config DemandConfig, fallback SurgeProvider) *DemandSurge {
	if fallback == nil {
		fallback = SurgeFunc(func(context.Context, SurgeContext) float64 { return 1.0 })
	}
	return &DemandSurge{signal: signal, config: config, fallback: fallback}
}

func (s *DemandSurge) Multiplier(ctx context.Context, sc SurgeContext) float64 {
	if sc.Pickup == nil {
		return s.fallback.Multiplier(ctx, sc)
	}
	supply, err := s.signal.Supply(ctx, *sc.Pickup)
	if err != nil {
		return s.fallback.Multiplier(ctx, sc)
	}
	demand, err := s.signal.Demand(ctx, *sc.Pickup)
	if err != nil {
		return s.fallback.Multiplier(ctx, sc)
	}
	return s.multiplierFor(supply, demand)
}

func (s *DemandSurge) multiplierFor(supply, demand int) float64 {
	if supply == 0 {
		if demand > 0 {
			return s.config.MaxSurge
		}
		return 1.0
	}

	ratio := float64(demand) / float64(supply)

	switch {
	case ratio >= s.config.HighSurgeRatio:
		return s.config.MaxSurge
	case ratio >= s.config.MedSurgeRatio:
		return 1.5
	case ratio >= s.config.LowSurgeRatio:
		return 1.25
	default:
		return 1.0
	}
}
