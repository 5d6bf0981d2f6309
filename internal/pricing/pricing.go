// Package pricing computes ride fares.
package pricing

import (
	"context"
	"errors"
	"math"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
)

// Fare constants, in currency units.
const (
	BaseFare    = 15.0
	PerKm       = 12.0
	PerMinute   = 2.0
	MinimumFare = 25.0

	// MinutesPerKm estimates trip time when no tracked duration exists.
	MinutesPerKm = 2.5
)

var (
	// ErrInvalidDistance is returned for negative or non-finite distances.
	ErrInvalidDistance = errors.New("invalid distance")

	// ErrInvalidDuration is returned for negative or non-finite durations.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidHour is returned when the hour is outside 0-23.
	ErrInvalidHour = errors.New("invalid hour")
)

// Quote is the breakdown of a computed fare. Only FinalPrice is persisted.
type Quote struct {
	BaseFare        float64 `json:"base_fare"`
	DistancePrice   float64 `json:"distance_price"`
	TimePrice       float64 `json:"time_price"`
	Subtotal        float64 `json:"subtotal"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
	FinalPrice      float64 `json:"final_price"`
	DistanceKm      float64 `json:"distance_km"`
	TimeMinutes     float64 `json:"time_minutes"`
}

// Input holds everything a fare depends on.
type Input struct {
	DistanceKm  float64
	TimeMinutes float64
	Hour        int
	// Pickup is optional and only consulted by location-aware surge providers.
	Pickup *domain.Coordinate
}

// Engine computes fares using a pluggable surge provider.
type Engine struct {
	surge SurgeProvider
}

// NewEngine creates an Engine. A nil provider falls back to TimeOfDaySurge.
func NewEngine(surge SurgeProvider) *Engine {
	if surge == nil {
		surge = NewTimeOfDaySurge(nil)
	}
	return &Engine{surge: surge}
}

// ComputeFare prices a trip of distanceKm and timeMinutes finished at hour.
func (e *Engine) ComputeFare(ctx context.Context, distanceKm, timeMinutes float64, hour int) (Quote, error) {
	return e.Quote(ctx, Input{DistanceKm: distanceKm, TimeMinutes: timeMinutes, Hour: hour})
}

// Quote prices the given input.
func (e *Engine) Quote(ctx context.Context, in Input) (Quote, error) {
	if in.DistanceKm < 0 || math.IsNaN(in.DistanceKm) || math.IsInf(in.DistanceKm, 0) {
		return Quote{}, ErrInvalidDistance
	}
	if in.TimeMinutes < 0 || math.IsNaN(in.TimeMinutes) || math.IsInf(in.TimeMinutes, 0) {
		return Quote{}, ErrInvalidDuration
	}
	if in.Hour < 0 || in.Hour > 23 {
		return Quote{}, ErrInvalidHour
	}

	q := Quote{
		BaseFare:      round2(BaseFare),
		DistancePrice: round2(in.DistanceKm * PerKm),
		TimePrice:     round2(in.TimeMinutes * PerMinute),
		DistanceKm:    round2(in.DistanceKm),
		TimeMinutes:   round2(in.TimeMinutes),
	}
	q.Subtotal = round2(q.BaseFare + q.DistancePrice + q.TimePrice)

	floored := math.Max(MinimumFare, q.Subtotal)

	q.SurgeMultiplier = normalizeMultiplier(e.surge.Multiplier(ctx, SurgeContext{Hour: in.Hour, Pickup: in.Pickup}))
	q.FinalPrice = round2(floored * q.SurgeMultiplier)

	return q, nil
}

// EstimateTrip derives distance and duration from straight-line distance
// when no tracked values exist.
func EstimateTrip(pickup, dropoff domain.Coordinate) (distanceKm, timeMinutes float64) {
	distanceKm = geo.HaversineKm(pickup, dropoff)
	return distanceKm, distanceKm * MinutesPerKm
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// normalizeMultiplier truncates to two decimals so the persisted multiplier
// reproduces the final price exactly. Values below 1 are clamped.
func normalizeMultiplier(m float64) float64 {
	if m < 1 || math.IsNaN(m) {
		return 1
	}
	return math.Floor(m*100+1e-9) / 100
}
