package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
)

func fixedSurge(m float64) SurgeProvider {
	return SurgeFunc(func(context.Context, SurgeContext) float64 { return m })
}

func TestComputeFare_NonPeakRange(t *testing.T) {
	engine := NewEngine(nil)

	for i := 0; i < 200; i++ {
		q, err := engine.ComputeFare(context.Background(), 10, 40, 12)
		require.NoError(t, err)

		assert.Equal(t, 215.0, q.Subtotal)
		assert.GreaterOrEqual(t, q.SurgeMultiplier, 1.0)
		assert.Less(t, q.SurgeMultiplier, 1.2)
		assert.GreaterOrEqual(t, q.FinalPrice, 215.0)
		assert.LessOrEqual(t, q.FinalPrice, 258.0)
		assert.GreaterOrEqual(t, q.FinalPrice, MinimumFare)
	}
}

func TestComputeFare_Breakdown(t *testing.T) {
	engine := NewEngine(fixedSurge(1.4))

	q, err := engine.ComputeFare(context.Background(), 3.333, 7.777, 8)
	require.NoError(t, err)

	assert.Equal(t, 15.0, q.BaseFare)
	assert.Equal(t, 40.0, q.DistancePrice)
	assert.Equal(t, 15.55, q.TimePrice)
	assert.Equal(t, 70.55, q.Subtotal)
	assert.Equal(t, 1.4, q.SurgeMultiplier)
	assert.Equal(t, 98.77, q.FinalPrice)
}

func TestComputeFare_MinimumFareFloor(t *testing.T) {
	tests := []struct {
		name  string
		surge float64
		want  float64
	}{
		{"no surge", 1.0, 25.0},
		{"late night", 1.37, 34.25},
		{"peak", 1.99, 49.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewEngine(fixedSurge(tt.surge)).ComputeFare(context.Background(), 0.2, 0.5, 3)
			require.NoError(t, err)

			assert.Equal(t, 18.4, q.Subtotal)
			assert.Equal(t, tt.want, q.FinalPrice)
			assert.GreaterOrEqual(t, q.FinalPrice, MinimumFare*q.SurgeMultiplier)
		})
	}
}

func TestComputeFare_RejectsBadInput(t *testing.T) {
	engine := NewEngine(nil)
	ctx := context.Background()

	_, err := engine.ComputeFare(ctx, -1, 10, 12)
	assert.True(t, errors.Is(err, ErrInvalidDistance))

	_, err = engine.ComputeFare(ctx, 1, -10, 12)
	assert.True(t, errors.Is(err, ErrInvalidDuration))

	_, err = engine.ComputeFare(ctx, 1, 10, 24)
	assert.True(t, errors.Is(err, ErrInvalidHour))
}

func TestComputeFare_MultiplierIsClampedAndTruncated(t *testing.T) {
	q, err := NewEngine(fixedSurge(0.4)).ComputeFare(context.Background(), 10, 40, 12)
	require.NoError(t, err)
	assert.Equal(t, 1.0, q.SurgeMultiplier)

	q, err = NewEngine(fixedSurge(1.19999)).ComputeFare(context.Background(), 10, 40, 12)
	require.NoError(t, err)
	assert.Equal(t, 1.19, q.SurgeMultiplier)
	assert.Equal(t, 255.85, q.FinalPrice)
}

func TestEstimateTrip(t *testing.T) {
	pickup := domain.Coordinate{Lat: 41.30, Lng: 69.24}
	dropoff := domain.Coordinate{Lat: 41.35, Lng: 69.30}

	km, minutes := EstimateTrip(pickup, dropoff)

	assert.InDelta(t, geo.HaversineKm(pickup, dropoff), km, 1e-9)
	assert.InDelta(t, km*2.5, minutes, 1e-9)
}
