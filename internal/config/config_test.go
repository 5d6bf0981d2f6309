package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5.0, cfg.Dispatch.DefaultRadiusKm)
	assert.Equal(t, 10.0, cfg.Dispatch.NearbyRadiusKm)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.LocationMaxAge)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "ride_events", cfg.Events.AMQPExchange)
	assert.Equal(t, SinkNone, cfg.Events.Sink)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.RetryPoll)
	assert.False(t, cfg.Realtime.RelayEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DISPATCH_RADIUS_KM", "2.5")
	t.Setenv("DISPATCH_LOCATION_MAX_AGE", "0s")
	t.Setenv("EVENTS_SINK", "kafka")
	t.Setenv("EVENTS_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("REALTIME_RELAY", "redis")

	cfg := Load()

	assert.Equal(t, 2.5, cfg.Dispatch.DefaultRadiusKm)
	assert.Equal(t, time.Duration(0), cfg.Dispatch.LocationMaxAge)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.True(t, cfg.Realtime.RelayEnabled())
	require.NoError(t, cfg.Validate())
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PRICING_SURGE_MODE", "chaos")
	t.Setenv("EVENTS_SINK", "carrier-pigeon")
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("PRICING_TIMEZONE", "Mars/Olympus")
	t.Setenv("REALTIME_RELAY", "carrier")

	err := Load().Validate()

	require.Error(t, err)
	for _, want := range []string{"JWT_SECRET", "PRICING_SURGE_MODE", "EVENTS_SINK", "STORE_DRIVER", "PRICING_TIMEZONE", "REALTIME_RELAY"} {
		assert.Contains(t, err.Error(), want)
	}
}
