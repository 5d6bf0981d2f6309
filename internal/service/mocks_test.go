package service

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/pricing"
	"ridehail/internal/realtime"
	"ridehail/internal/redis"
	"ridehail/internal/repository/memory"
)

// ──────────────────────────────────────────────
// RECORDING NOTIFIER
// ──────────────────────────────────────────────

type published struct {
	event  domain.Event
	target realtime.Target
}

// recordingNotifier keeps every published event for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	events []published
}

func (n *recordingNotifier) Publish(_ context.Context, event domain.Event, target realtime.Target) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{event: event, target: target})
	return nil
}

func (n *recordingNotifier) ofType(typ domain.EventType) []published {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []published
	for _, p := range n.events {
		if p.event.Type() == typ {
			out = append(out, p)
		}
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

// mockLocationStore fails every call with Err and counts calls.
type mockLocationStore struct {
	Err          error
	GetManyCalls int32
}

func (m *mockLocationStore) Upsert(context.Context, string, float64, float64) (domain.DriverLocation, error) {
	return domain.DriverLocation{}, m.Err
}

func (m *mockLocationStore) Get(context.Context, string) (domain.DriverLocation, error) {
	return domain.DriverLocation{}, m.Err
}

func (m *mockLocationStore) GetMany(context.Context, []string) (map[string]domain.DriverLocation, error) {
	atomic.AddInt32(&m.GetManyCalls, 1)
	return nil, m.Err
}

func (m *mockLocationStore) GetAll(context.Context) ([]domain.DriverLocation, error) {
	return nil, m.Err
}

func (m *mockLocationStore) Remove(context.Context, string) error { return m.Err }

// ──────────────────────────────────────────────
// FIXTURE
// ──────────────────────────────────────────────

var (
	pickup    = domain.Coordinate{Lat: 12.9716, Lng: 77.5946}
	passenger = domain.Caller{ID: "p1", Role: domain.RolePassenger}
	admin     = domain.Caller{ID: "admin", Role: domain.RoleAdmin}
)

func driverCaller(id string) domain.Caller { return domain.Caller{ID: id, Role: domain.RoleDriver} }

// northOf returns the point km kilometres due north of c.
func northOf(c domain.Coordinate, km float64) domain.Coordinate {
	return domain.Coordinate{Lat: c.Lat + km/geo.EarthRadiusKm*180/math.Pi, Lng: c.Lng}
}

type fixture struct {
	store     *memory.Store
	locations *redis.LocationStore
	queue     *redis.RetryQueue
	notifier  *recordingNotifier
	dispatch  *DispatchService
	rides     *RideService
	drivers   *DriverService
	clock     *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func noSurge() pricing.SurgeProvider {
	return pricing.SurgeFunc(func(context.Context, pricing.SurgeContext) float64 { return 1.0 })
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, DefaultDispatchConfig())
}

func newFixtureWithConfig(t *testing.T, cfg DispatchConfig) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memory.NewStore()
	logger := zap.NewNop()
	clock := &testClock{now: time.Now()}

	f := &fixture{
		store:     store,
		locations: redis.NewLocationStore(client),
		queue:     redis.NewRetryQueue(client),
		notifier:  &recordingNotifier{},
		clock:     clock,
	}
	f.dispatch = NewDispatchService(store.Rides(), store.Drivers(), store, f.locations, f.queue, f.notifier, logger, cfg)
	f.dispatch.now = clock.Now
	f.rides = NewRideService(store.Rides(), store, f.dispatch, pricing.NewEngine(noSurge()), f.notifier, logger, time.UTC)
	f.rides.now = clock.Now
	f.drivers = NewDriverService(store.Drivers(), store.Rides(), f.locations, f.notifier, logger)
	f.drivers.now = clock.Now
	return f
}

// addDriver registers a driver in status and, when at is non-nil, stores
// its location.
func (f *fixture) addDriver(t *testing.T, id string, status domain.DriverStatus, at *domain.Coordinate) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Drivers().Create(ctx, &domain.Driver{
		ID:        id,
		Name:      "Driver " + id,
		Status:    status,
		CreatedAt: time.Now(),
	}))
	if at != nil {
		_, err := f.locations.Upsert(ctx, id, at.Lat, at.Lng)
		require.NoError(t, err)
	}
}

// addRide stores a ride directly, bypassing matching.
func (f *fixture) addRide(t *testing.T, ride *domain.Ride) *domain.Ride {
	t.Helper()
	if ride.Status == "" {
		ride.Status = domain.RideStatusRequested
	}
	if ride.CreatedAt.IsZero() {
		ride.CreatedAt = time.Now()
	}
	if ride.SurgeMultiplier == 0 {
		ride.SurgeMultiplier = 1
	}
	require.NoError(t, f.store.Rides().Create(context.Background(), ride))
	return ride
}

// registeredDrivers lists every driver in the store regardless of status.
func (f *fixture) registeredDrivers(t *testing.T) []*domain.Driver {
	t.Helper()
	var all []*domain.Driver
	for _, status := range []domain.DriverStatus{domain.DriverStatusOnline, domain.DriverStatusOffline, domain.DriverStatusOnTrip} {
		drivers, err := f.store.Drivers().ListByStatus(context.Background(), status)
		require.NoError(t, err)
		all = append(all, drivers...)
	}
	return all
}

func (f *fixture) driverStatus(t *testing.T, id string) domain.DriverStatus {
	t.Helper()
	d, err := f.store.Drivers().GetByID(context.Background(), id)
	require.NoError(t, err)
	return d.Status
}

func (f *fixture) rideByID(t *testing.T, id string) *domain.Ride {
	t.Helper()
	r, err := f.store.Rides().GetByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func ptr[T any](v T) *T { return &v }
