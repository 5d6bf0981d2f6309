package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ridehail/internal/auth"
	"ridehail/internal/config"
	"ridehail/internal/domain"
	"ridehail/internal/handler"
	"ridehail/internal/pricing"
	"ridehail/internal/realtime"
	"ridehail/internal/redis"
	"ridehail/internal/repository/memory"
	"ridehail/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	verifier *auth.TokenVerifier
}

// newTestServer wires the real services over the in-memory store and
// miniredis, with surge pricing switched off.
func newTestServer(t *testing.T, limiter bool) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	store := memory.NewStore()
	locations := redis.NewLocationStore(client)
	hub := realtime.NewHub()
	notifier := realtime.NewNotifier(hub, nil, nil, logger)

	dispatch := service.NewDispatchService(store.Rides(), store.Drivers(), store, locations, redis.NewRetryQueue(client), notifier, logger, service.DefaultDispatchConfig())
	engine := pricing.NewEngine(NewSurgeProvider(config.PricingConfig{SurgeMode: config.SurgeOff}, nil))
	rides := service.NewRideService(store.Rides(), store, dispatch, engine, notifier, logger, time.UTC)
	drivers := service.NewDriverService(store.Drivers(), store.Rides(), locations, notifier, logger)
	verifier := auth.NewTokenVerifier("test-secret", "")

	deps := RouterDeps{
		RideHandler:   handler.NewRideHandler(rides),
		DriverHandler: handler.NewDriverHandler(drivers, dispatch),
		WSHandler:     realtime.NewWSHandler(hub, verifier, drivers, realtime.DefaultWSConfig(), logger),
		Verifier:      verifier,
		RedisClient:   client,
		Logger:        logger,
	}
	if limiter {
		deps.RateLimiter = redis.NewRateLimiter(client, 2, time.Minute)
	}
	return &testServer{router: NewRouter(deps), verifier: verifier}
}

func (s *testServer) token(t *testing.T, id string, role domain.Role) string {
	t.Helper()
	token, err := s.verifier.Issue(domain.Caller{ID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// ──────────────────────────────────────────────
// Infrastructure routes
// ──────────────────────────────────────────────

func TestRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/metrics", "", "").Code)
	assert.NotEmpty(t, s.do(http.MethodGet, "/health", "", "").Header().Get("X-Request-ID"))
}

func TestRouter_RequiresToken(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/rides", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/rides", "garbage", "").Code)
}

func TestRouter_RoleGates(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	passenger := s.token(t, "p1", domain.RolePassenger)
	driver := s.token(t, "d1", domain.RoleDriver)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/v1/rides", driver, `{"pickup":{"lat":1,"lng":1}}`).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/v1/drivers/status", passenger, `{"status":"ONLINE"}`).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/drivers/locations", driver, "").Code)
}

// ──────────────────────────────────────────────
// Ride lifecycle over HTTP
// ──────────────────────────────────────────────

func TestRouter_RideLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	admin := s.token(t, "admin", domain.RoleAdmin)
	driver := s.token(t, "d1", domain.RoleDriver)
	passenger := s.token(t, "p1", domain.RolePassenger)

	w := s.do(http.MethodPost, "/v1/drivers", admin, `{"id":"d1","name":"Asha","vehicle_id":"KA-01"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "OFFLINE", decode[handler.DriverResponse](t, w).Status)

	w = s.do(http.MethodPost, "/v1/drivers/status", driver, `{"status":"ONLINE"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/drivers/location", driver, `{"lat":12.9720,"lng":77.5946}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/v1/drivers/nearby?lat=12.9716&lng=77.5946", passenger, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"driver_id":"d1"`)

	w = s.do(http.MethodPost, "/v1/rides", passenger, `{"pickup":{"lat":12.9716,"lng":77.5946}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ride := decode[handler.RideResponse](t, w)
	assert.Equal(t, "ASSIGNED", ride.Status)
	assert.Equal(t, "d1", ride.DriverID)

	w = s.do(http.MethodPost, "/v1/rides/"+ride.ID+"/start", driver, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/rides/"+ride.ID+"/complete", driver, `{"actual_distance_km":10,"actual_time_minutes":40}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	completed := decode[handler.CompleteRideResponse](t, w)
	assert.Equal(t, "COMPLETED", completed.Ride.Status)
	assert.InDelta(t, 215.0, completed.Fare.Subtotal, 1e-9)
	assert.InDelta(t, 215.0, completed.Fare.FinalPrice, 1e-9)

	w = s.do(http.MethodPost, "/v1/rides/"+ride.ID+"/cancel", passenger, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/v1/drivers/stats", driver, "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[domain.DriverStats](t, w)
	assert.Equal(t, 1, stats.CompletedRides)

	w = s.do(http.MethodGet, "/v1/rides?page=1&limit=10", passenger, "")
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[handler.RideHistoryResponse](t, w)
	assert.Equal(t, 1, history.Total)
}

func TestRouter_UnmatchedRideStaysRequested(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	passenger := s.token(t, "p1", domain.RolePassenger)

	w := s.do(http.MethodPost, "/v1/rides", passenger, `{"pickup":{"lat":12.9716,"lng":77.5946}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "REQUESTED", decode[handler.RideResponse](t, w).Status)

	w = s.do(http.MethodGet, "/v1/rides/active", passenger, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"REQUESTED"`)
}

func TestRouter_IdempotentCreate(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	passenger := s.token(t, "p1", domain.RolePassenger)
	body := `{"pickup":{"lat":12.9716,"lng":77.5946}}`

	first := s.do(http.MethodPost, "/v1/rides", passenger, body, "Idempotency-Key", "create-1")
	second := s.do(http.MethodPost, "/v1/rides", passenger, body, "Idempotency-Key", "create-1")

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, decode[handler.RideResponse](t, first).ID, decode[handler.RideResponse](t, second).ID)

	w := s.do(http.MethodGet, "/v1/rides", passenger, "")
	assert.Equal(t, 1, decode[handler.RideHistoryResponse](t, w).Total)
}

func TestRouter_RateLimited(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, true)
	passenger := s.token(t, "p1", domain.RolePassenger)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/rides", passenger, "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/rides", passenger, "").Code)

	w := s.do(http.MethodGet, "/v1/rides", passenger, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

// ──────────────────────────────────────────────
// Factories
// ──────────────────────────────────────────────

func TestNewEventSink_None(t *testing.T) {
	t.Parallel()

	sink, err := NewEventSink(config.EventsConfig{Sink: config.SinkNone})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	_, err = NewEventSink(config.EventsConfig{Sink: "pigeon"})
	assert.Error(t, err)
}

func TestNewSurgeProvider_Off(t *testing.T) {
	t.Parallel()

	p := NewSurgeProvider(config.PricingConfig{SurgeMode: config.SurgeOff}, nil)
	assert.Equal(t, 1.0, p.Multiplier(t.Context(), pricing.SurgeContext{Hour: 18}))
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger(config.AppConfig{Env: "production", LogLevel: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	_, err = NewLogger(config.AppConfig{LogLevel: "loud"})
	assert.Error(t, err)
}

func TestNewStores_Memory(t *testing.T) {
	t.Parallel()

	stores, err := NewStores(t.Context(), &config.Config{Store: config.StoreConfig{Driver: config.StoreMemory}}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, stores.Rides)
	assert.NoError(t, stores.Close())
}
