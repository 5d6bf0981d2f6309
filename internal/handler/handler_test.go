package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/domain"
	"ridehail/internal/middleware"
	"ridehail/internal/pricing"
	"ridehail/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ──────────────────────────────────────────────
// Stubs
// ──────────────────────────────────────────────

type tokenVerifier map[string]domain.Caller

func (v tokenVerifier) Verify(token string) (domain.Caller, error) {
	caller, ok := v[token]
	if !ok {
		return domain.Caller{}, errors.New("unknown token")
	}
	return caller, nil
}

var tokens = tokenVerifier{
	"p1": {ID: "p1", Role: domain.RolePassenger},
	"d1": {ID: "d1", Role: domain.RoleDriver},
}

type stubRideService struct {
	RideService // panics if an unstubbed method is called

	ride *domain.Ride
	err  error

	gotCaller  domain.Caller
	gotPickup  domain.Coordinate
	gotDropoff *domain.Coordinate
	gotPage    int
	gotLimit   int
	gotMetrics service.TripMetrics
	gotReason  string
	gotDriver  string
}

func (s *stubRideService) CreateRide(_ context.Context, caller domain.Caller, pickup domain.Coordinate, dropoff *domain.Coordinate) (*domain.Ride, error) {
	s.gotCaller, s.gotPickup, s.gotDropoff = caller, pickup, dropoff
	return s.ride, s.err
}

func (s *stubRideService) GetRide(_ context.Context, caller domain.Caller, _ string) (*domain.Ride, error) {
	s.gotCaller = caller
	return s.ride, s.err
}

func (s *stubRideService) ListRideHistory(_ context.Context, _ domain.Caller, page, limit int) (*service.RidePage, error) {
	s.gotPage, s.gotLimit = page, limit
	if s.err != nil {
		return nil, s.err
	}
	return &service.RidePage{Rides: []*domain.Ride{s.ride}, Total: 1, Page: page, Limit: limit}, nil
}

func (s *stubRideService) AssignDriver(_ context.Context, _ domain.Caller, _, driverID string) (*domain.Ride, error) {
	s.gotDriver = driverID
	return s.ride, s.err
}

func (s *stubRideService) CompleteRide(_ context.Context, _ domain.Caller, _ string, m service.TripMetrics) (*domain.Ride, pricing.Quote, error) {
	s.gotMetrics = m
	return s.ride, pricing.Quote{Subtotal: 215, SurgeMultiplier: 1, FinalPrice: 215}, s.err
}

func (s *stubRideService) CancelRide(_ context.Context, _ domain.Caller, _, reason string) (*domain.Ride, error) {
	s.gotReason = reason
	return s.ride, s.err
}

func (s *stubRideService) EstimateFare(_ context.Context, pickup, dropoff domain.Coordinate, _ time.Time) (pricing.Quote, error) {
	s.gotPickup, s.gotDropoff = pickup, &dropoff
	return pricing.Quote{FinalPrice: 185}, s.err
}

type stubDriverService struct {
	DriverService

	err     error
	gotLat  float64
	gotLng  float64
	gotStat domain.DriverStatus
}

func (s *stubDriverService) UpdateLocation(_ context.Context, caller domain.Caller, lat, lng float64) (domain.DriverLocation, error) {
	s.gotLat, s.gotLng = lat, lng
	return domain.DriverLocation{DriverID: caller.ID, Lat: lat, Lng: lng}, s.err
}

func (s *stubDriverService) UpdateStatus(_ context.Context, caller domain.Caller, status domain.DriverStatus) (*domain.Driver, error) {
	s.gotStat = status
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Driver{ID: caller.ID, Status: status}, nil
}

type stubNearby struct {
	gotAt     domain.Coordinate
	gotRadius float64
}

func (s *stubNearby) FindNearbyDrivers(_ context.Context, at domain.Coordinate, radiusKm float64) ([]service.Candidate, error) {
	s.gotAt, s.gotRadius = at, radiusKm
	return []service.Candidate{{DriverID: "d1", DistanceKm: 1.5}}, nil
}

func sampleRide() *domain.Ride {
	return &domain.Ride{
		ID:              "r1",
		PassengerID:     "p1",
		Pickup:          domain.Coordinate{Lat: 12.97, Lng: 77.59},
		Status:          domain.RideStatusRequested,
		SurgeMultiplier: 1,
		CreatedAt:       time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newRouter(rides RideService, drivers DriverService, nearby NearbyFinder) *gin.Engine {
	r := gin.New()
	v1 := r.Group("/v1", middleware.AuthMiddleware(tokens))

	rh := NewRideHandler(rides)
	v1.POST("/rides", rh.CreateRide)
	v1.GET("/rides", rh.ListRideHistory)
	v1.GET("/rides/:id", rh.GetRide)
	v1.POST("/rides/:id/assign", rh.AssignDriver)
	v1.POST("/rides/:id/complete", rh.CompleteRide)
	v1.POST("/rides/:id/cancel", rh.CancelRide)
	v1.POST("/fares/estimate", rh.EstimateFare)

	dh := NewDriverHandler(drivers, nearby)
	v1.POST("/drivers/location", dh.UpdateLocation)
	v1.POST("/drivers/status", dh.UpdateStatus)
	v1.GET("/drivers/nearby", dh.FindNearby)
	return r
}

func request(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ──────────────────────────────────────────────
// Error mapping
// ──────────────────────────────────────────────

func TestMapErrorToHTTPStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: service.ErrRideNotFound, want: http.StatusNotFound},
		{name: "conflict", err: service.ErrRideAlreadyAssigned, want: http.StatusConflict},
		{name: "forbidden", err: service.ErrNotRideParticipant, want: http.StatusForbidden},
		{name: "validation", err: service.ErrInvalidRadius, want: http.StatusBadRequest},
		{name: "infrastructure", err: fmt.Errorf("op: %w: %w", service.ErrInfrastructure, errors.New("dial tcp")), want: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, mapErrorToHTTPStatus(tc.err))
		})
	}
}

// ──────────────────────────────────────────────
// Rides
// ──────────────────────────────────────────────

func TestCreateRide_Created(t *testing.T) {
	t.Parallel()

	rides := &stubRideService{ride: sampleRide()}
	r := newRouter(rides, nil, nil)

	w := request(r, http.MethodPost, "/v1/rides", "p1", `{"pickup":{"lat":12.97,"lng":77.59},"dropoff":{"lat":13.0,"lng":77.6}}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "p1", rides.gotCaller.ID)
	assert.Equal(t, domain.Coordinate{Lat: 12.97, Lng: 77.59}, rides.gotPickup)
	require.NotNil(t, rides.gotDropoff)
	assert.Contains(t, w.Body.String(), `"status":"REQUESTED"`)
	assert.NotContains(t, w.Body.String(), "driver_id")
}

func TestCreateRide_Rejections(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		token string
		body  string
		want  int
	}{
		{name: "no token", token: "", body: `{"pickup":{"lat":1,"lng":1}}`, want: http.StatusUnauthorized},
		{name: "malformed body", token: "p1", body: `{`, want: http.StatusBadRequest},
		{name: "missing pickup", token: "p1", body: `{}`, want: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := newRouter(&stubRideService{ride: sampleRide()}, nil, nil)
			assert.Equal(t, tc.want, request(r, http.MethodPost, "/v1/rides", tc.token, tc.body).Code)
		})
	}
}

func TestListRideHistory_Paging(t *testing.T) {
	t.Parallel()

	rides := &stubRideService{ride: sampleRide()}
	r := newRouter(rides, nil, nil)

	w := request(r, http.MethodGet, "/v1/rides", "p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.DefaultPage, rides.gotPage)
	assert.Equal(t, service.DefaultLimit, rides.gotLimit)

	w = request(r, http.MethodGet, "/v1/rides?page=2&limit=5", "p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, rides.gotPage)
	assert.Equal(t, 5, rides.gotLimit)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = request(r, http.MethodGet, "/v1/rides?page=abc", "p1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRide_ServiceErrorsMapped(t *testing.T) {
	t.Parallel()

	r := newRouter(&stubRideService{err: service.ErrNotRideParticipant}, nil, nil)
	w := request(r, http.MethodGet, "/v1/rides/r1", "d1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "not a participant")
}

func TestAssignDriver_PassesDriverID(t *testing.T) {
	t.Parallel()

	rides := &stubRideService{err: service.ErrRideAlreadyAssigned}
	r := newRouter(rides, nil, nil)

	w := request(r, http.MethodPost, "/v1/rides/r1/assign", "d1", `{"driver_id":"d1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "d1", rides.gotDriver)
}

func TestCompleteRide_OptionalMetrics(t *testing.T) {
	t.Parallel()

	ride := sampleRide()
	ride.Status = domain.RideStatusCompleted
	price := 215.0
	ride.Price = &price

	rides := &stubRideService{ride: ride}
	r := newRouter(rides, nil, nil)

	w := request(r, http.MethodPost, "/v1/rides/r1/complete", "d1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, rides.gotMetrics.DistanceKm)
	assert.Contains(t, w.Body.String(), `"final_price":215`)

	w = request(r, http.MethodPost, "/v1/rides/r1/complete", "d1", `{"actual_distance_km":10,"actual_time_minutes":40}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, rides.gotMetrics.DistanceKm)
	assert.InDelta(t, 10.0, *rides.gotMetrics.DistanceKm, 1e-9)
	assert.InDelta(t, 40.0, *rides.gotMetrics.TimeMinutes, 1e-9)

	w = request(r, http.MethodPost, "/v1/rides/r1/complete", "d1", `{"actual_distance_km":"ten"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelRide_Reason(t *testing.T) {
	t.Parallel()

	rides := &stubRideService{ride: sampleRide()}
	r := newRouter(rides, nil, nil)

	w := request(r, http.MethodPost, "/v1/rides/r1/cancel", "p1", `{"reason":"changed plans"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "changed plans", rides.gotReason)

	w = request(r, http.MethodPost, "/v1/rides/r1/cancel", "p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, rides.gotReason)
}

func TestEstimateFare(t *testing.T) {
	t.Parallel()

	rides := &stubRideService{}
	r := newRouter(rides, nil, nil)

	w := request(r, http.MethodPost, "/v1/fares/estimate", "p1", `{"pickup":{"lat":1,"lng":1},"dropoff":{"lat":1.1,"lng":1}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"final_price":185`)

	w = request(r, http.MethodPost, "/v1/fares/estimate", "p1", `{"pickup":{"lat":1,"lng":1}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ──────────────────────────────────────────────
// Drivers
// ──────────────────────────────────────────────

func TestUpdateLocation(t *testing.T) {
	t.Parallel()

	drivers := &stubDriverService{}
	r := newRouter(nil, drivers, nil)

	w := request(r, http.MethodPost, "/v1/drivers/location", "d1", `{"lat":0,"lng":77.5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, drivers.gotLat)
	assert.Equal(t, 77.5, drivers.gotLng)

	w = request(r, http.MethodPost, "/v1/drivers/location", "d1", `{"lat":12.9}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()

	drivers := &stubDriverService{}
	r := newRouter(nil, drivers, nil)

	w := request(r, http.MethodPost, "/v1/drivers/status", "d1", `{"status":"ONLINE"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.DriverStatusOnline, drivers.gotStat)

	drivers.err = service.ErrDriverOnTrip
	w = request(r, http.MethodPost, "/v1/drivers/status", "d1", `{"status":"OFFLINE"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFindNearby(t *testing.T) {
	t.Parallel()

	nearby := &stubNearby{}
	r := newRouter(nil, nil, nearby)

	w := request(r, http.MethodGet, "/v1/drivers/nearby?lat=12.97&lng=77.59&radius=3", "p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.Coordinate{Lat: 12.97, Lng: 77.59}, nearby.gotAt)
	assert.Equal(t, 3.0, nearby.gotRadius)
	assert.Contains(t, w.Body.String(), `"driver_id":"d1"`)

	w = request(r, http.MethodGet, "/v1/drivers/nearby?lat=12.97&lng=77.59", "p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, nearby.gotRadius)

	testCases := []struct {
		name  string
		query string
	}{
		{name: "missing lng", query: "lat=12.97"},
		{name: "bad lat", query: "lat=north&lng=77.59"},
		{name: "bad radius", query: "lat=12.97&lng=77.59&radius=far"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := request(r, http.MethodGet, "/v1/drivers/nearby?"+tc.query, "p1", "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
