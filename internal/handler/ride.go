package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/pricing"
	"ridehail/internal/service"
)

// RideService is the ride lifecycle surface the handler drives.
type RideService interface {
	CreateRide(ctx context.Context, caller domain.Caller, pickup domain.Coordinate, dropoff *domain.Coordinate) (*domain.Ride, error)
	GetRide(ctx context.Context, caller domain.Caller, rideID string) (*domain.Ride, error)
	ListRideHistory(ctx context.Context, caller domain.Caller, page, limit int) (*service.RidePage, error)
	ListActiveRides(ctx context.Context, caller domain.Caller) ([]*domain.Ride, error)
	AssignDriver(ctx context.Context, caller domain.Caller, rideID, driverID string) (*domain.Ride, error)
	AcceptRide(ctx context.Context, caller domain.Caller, rideID string) (*domain.Ride, error)
	StartRide(ctx context.Context, caller domain.Caller, rideID string) (*domain.Ride, error)
	CompleteRide(ctx context.Context, caller domain.Caller, rideID string, metrics service.TripMetrics) (*domain.Ride, pricing.Quote, error)
	CancelRide(ctx context.Context, caller domain.Caller, rideID, reason string) (*domain.Ride, error)
	EstimateFare(ctx context.Context, pickup, dropoff domain.Coordinate, at time.Time) (pricing.Quote, error)
}

var _ RideService = (*service.RideService)(nil)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rides RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rides RideService) *RideHandler {
	return &RideHandler{rides: rides}
}

// CreateRideRequest is the HTTP request body for creating a ride.
type CreateRideRequest struct {
	Pickup  *domain.Coordinate `json:"pickup"`
	Dropoff *domain.Coordinate `json:"dropoff,omitempty"`
}

// AssignDriverRequest is the HTTP request body for assigning a driver.
type AssignDriverRequest struct {
	DriverID string `json:"driver_id"`
}

// CompleteRideRequest carries the measured trip, both fields optional.
type CompleteRideRequest struct {
	ActualDistanceKm  *float64 `json:"actual_distance_km,omitempty"`
	ActualTimeMinutes *float64 `json:"actual_time_minutes,omitempty"`
}

// CompleteRideResponse is the completed ride with its fare breakdown.
type CompleteRideResponse struct {
	Ride RideResponse  `json:"ride"`
	Fare pricing.Quote `json:"fare"`
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	Reason string `json:"reason,omitempty"`
}

// EstimateFareRequest is the HTTP request body for a fare estimate.
type EstimateFareRequest struct {
	Pickup      *domain.Coordinate `json:"pickup"`
	Dropoff     *domain.Coordinate `json:"dropoff"`
	RequestedAt *time.Time         `json:"requested_at,omitempty"`
}

// RideHistoryResponse is one page of ride history.
type RideHistoryResponse struct {
	Rides []RideResponse `json:"rides"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Pickup == nil {
		respondError(c, service.ErrInvalidPickupLocation)
		return
	}

	ride, err := h.rides.CreateRide(c.Request.Context(), caller, *req.Pickup, req.Dropoff)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toRideResponse(ride))
}

// ListRideHistory handles GET /v1/rides?page=&limit=
func (h *RideHandler) ListRideHistory(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	page, err := queryInt(c, "page", service.DefaultPage)
	if err != nil {
		respondError(c, service.ErrInvalidPage)
		return
	}
	limit, err := queryInt(c, "limit", service.DefaultLimit)
	if err != nil {
		respondError(c, service.ErrInvalidPage)
		return
	}

	result, err := h.rides.ListRideHistory(c.Request.Context(), caller, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, RideHistoryResponse{
		Rides: toRideResponses(result.Rides),
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
	})
}

// ListActiveRides handles GET /v1/rides/active
func (h *RideHandler) ListActiveRides(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	rides, err := h.rides.ListActiveRides(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"rides": toRideResponses(rides)})
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	ride, err := h.rides.GetRide(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// AcceptRide handles POST /v1/rides/:id/accept
func (h *RideHandler) AcceptRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	ride, err := h.rides.AcceptRide(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// AssignDriver handles POST /v1/rides/:id/assign
func (h *RideHandler) AssignDriver(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var req AssignDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rides.AssignDriver(c.Request.Context(), caller, c.Param("id"), req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// StartRide handles POST /v1/rides/:id/start
func (h *RideHandler) StartRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	ride, err := h.rides.StartRide(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// CompleteRide handles POST /v1/rides/:id/complete
func (h *RideHandler) CompleteRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var req CompleteRideRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	ride, fare, err := h.rides.CompleteRide(c.Request.Context(), caller, c.Param("id"), service.TripMetrics{
		DistanceKm:  req.ActualDistanceKm,
		TimeMinutes: req.ActualTimeMinutes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, CompleteRideResponse{Ride: toRideResponse(ride), Fare: fare})
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var req CancelRideRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	ride, err := h.rides.CancelRide(c.Request.Context(), caller, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// EstimateFare handles POST /v1/fares/estimate
func (h *RideHandler) EstimateFare(c *gin.Context) {
	var req EstimateFareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Pickup == nil {
		respondError(c, service.ErrInvalidPickupLocation)
		return
	}
	if req.Dropoff == nil {
		respondError(c, service.ErrInvalidDropoff)
		return
	}
	var at time.Time
	if req.RequestedAt != nil {
		at = *req.RequestedAt
	}

	quote, err := h.rides.EstimateFare(c.Request.Context(), *req.Pickup, *req.Dropoff, at)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, quote)
}

// bindOptionalJSON decodes the body into v if there is one. It writes 400 and
// returns false on a malformed body.
func bindOptionalJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func queryFloat(c *gin.Context, name string) (float64, bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, true, err
}
