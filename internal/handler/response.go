package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/middleware"
	"ridehail/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RideResponse is the wire form of a ride.
type RideResponse struct {
	ID              string             `json:"id"`
	PassengerID     string             `json:"passenger_id"`
	DriverID        string             `json:"driver_id,omitempty"`
	Pickup          domain.Coordinate  `json:"pickup"`
	Dropoff         *domain.Coordinate `json:"dropoff,omitempty"`
	Status          string             `json:"status"`
	Price           *float64           `json:"price,omitempty"`
	SurgeMultiplier float64            `json:"surge_multiplier"`
	CreatedAt       time.Time          `json:"created_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	CancelledAt     *time.Time         `json:"cancelled_at,omitempty"`
	CancelledBy     string             `json:"cancelled_by,omitempty"`
	CancelReason    string             `json:"cancel_reason,omitempty"`
}

// DriverResponse is the wire form of a driver.
type DriverResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toRideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:              r.ID,
		PassengerID:     r.PassengerID,
		DriverID:        r.DriverID,
		Pickup:          r.Pickup,
		Dropoff:         r.Dropoff,
		Status:          string(r.Status),
		Price:           r.Price,
		SurgeMultiplier: r.SurgeMultiplier,
		CreatedAt:       r.CreatedAt,
		StartedAt:       optionalTime(r.StartedAt),
		CompletedAt:     optionalTime(r.CompletedAt),
		CancelledAt:     optionalTime(r.CancelledAt),
		CancelledBy:     r.CancelledBy,
		CancelReason:    r.CancelReason,
	}
}

func toRideResponses(rides []*domain.Ride) []RideResponse {
	out := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, toRideResponse(r))
	}
	return out
}

func toDriverResponse(d *domain.Driver) DriverResponse {
	return DriverResponse{
		ID:        d.ID,
		Name:      d.Name,
		VehicleID: d.VehicleID,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// callerOrAbort returns the authenticated caller, writing 401 if there is none.
func callerOrAbort(c *gin.Context) (domain.Caller, bool) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	return caller, ok
}

// respondError sends an error response with the appropriate HTTP status code.
// Server-side failures are attached to the context for the request logger.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service error kinds to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInfrastructure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
