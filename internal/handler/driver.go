package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// DriverService is the driver registry surface the handler drives.
type DriverService interface {
	RegisterDriver(ctx context.Context, caller domain.Caller, req service.RegisterDriverRequest) (*domain.Driver, error)
	UpdateLocation(ctx context.Context, caller domain.Caller, lat, lng float64) (domain.DriverLocation, error)
	UpdateStatus(ctx context.Context, caller domain.Caller, status domain.DriverStatus) (*domain.Driver, error)
	GetLocation(ctx context.Context, driverID string) (domain.DriverLocation, error)
	ListLocations(ctx context.Context, caller domain.Caller) ([]domain.DriverLocation, error)
	Stats(ctx context.Context, caller domain.Caller, driverID string) (*domain.DriverStats, error)
}

// NearbyFinder finds online drivers around a point.
type NearbyFinder interface {
	FindNearbyDrivers(ctx context.Context, at domain.Coordinate, radiusKm float64) ([]service.Candidate, error)
}

var (
	_ DriverService = (*service.DriverService)(nil)
	_ NearbyFinder  = (*service.DispatchService)(nil)
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	drivers DriverService
	nearby  NearbyFinder
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(drivers DriverService, nearby NearbyFinder) *DriverHandler {
	return &DriverHandler{drivers: drivers, nearby: nearby}
}

// RegisterDriverRequest is the HTTP request body for driver registration.
type RegisterDriverRequest struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	VehicleID string `json:"vehicle_id,omitempty"`
}

// UpdateLocationRequest is the HTTP request body for updating driver location.
type UpdateLocationRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// UpdateStatusRequest is the HTTP request body for going online or offline.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// RegisterDriver handles POST /v1/drivers
func (h *DriverHandler) RegisterDriver(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var req RegisterDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	driver, err := h.drivers.RegisterDriver(c.Request.Context(), caller, service.RegisterDriverRequest{
		ID:        req.ID,
		Name:      req.Name,
		VehicleID: req.VehicleID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toDriverResponse(driver))
}

// UpdateLocation handles POST /v1/drivers/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Lat == nil || req.Lng == nil {
		respondError(c, service.ErrInvalidLocation)
		return
	}

	loc, err := h.drivers.UpdateLocation(c.Request.Context(), caller, *req.Lat, *req.Lng)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, loc)
}

// UpdateStatus handles POST /v1/drivers/status
func (h *DriverHandler) UpdateStatus(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	driver, err := h.drivers.UpdateStatus(c.Request.Context(), caller, domain.DriverStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDriverResponse(driver))
}

// FindNearby handles GET /v1/drivers/nearby?lat=&lng=&radius=
func (h *DriverHandler) FindNearby(c *gin.Context) {
	lat, hasLat, latErr := queryFloat(c, "lat")
	lng, hasLng, lngErr := queryFloat(c, "lng")
	if !hasLat || !hasLng || latErr != nil || lngErr != nil {
		respondError(c, service.ErrInvalidLocation)
		return
	}
	radius, _, err := queryFloat(c, "radius")
	if err != nil {
		respondError(c, service.ErrInvalidRadius)
		return
	}

	drivers, err := h.nearby.FindNearbyDrivers(c.Request.Context(), domain.Coordinate{Lat: lat, Lng: lng}, radius)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"drivers": drivers})
}

// ListLocations handles GET /v1/drivers/locations
func (h *DriverHandler) ListLocations(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	locs, err := h.drivers.ListLocations(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"locations": locs})
}

// Stats handles GET /v1/drivers/stats?driver_id=
func (h *DriverHandler) Stats(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	stats, err := h.drivers.Stats(c.Request.Context(), caller, c.Query("driver_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, stats)
}

// GetLocation handles GET /v1/drivers/:id/location
func (h *DriverHandler) GetLocation(c *gin.Context) {
	loc, err := h.drivers.GetLocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, loc)
}
