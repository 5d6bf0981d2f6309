package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/handler"
	"ridehail/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler   *handler.RideHandler
	DriverHandler *handler.DriverHandler
	WSHandler     http.Handler
	Verifier      middleware.TokenVerifier
	RateLimiter   middleware.Limiter // nil disables rate limiting
	RedisClient   *redis.Client      // nil disables idempotent replay
	NewRelicApp   *newrelic.Application
	Logger        *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(deps.Logger))
	router.Use(middleware.LoggerMiddleware(deps.Logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORSMiddleware())
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.WSHandler != nil {
		router.GET("/ws", gin.WrapH(deps.WSHandler))
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.Verifier))
	v1.Use(middleware.NewRelicCallerMiddleware())
	if deps.RateLimiter != nil {
		v1.Use(middleware.RateLimitMiddleware(deps.RateLimiter, deps.Logger))
	}
	if deps.RedisClient != nil {
		v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))
	}

	rides := v1.Group("/rides")
	{
		rides.POST("", middleware.RequireRole(domain.RolePassenger), deps.RideHandler.CreateRide)
		rides.GET("", deps.RideHandler.ListRideHistory)
		rides.GET("/active", deps.RideHandler.ListActiveRides)
		rides.GET("/:id", deps.RideHandler.GetRide)
		rides.POST("/:id/accept", middleware.RequireRole(domain.RoleDriver), deps.RideHandler.AcceptRide)
		rides.POST("/:id/assign", middleware.RequireRole(domain.RoleDriver, domain.RoleAdmin), deps.RideHandler.AssignDriver)
		rides.POST("/:id/start", middleware.RequireRole(domain.RoleDriver), deps.RideHandler.StartRide)
		rides.POST("/:id/complete", middleware.RequireRole(domain.RoleDriver), deps.RideHandler.CompleteRide)
		rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
	}

	v1.POST("/fares/estimate", deps.RideHandler.EstimateFare)

	drivers := v1.Group("/drivers")
	{
		drivers.POST("", middleware.RequireRole(domain.RoleAdmin, domain.RoleDriver), deps.DriverHandler.RegisterDriver)
		drivers.POST("/location", middleware.RequireRole(domain.RoleDriver), deps.DriverHandler.UpdateLocation)
		drivers.POST("/status", middleware.RequireRole(domain.RoleDriver), deps.DriverHandler.UpdateStatus)
		drivers.GET("/nearby", deps.DriverHandler.FindNearby)
		drivers.GET("/locations", middleware.RequireRole(domain.RoleAdmin), deps.DriverHandler.ListLocations)
		drivers.GET("/stats", deps.DriverHandler.Stats)
		drivers.GET("/:id/location", deps.DriverHandler.GetLocation)
	}

	return router
}
