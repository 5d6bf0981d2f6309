package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ridehail/internal/app"
	"ridehail/internal/auth"
	"ridehail/internal/config"
	"ridehail/internal/events"
	"ridehail/internal/handler"
	"ridehail/internal/pricing"
	"ridehail/internal/realtime"
	internalRedis "ridehail/internal/redis"
	"ridehail/internal/service"
)

func main() {
	cfg := config.Load()

	logger, err := app.NewLogger(cfg.App)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// New Relic first so the database and Redis clients can be instrumented.
	nrApp, err := app.NewNewRelicApp(cfg.NewRelic)
	if err != nil {
		logger.Warn("new relic disabled", zap.Error(err))
	} else if nrApp != nil {
		logger.Info("new relic enabled", zap.String("app", cfg.NewRelic.AppName))
		defer nrApp.Shutdown(5 * time.Second)
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelConnect()

	stores, err := app.NewStores(connectCtx, cfg, nrApp, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer stores.Close()

	redisClient, err := app.NewRedisClient(connectCtx, cfg.Redis, nrApp)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	sink, err := app.NewEventSink(cfg.Events)
	if err != nil {
		return fmt.Errorf("open event sink: %w", err)
	}
	defer sink.Close()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, worker := wireServer(runCtx, cfg, stores, redisClient, sink, nrApp, logger)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("retry worker stopped", zap.Error(err))
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		stop()
		<-workerDone
		return err
	case <-runCtx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	<-workerDone
	return nil
}

// wireServer wires all dependencies and returns the HTTP server and the
// dispatch retry worker. Background goroutines stop with ctx.
func wireServer(
	ctx context.Context,
	cfg *config.Config,
	stores *app.Stores,
	redisClient *redis.Client,
	sink events.Sink,
	nrApp *newrelic.Application,
	logger *zap.Logger,
) (*http.Server, *service.RetryWorker) {
	// Redis-backed state.
	locations := internalRedis.NewLocationStore(redisClient)
	queue := internalRedis.NewRetryQueue(redisClient)

	// Realtime delivery.
	hub := realtime.NewHub()
	var relay *realtime.RedisRelay
	if cfg.Realtime.RelayEnabled() {
		relay = realtime.NewRedisRelay(redisClient, hub, logger.Named("relay"))
		go func() {
			if err := relay.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("realtime relay stopped", zap.Error(err))
			}
		}()
	}
	notifier := realtime.NewNotifier(hub, relay, sink, logger.Named("notifier"))

	// Services.
	dispatch := service.NewDispatchService(
		stores.Rides, stores.Drivers, stores.Tx, locations, queue, notifier, logger.Named("dispatch"),
		service.DispatchConfig{
			DefaultRadiusKm: cfg.Dispatch.DefaultRadiusKm,
			NearbyRadiusKm:  cfg.Dispatch.NearbyRadiusKm,
			LocationMaxAge:  cfg.Dispatch.LocationMaxAge,
			RetryBase:       cfg.Dispatch.RetryBase,
			RetryMax:        cfg.Dispatch.RetryMax,
			MaxAttempts:     cfg.Dispatch.MaxAttempts,
		},
	)
	demand := service.NewSurgeSignal(dispatch, stores.Rides, cfg.Pricing.SurgeRadiusKm)
	engine := pricing.NewEngine(app.NewSurgeProvider(cfg.Pricing, demand))

	// Validate has already checked the zone.
	tz, _ := time.LoadLocation(cfg.Pricing.Timezone)
	rideService := service.NewRideService(stores.Rides, stores.Tx, dispatch, engine, notifier, logger.Named("ride"), tz)
	driverService := service.NewDriverService(stores.Drivers, stores.Rides, locations, notifier, logger.Named("driver"))
	worker := service.NewRetryWorker(dispatch, cfg.Dispatch.RetryPoll, logger)

	// Transport.
	verifier := auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	wsConfig := realtime.DefaultWSConfig()
	wsConfig.SendBuffer = cfg.Realtime.SendBuffer
	wsConfig.HandshakeTimeout = cfg.Realtime.HandshakeTimeout
	wsConfig.PingInterval = cfg.Realtime.PingInterval

	deps := app.RouterDeps{
		RideHandler:   handler.NewRideHandler(rideService),
		DriverHandler: handler.NewDriverHandler(driverService, dispatch),
		WSHandler:     realtime.NewWSHandler(hub, verifier, driverService, wsConfig, logger.Named("ws")),
		Verifier:      verifier,
		RedisClient:   redisClient,
		NewRelicApp:   nrApp,
		Logger:        logger,
	}
	if cfg.RateLimit.Enabled {
		deps.RateLimiter = internalRedis.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, worker
}
