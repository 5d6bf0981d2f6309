package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/observability"
	"ridehail/internal/repository"
)

const (
	defaultRetryBatch = 50
	reseedLimit       = 1000
)

// RetryWorker re-runs matching for rides left REQUESTED.
type RetryWorker struct {
	dispatch *DispatchService
	poll     time.Duration
	batch    int
	logger   *zap.Logger
}

// NewRetryWorker creates a RetryWorker polling the dispatcher's queue.
func NewRetryWorker(dispatch *DispatchService, poll time.Duration, logger *zap.Logger) *RetryWorker {
	return &RetryWorker{
		dispatch: dispatch,
		poll:     poll,
		batch:    defaultRetryBatch,
		logger:   logger.Named("retry"),
	}
}

// Run polls until ctx is done.
func (w *RetryWorker) Run(ctx context.Context) error {
	if w.dispatch.queue == nil {
		return errors.New("retry worker: dispatcher has no retry queue")
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	if n, err := w.Reseed(ctx); err != nil {
		w.logger.Warn("failed to reseed retry queue", zap.Error(err))
	} else if n > 0 {
		w.logger.Info("requeued unmatched rides", zap.Int("rides", n))
	}

	w.logger.Info("retry worker started", zap.Duration("poll", w.poll))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retry worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil {
				w.logger.Warn("retry poll failed", zap.Error(err))
			}
		}
	}
}

// ProcessDue claims the rides whose retry is due and attempts to match
// each once. It returns the number of rides assigned.
func (w *RetryWorker) ProcessDue(ctx context.Context) (int, error) {
	d := w.dispatch
	ids, claimErr := d.queue.ClaimDue(ctx, d.now(), w.batch)

	// Claimed ids are already off the queue, so they are attempted even
	// when the claim stopped early.
	assigned := 0
	for _, id := range ids {
		if w.retry(ctx, id) {
			assigned++
		}
	}

	if depth, err := d.queue.Len(ctx); err == nil {
		observability.RetryQueueDepth.Set(float64(depth))
	}
	if claimErr != nil {
		return assigned, infraError("claim due retries", claimErr)
	}
	return assigned, nil
}

// Reseed queues REQUESTED rides the queue does not hold, such as rides
// created while Redis was unreachable. Queued rides keep their due time.
func (w *RetryWorker) Reseed(ctx context.Context) (int, error) {
	d := w.dispatch
	if d.queue == nil {
		return 0, errors.New("retry worker: dispatcher has no retry queue")
	}

	rides, err := d.rides.ListByStatus(ctx, domain.RideStatusRequested, reseedLimit)
	if err != nil {
		return 0, infraError("list requested rides", err)
	}

	due := d.now()
	added := 0
	for _, ride := range rides {
		ok, err := d.queue.ScheduleIfAbsent(ctx, ride.ID, due)
		if err != nil {
			return added, infraError("reseed retry queue", err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}

func (w *RetryWorker) retry(ctx context.Context, rideID string) bool {
	d := w.dispatch
	log := w.logger.With(zap.String("ride_id", rideID))

	ride, err := d.rides.GetByID(ctx, rideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			d.dequeue(ctx, rideID)
			return false
		}
		log.Warn("failed to load ride for retry", zap.Error(err))
		d.schedule(ctx, rideID, 1)
		return false
	}
	if !ride.Status.CanTransitionTo(domain.RideStatusAssigned) {
		d.dequeue(ctx, rideID)
		return false
	}

	attempt, err := d.queue.IncrAttempts(ctx, rideID)
	if err != nil {
		log.Warn("failed to count retry attempt", zap.Error(err))
		d.schedule(ctx, rideID, 1)
		return false
	}

	_, outcome, err := d.tryMatch(ctx, ride)
	if err != nil {
		log.Warn("retry matching failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	switch outcome {
	case matchAssigned:
		return true
	case matchRideUnavailable:
		d.dequeue(ctx, rideID)
		return false
	}

	if attempt >= d.config.MaxAttempts {
		observability.RetryGiveUps.Inc()
		log.Warn("giving up automatic matching, ride left for manual assignment", zap.Int("attempts", attempt))
		d.dequeue(ctx, rideID)
		return false
	}
	d.schedule(ctx, rideID, attempt+1)
	return false
}
