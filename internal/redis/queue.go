package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key names for the dispatch retry queue.
const (
	retryQueueKey    = "dispatch:retry"
	retryAttemptsKey = "dispatch:retry:attempts"
)

// RetryQueue holds unmatched rides ordered by their next matching attempt.
// Entries live in a sorted set scored by due time in unix milliseconds.
type RetryQueue struct {
	client *redis.Client
}

// NewRetryQueue creates a new RetryQueue.
func NewRetryQueue(client *redis.Client) *RetryQueue {
	return &RetryQueue{client: client}
}

// Schedule (re)schedules a ride for a matching attempt at due.
func (q *RetryQueue) Schedule(ctx context.Context, rideID string, due time.Time) error {
	return q.client.ZAdd(ctx, retryQueueKey, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: rideID,
	}).Err()
}

// ScheduleIfAbsent schedules a ride only when it is not queued yet. It
// reports whether the ride was added.
func (q *RetryQueue) ScheduleIfAbsent(ctx context.Context, rideID string, due time.Time) (bool, error) {
	added, err := q.client.ZAddNX(ctx, retryQueueKey, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: rideID,
	}).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

// ClaimDue removes and returns up to limit rides due at or before now.
// A ride is returned to exactly one caller even with several workers. On
// error the rides already removed are returned along with it.
func (q *RetryQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	candidates, err := q.client.ZRangeByScore(ctx, retryQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore retry queue: %w", err)
	}

	claimed := make([]string, 0, len(candidates))
	for _, rideID := range candidates {
		removed, err := q.client.ZRem(ctx, retryQueueKey, rideID).Result()
		if err != nil {
			return claimed, fmt.Errorf("zrem retry queue: %w", err)
		}
		if removed == 1 {
			claimed = append(claimed, rideID)
		}
	}
	return claimed, nil
}

// IncrAttempts records one more matching attempt and returns the total.
func (q *RetryQueue) IncrAttempts(ctx context.Context, rideID string) (int, error) {
	n, err := q.client.HIncrBy(ctx, retryAttemptsKey, rideID, 1).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Remove drops a ride and its attempt counter.
func (q *RetryQueue) Remove(ctx context.Context, rideID string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, retryQueueKey, rideID)
		pipe.HDel(ctx, retryAttemptsKey, rideID)
		return nil
	})
	return err
}

// Len returns the number of scheduled rides.
func (q *RetryQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, retryQueueKey).Result()
}
