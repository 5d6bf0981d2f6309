package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ridehail/internal/domain"
)

const driverLocationKey = "drivers:locations"

// ErrLocationNotFound is returned when a driver never reported a location.
var ErrLocationNotFound = errors.New("driver location not found")

// storedLocation is the JSON value kept per driver in the hash.
type storedLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	TS  int64   `json:"ts"` // unix milliseconds
}

// LocationStore keeps the last known location of every driver in a
// single Redis hash. Writes are last-write-wins.
type LocationStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client, now: time.Now}
}

// Upsert overwrites a driver's location, stamped with the current time.
func (s *LocationStore) Upsert(ctx context.Context, driverID string, lat, lng float64) (domain.DriverLocation, error) {
	ts := s.now().UTC().Truncate(time.Millisecond)
	data, err := json.Marshal(storedLocation{Lat: lat, Lng: lng, TS: ts.UnixMilli()})
	if err != nil {
		return domain.DriverLocation{}, err
	}

	if err := s.client.HSet(ctx, driverLocationKey, driverID, data).Err(); err != nil {
		return domain.DriverLocation{}, fmt.Errorf("hset location: %w", err)
	}

	return domain.DriverLocation{DriverID: driverID, Lat: lat, Lng: lng, Timestamp: ts}, nil
}

// Get returns a driver's location or ErrLocationNotFound.
func (s *LocationStore) Get(ctx context.Context, driverID string) (domain.DriverLocation, error) {
	data, err := s.client.HGet(ctx, driverLocationKey, driverID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.DriverLocation{}, ErrLocationNotFound
		}
		return domain.DriverLocation{}, fmt.Errorf("hget location: %w", err)
	}
	return decodeLocation(driverID, data)
}

// GetMany returns the locations of the given drivers in one round trip.
// Drivers without a location are absent from the result.
func (s *LocationStore) GetMany(ctx context.Context, driverIDs []string) (map[string]domain.DriverLocation, error) {
	result := make(map[string]domain.DriverLocation, len(driverIDs))
	if len(driverIDs) == 0 {
		return result, nil
	}

	values, err := s.client.HMGet(ctx, driverLocationKey, driverIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget locations: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		loc, err := decodeLocation(driverIDs[i], []byte(raw))
		if err != nil {
			continue
		}
		result[driverIDs[i]] = loc
	}
	return result, nil
}

// GetAll returns a snapshot of every stored location.
func (s *LocationStore) GetAll(ctx context.Context) ([]domain.DriverLocation, error) {
	values, err := s.client.HGetAll(ctx, driverLocationKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall locations: %w", err)
	}

	locations := make([]domain.DriverLocation, 0, len(values))
	for driverID, raw := range values {
		loc, err := decodeLocation(driverID, []byte(raw))
		if err != nil {
			continue
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// Remove deletes a driver's location.
func (s *LocationStore) Remove(ctx context.Context, driverID string) error {
	return s.client.HDel(ctx, driverLocationKey, driverID).Err()
}

func decodeLocation(driverID string, data []byte) (domain.DriverLocation, error) {
	var stored storedLocation
	if err := json.Unmarshal(data, &stored); err != nil {
		return domain.DriverLocation{}, fmt.Errorf("decode location of %s: %w", driverID, err)
	}
	return domain.DriverLocation{
		DriverID:  driverID,
		Lat:       stored.Lat,
		Lng:       stored.Lng,
		Timestamp: time.UnixMilli(stored.TS).UTC(),
	}, nil
}
