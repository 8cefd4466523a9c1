// Package cache holds adapters for ports.RouteCache, grounded on the
// teacher's SQLDistanceCache/SqliteDistanceCache GetMany/PutMany
// shape, reduced here to a single get/put over a whole RouteRun
// rather than per-pair distance rows.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/timeutil"
)

// RedisRouteCache caches a built RouteRun under a caller-chosen key
// (truck id + pool fingerprint), so a dispatch re-plan triggered by a
// recoverable error doesn't repeat an identical search. This wires in
// the teacher's go-redis/miniredis pair, both listed in its go.mod as
// unused indirect dependencies.
type RedisRouteCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisRouteCache(client *redis.Client, ttl time.Duration) *RedisRouteCache {
	return &RedisRouteCache{Client: client, TTL: ttl}
}

type cachedRun struct {
	TruckID      int                        `json:"truck_id"`
	DepartHub    timeutil.TimeOfDay         `json:"depart_hub"`
	StopNames    []string                   `json:"stop_names"`
	ArrivalTimes []timeutil.TimeOfDay       `json:"arrival_times"`
	Analysis     []domain.RunAnalysisEntry  `json:"analysis"`
	TotalMiles   float64                    `json:"total_miles"`
	ReturnTime   timeutil.TimeOfDay         `json:"return_time"`
}

// GetRun returns the cached run, with Stops left nil — callers only
// ever use a cache hit to skip a rebuild, never to read stop-level
// Location pointers back out, so only the scalar/analysis fields
// round-trip through JSON.
func (c *RedisRouteCache) GetRun(ctx context.Context, key string) (*domain.RouteRun, bool, error) {
	if c.Client == nil {
		return nil, false, errors.New("redis route cache: client is nil")
	}

	raw, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis route cache: get %q: %w", key, err)
	}

	var cr cachedRun
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, false, fmt.Errorf("redis route cache: decode %q: %w", key, err)
	}

	run := &domain.RouteRun{
		TruckID:      cr.TruckID,
		DepartHub:    cr.DepartHub,
		ArrivalTimes: cr.ArrivalTimes,
		Analysis:     cr.Analysis,
		TotalMiles:   cr.TotalMiles,
		ReturnTime:   cr.ReturnTime,
	}
	return run, true, nil
}

func (c *RedisRouteCache) PutRun(ctx context.Context, key string, run *domain.RouteRun) error {
	if c.Client == nil {
		return errors.New("redis route cache: client is nil")
	}

	stopNames := make([]string, len(run.Stops))
	for i, l := range run.Stops {
		stopNames[i] = l.Key.Name
	}
	cr := cachedRun{
		TruckID:      run.TruckID,
		DepartHub:    run.DepartHub,
		StopNames:    stopNames,
		ArrivalTimes: run.ArrivalTimes,
		Analysis:     run.Analysis,
		TotalMiles:   run.TotalMiles,
		ReturnTime:   run.ReturnTime,
	}

	raw, err := json.Marshal(cr)
	if err != nil {
		return fmt.Errorf("redis route cache: encode %q: %w", key, err)
	}
	if err := c.Client.Set(ctx, key, raw, c.TTL).Err(); err != nil {
		return fmt.Errorf("redis route cache: set %q: %w", key, err)
	}
	return nil
}
