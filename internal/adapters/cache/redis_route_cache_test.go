package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/timeutil"
)

func newTestCache(t *testing.T) *RedisRouteCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisRouteCache(client, time.Minute)
}

func TestRedisRouteCacheMiss(t *testing.T) {
	c := newTestCache(t)
	run, ok, err := c.GetRun(context.Background(), "truck-1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, run)
}

func TestRedisRouteCachePutThenGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	run := &domain.RouteRun{
		TruckID:    1,
		DepartHub:  timeutil.New(8, 0, 0),
		TotalMiles: 12.5,
		ReturnTime: timeutil.New(9, 30, 0),
		Analysis: []domain.RunAnalysisEntry{
			{Location: domain.LocationKey{Name: "Stop A"}, PackageIDs: []int{1, 2}},
		},
	}

	require.NoError(t, c.PutRun(ctx, "truck-1", run))

	got, ok, err := c.GetRun(ctx, "truck-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, run.TruckID, got.TruckID)
	require.Equal(t, run.TotalMiles, got.TotalMiles)
	require.Equal(t, run.ReturnTime, got.ReturnTime)
	require.Len(t, got.Analysis, 1)
	require.Equal(t, "Stop A", got.Analysis[0].Location.Name)
}
