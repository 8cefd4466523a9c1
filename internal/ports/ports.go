// Package ports defines the boundary interfaces the planning and
// simulation services depend on, mirroring the teacher's
// ports.DistanceProvider/ports.PackageRepository split: the services
// package never imports a concrete adapter directly.
package ports

import (
	"context"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/timeutil"
)

// GraphLoader builds the immutable DistanceGraph from whatever source
// an adapter wraps (CSV grid, database row set, ...).
type GraphLoader interface {
	LoadGraph(ctx context.Context) (*domain.DistanceGraph, error)
}

// PackageLoader builds the initial Package set for a day's run.
type PackageLoader interface {
	LoadPackages(ctx context.Context, graph *domain.DistanceGraph) ([]*domain.Package, error)
}

// RouteCache is a boundary for caching a computed RouteRun so a
// re-plan of the same truck/pool doesn't repeat the search, keyed by
// the caller's own cache key (typically truck id + pool fingerprint).
type RouteCache interface {
	GetRun(ctx context.Context, key string) (*domain.RouteRun, bool, error)
	PutRun(ctx context.Context, key string, run *domain.RouteRun) error
}

// SnapshotSink receives package status snapshots as the simulator
// advances, for durable audit/export independent of the in-memory
// PackageStore.
type SnapshotSink interface {
	WriteSnapshot(ctx context.Context, packageID int, at timeutil.TimeOfDay, snap domain.StatusSnapshot) error
}

// MetricsSink receives fleet-level counters as the simulator runs.
type MetricsSink interface {
	ObserveTick(at timeutil.TimeOfDay)
	ObserveDelivery(truckID int, late bool)
	ObserveMileage(truckID int, miles float64)
}
