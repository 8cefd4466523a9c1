package services

import (
	"context"
	"testing"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/timeutil"
)

func buildStarGraph(t *testing.T) (*domain.DistanceGraph, domain.LocationKey, domain.LocationKey, domain.LocationKey) {
	t.Helper()
	hub := &domain.Location{Key: domain.LocationKey{Name: "HUB"}, IsHub: true}
	a := &domain.Location{Key: domain.LocationKey{Name: "A"}}
	b := &domain.Location{Key: domain.LocationKey{Name: "B"}}

	dist := map[domain.LocationKey]map[domain.LocationKey]float64{
		hub.Key: {a.Key: 1, b.Key: 10},
		a.Key:   {b.Key: 9},
	}
	g, err := domain.NewDistanceGraph([]*domain.Location{hub, a, b}, dist)
	if err != nil {
		t.Fatalf("NewDistanceGraph: %v", err)
	}
	return g, hub.Key, a.Key, b.Key
}

func TestRouteBuilderBuildAssignmentsFillsOneTruckPerTarget(t *testing.T) {
	g, hub, a, b := buildStarGraph(t)
	store := domain.NewPackageStore(g, 16)
	store.Add(&domain.Package{ID: 1, Location: a, Status: domain.AtHub, IsVerifiedAddress: true})
	store.Add(&domain.Package{ID: 2, Location: b, Status: domain.AtHub, IsVerifiedAddress: true})

	planner := newTestPlannerWithStore(g, store)
	rb := &RouteBuilder{Store: store, Planner: planner}

	trucks := []*domain.Truck{
		domain.NewTruck(1, 16, 18.0, hub),
		domain.NewTruck(2, 16, 18.0, hub),
	}

	assignments, err := rb.BuildAssignments(context.Background(), trucks, timeutil.New(8, 0, 0))
	if err != nil {
		t.Fatalf("BuildAssignments: %v", err)
	}
	if len(assignments) == 0 {
		t.Fatalf("expected at least one assignment")
	}

	total := 0
	for _, a := range assignments {
		total += len(a.Pool)
	}
	if total != 2 {
		t.Fatalf("expected both packages assigned across trucks, got %d", total)
	}
}

func TestRouteBuilderBuildAssignmentsIgnoresUnarrivedPackages(t *testing.T) {
	g, hub, a, _ := buildStarGraph(t)
	store := domain.NewPackageStore(g, 16)
	store.Add(&domain.Package{ID: 1, Location: a, Status: domain.AtHub, HubArrivalTime: timeutil.New(12, 0, 0)})

	planner := newTestPlannerWithStore(g, store)
	rb := &RouteBuilder{Store: store, Planner: planner}
	trucks := []*domain.Truck{domain.NewTruck(1, 16, 18.0, hub)}

	assignments, err := rb.BuildAssignments(context.Background(), trucks, timeutil.New(8, 0, 0))
	if err != nil {
		t.Fatalf("BuildAssignments: %v", err)
	}
	if len(assignments) != 0 {
		t.Fatalf("expected no assignments before the package has arrived, got %d", len(assignments))
	}
}

func TestRouteBuilderBuildRunsDropsLowestPriorityOnLateDelivery(t *testing.T) {
	g, hub, a, _ := buildStarGraph(t)
	store := domain.NewPackageStore(g, 16)

	truck := domain.NewTruck(1, 16, 18.0, hub)
	planner := newTestPlannerWithStore(g, store)
	rb := &RouteBuilder{Store: store, Planner: planner}

	// The first package's deadline is impossible to hit; the second has
	// none. BuildRuns should drop the impossible one and still commit a
	// run for the rest.
	pool := []*domain.Package{
		{ID: 1, Location: a, Deadline: timeutil.New(8, 0, 1), IsVerifiedAddress: true},
		{ID: 2, Location: a, IsVerifiedAddress: true},
	}
	store.Add(pool[0])
	store.Add(pool[1])
	assignments := []Assignment{{Truck: truck, Pool: pool, Target: a}}

	runs, errs := rb.BuildRuns(context.Background(), assignments, timeutil.New(8, 0, 0), nil)
	if len(errs) != 0 {
		t.Fatalf("expected no errors after dropping the unmeetable package, got %v", errs)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if !truck.Has(2) {
		t.Errorf("expected package 2 loaded onto the truck")
	}
	if truck.Has(1) {
		t.Errorf("expected package 1 dropped from the truck")
	}
}

func TestRouteBuilderPoolForEnforcesRequiredTruckAffinity(t *testing.T) {
	g, _, a, b := buildStarGraph(t)
	store := domain.NewPackageStore(g, 16)
	pinned := &domain.Package{ID: 1, Location: a, Status: domain.AtHub, IsVerifiedAddress: true, AssignedTruckID: 2}
	store.Add(pinned)
	store.Add(&domain.Package{ID: 2, Location: b, Status: domain.AtHub, IsVerifiedAddress: true})

	planner := newTestPlannerWithStore(g, store)
	rb := &RouteBuilder{Store: store, Planner: planner}

	pool := rb.poolFor(a, store.All(), 16, 1)
	for _, p := range pool {
		if p.ID == 1 {
			t.Fatalf("expected package pinned to truck 2 excluded from truck 1's pool")
		}
	}
}

func TestRouteBuilderPoolForKeepsBundleAtomic(t *testing.T) {
	g, _, a, _ := buildStarGraph(t)
	store := domain.NewPackageStore(g, 16)
	p1 := &domain.Package{ID: 1, Location: a, Status: domain.AtHub, IsVerifiedAddress: true}
	p2 := &domain.Package{ID: 2, Location: a, Status: domain.AtHub, IsVerifiedAddress: true}
	store.Add(p1)
	store.Add(p2)
	store.Bundle(1, 2)

	planner := newTestPlannerWithStore(g, store)
	rb := &RouteBuilder{Store: store, Planner: planner}

	// Capacity 1 cannot hold the whole bundle: it must be excluded
	// wholesale, not split.
	pool := rb.poolFor(a, store.All(), 1, 1)
	if len(pool) != 0 {
		t.Fatalf("expected bundle excluded wholesale when it doesn't fit, got %d packages", len(pool))
	}

	pool = rb.poolFor(a, store.All(), 16, 1)
	if len(pool) != 2 {
		t.Fatalf("expected both bundle members to ride together, got %d", len(pool))
	}
}
