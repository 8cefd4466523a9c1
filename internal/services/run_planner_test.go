package services

import (
	"context"
	"testing"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/timeutil"
)

// buildLinearGraph returns a hub plus three locations spaced 1 mile
// apart along a line (hub-A-B-C), so nearest-neighbor order is
// trivially predictable.
func buildLinearGraph(t *testing.T) (*domain.DistanceGraph, domain.LocationKey, domain.LocationKey, domain.LocationKey) {
	t.Helper()
	hub := &domain.Location{Key: domain.LocationKey{Name: "HUB"}, IsHub: true}
	a := &domain.Location{Key: domain.LocationKey{Name: "A"}}
	b := &domain.Location{Key: domain.LocationKey{Name: "B"}}
	c := &domain.Location{Key: domain.LocationKey{Name: "C"}}

	dist := map[domain.LocationKey]map[domain.LocationKey]float64{
		hub.Key: {a.Key: 1, b.Key: 2, c.Key: 3},
		a.Key:   {b.Key: 1, c.Key: 2},
		b.Key:   {c.Key: 1},
	}
	g, err := domain.NewDistanceGraph([]*domain.Location{hub, a, b, c}, dist)
	if err != nil {
		t.Fatalf("NewDistanceGraph: %v", err)
	}
	return g, a.Key, b.Key, c.Key
}

func newTestPlanner(g *domain.DistanceGraph) *RunPlanner {
	return &RunPlanner{
		Graph:                   g,
		Clock:                   timeutil.Clock{MPH: 18.0},
		FillInAllowance:         3.0,
		HubReturnAllowance:      2.5,
		ClosestNeighborMinimum:  8,
		RevisitThresholdMiles:   2.0,
		FillInDelayedRadius:     0.75,
		FillInOtherTruckRadius:  0.75,
		FillInUnconfirmedRadius: 3.0,
	}
}

func newTestPlannerWithStore(g *domain.DistanceGraph, store *domain.PackageStore) *RunPlanner {
	p := newTestPlanner(g)
	p.Store = store
	return p
}

func TestRunPlannerBuildOrdersNearestNeighborFirst(t *testing.T) {
	g, a, b, c := buildLinearGraph(t)
	planner := newTestPlanner(g)
	truck := domain.NewTruck(1, 16, 18.0, g.Hub().Key)

	pool := []*domain.Package{
		{ID: 1, Location: c, IsVerifiedAddress: true},
		{ID: 2, Location: a, IsVerifiedAddress: true},
		{ID: 3, Location: b, IsVerifiedAddress: true},
	}

	run, err := planner.Build(context.Background(), truck, pool, timeutil.New(8, 0, 0), domain.FocusNone, domain.LocationKey{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if run.StopCount() != 3 {
		t.Fatalf("expected 3 stops, got %d", run.StopCount())
	}
	if run.Stops[0].Key != a || run.Stops[1].Key != b || run.Stops[2].Key != c {
		t.Fatalf("expected order A,B,C, got %v,%v,%v", run.Stops[0].Key, run.Stops[1].Key, run.Stops[2].Key)
	}
}

func TestRunPlannerBuildRejectsEmptyPool(t *testing.T) {
	g, _, _, _ := buildLinearGraph(t)
	planner := newTestPlanner(g)
	truck := domain.NewTruck(1, 16, 18.0, g.Hub().Key)

	_, err := planner.Build(context.Background(), truck, nil, timeutil.New(8, 0, 0), domain.FocusNone, domain.LocationKey{})
	re, ok := err.(*domain.RunError)
	if !ok || re.Kind != domain.EmptyPool {
		t.Fatalf("expected EmptyPool, got %v", err)
	}
}

func TestRunPlannerVerifyRaisesLateDelivery(t *testing.T) {
	g, a, _, _ := buildLinearGraph(t)
	planner := newTestPlanner(g)
	truck := domain.NewTruck(1, 16, 18.0, g.Hub().Key)

	// 1 mile at 18 mph takes 200 seconds; a deadline one second after
	// depart cannot possibly be met.
	pool := []*domain.Package{
		{ID: 1, Location: a, Deadline: timeutil.New(8, 0, 1), IsVerifiedAddress: true},
	}

	_, err := planner.Build(context.Background(), truck, pool, timeutil.New(8, 0, 0), domain.FocusNone, domain.LocationKey{})
	re, ok := err.(*domain.RunError)
	if !ok || re.Kind != domain.LateDelivery {
		t.Fatalf("expected LateDelivery, got %v", err)
	}
}

func TestRunPlannerVerifyRaisesUnconfirmedPackageDeliveryWithRetryAt(t *testing.T) {
	g, a, _, _ := buildLinearGraph(t)
	planner := newTestPlanner(g)
	truck := domain.NewTruck(1, 16, 18.0, g.Hub().Key)

	pool := []*domain.Package{
		{ID: 1, Location: a, IsVerifiedAddress: false},
	}

	_, err := planner.Build(context.Background(), truck, pool, timeutil.New(8, 0, 0), domain.FocusNone, domain.LocationKey{})
	re, ok := err.(*domain.RunError)
	if !ok || re.Kind != domain.UnconfirmedPackageDelivery {
		t.Fatalf("expected UnconfirmedPackageDelivery, got %v", err)
	}
	if re.RetryAt == 0 {
		t.Errorf("expected a non-zero RetryAt on the recoverable error")
	}
}

func TestRunPlannerFillInFoldsCheapDetour(t *testing.T) {
	g, a, b, _ := buildLinearGraph(t)
	planner := newTestPlanner(g)
	truck := domain.NewTruck(1, 16, 18.0, g.Hub().Key)

	pool := []*domain.Package{{ID: 1, Location: a, IsVerifiedAddress: true}}
	run, err := planner.Build(context.Background(), truck, pool, timeutil.New(8, 0, 0), domain.FocusNone, domain.LocationKey{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	extra := []*domain.Package{{ID: 2, Location: b, IsVerifiedAddress: true}}
	folded := planner.FillIn(run, extra, 15, truck.TruckID, timeutil.New(8, 0, 0))
	if len(folded) != 1 {
		t.Fatalf("expected 1 package folded in, got %d", len(folded))
	}
	if run.StopCount() != 2 {
		t.Fatalf("expected fill-in to add a stop, got %d stops", run.StopCount())
	}
}

func TestRunPlannerFillInExcludesOtherTruckZone(t *testing.T) {
	g, a, b, _ := buildLinearGraph(t)
	store := domain.NewPackageStore(g, 16)
	pinned := &domain.Package{ID: 9, Location: b, IsVerifiedAddress: true, AssignedTruckID: 2}
	store.Add(pinned)

	planner := newTestPlannerWithStore(g, store)
	truck := domain.NewTruck(1, 16, 18.0, g.Hub().Key)

	pool := []*domain.Package{{ID: 1, Location: a, IsVerifiedAddress: true}}
	run, err := planner.Build(context.Background(), truck, pool, timeutil.New(8, 0, 0), domain.FocusNone, domain.LocationKey{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	extra := []*domain.Package{{ID: 2, Location: b, IsVerifiedAddress: true}}
	folded := planner.FillIn(run, extra, 15, truck.TruckID, timeutil.New(8, 0, 0))
	if len(folded) != 0 {
		t.Fatalf("expected location B excluded as another truck's zone, got %d folded", len(folded))
	}
}
