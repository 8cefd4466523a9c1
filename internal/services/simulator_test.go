package services

import (
	"context"
	"sync"
	"testing"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/timeutil"
)

// fakeSink records every snapshot it is handed, for assertions after
// DeliverySimulator.Run completes.
type fakeSink struct {
	mu        sync.Mutex
	snapshots map[int]domain.StatusSnapshot
}

func newFakeSink() *fakeSink {
	return &fakeSink{snapshots: map[int]domain.StatusSnapshot{}}
}

func (f *fakeSink) WriteSnapshot(_ context.Context, packageID int, _ timeutil.TimeOfDay, snap domain.StatusSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[packageID] = snap
	return nil
}

type fakeMetrics struct {
	mu         sync.Mutex
	ticks      int
	deliveries int
	miles      float64
}

func (f *fakeMetrics) ObserveTick(timeutil.TimeOfDay) {
	f.mu.Lock()
	f.ticks++
	f.mu.Unlock()
}

func (f *fakeMetrics) ObserveDelivery(int, bool) {
	f.mu.Lock()
	f.deliveries++
	f.mu.Unlock()
}

func (f *fakeMetrics) ObserveMileage(_ int, miles float64) {
	f.mu.Lock()
	f.miles += miles
	f.mu.Unlock()
}

func TestDeliverySimulatorRunDeliversAllAndCommitsRuns(t *testing.T) {
	g, hub, a, b := buildStarGraph(t)
	store := domain.NewPackageStore(g, 16)
	store.Add(&domain.Package{ID: 1, Location: a, Status: domain.AtHub, IsVerifiedAddress: true})
	store.Add(&domain.Package{ID: 2, Location: b, Status: domain.AtHub, IsVerifiedAddress: true})

	clock := timeutil.Clock{MPH: 18.0}
	planner := newTestPlannerWithStore(g, store)
	builder := &RouteBuilder{Store: store, Planner: planner}
	trucks := []*domain.Truck{
		domain.NewTruck(1, 16, 18.0, hub),
		domain.NewTruck(2, 16, 18.0, hub),
	}

	sim := NewDeliverySimulator(store, trucks, builder, clock)
	sim.DispatchTime = timeutil.New(8, 0, 0)
	sim.ReturnTime = timeutil.New(9, 0, 0)
	sim.AddressChangeTime = timeutil.New(10, 0, 0)
	sink := newFakeSink()
	metrics := &fakeMetrics{}
	sim.Sink = sink
	sim.Metrics = metrics

	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	p1, _ := store.ByID(1)
	p2, _ := store.ByID(2)
	if p1.Status != domain.Delivered {
		t.Errorf("expected package 1 delivered, got %v", p1.Status)
	}
	if p2.Status != domain.Delivered {
		t.Errorf("expected package 2 delivered, got %v", p2.Status)
	}

	if metrics.ticks == 0 {
		t.Errorf("expected at least one tick observed")
	}
	if metrics.miles == 0 {
		t.Errorf("expected a committed run to report its mileage")
	}
	if metrics.deliveries != 2 {
		t.Errorf("expected 2 deliveries observed, got %d", metrics.deliveries)
	}
	if len(sink.snapshots) != 2 {
		t.Errorf("expected 2 snapshots written, got %d", len(sink.snapshots))
	}
}

func TestDeliverySimulatorRunAppliesDelayedArrival(t *testing.T) {
	g, hub, a, _ := buildStarGraph(t)
	store := domain.NewPackageStore(g, 16)
	store.Add(&domain.Package{
		ID:                1,
		Location:          a,
		Status:            domain.OnRouteToDepot,
		HubArrivalTime:    timeutil.New(8, 30, 0),
		IsVerifiedAddress: true,
	})

	clock := timeutil.Clock{MPH: 18.0}
	planner := newTestPlannerWithStore(g, store)
	builder := &RouteBuilder{Store: store, Planner: planner}
	trucks := []*domain.Truck{domain.NewTruck(1, 16, 18.0, hub)}

	sim := NewDeliverySimulator(store, trucks, builder, clock)
	sim.DispatchTime = timeutil.New(8, 0, 0)
	sim.ReturnTime = timeutil.New(9, 30, 0)
	sim.AddressChangeTime = timeutil.New(12, 0, 0)

	signals, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	p, _ := store.ByID(1)
	if p.Status != domain.Delivered {
		t.Errorf("expected the delayed package delivered by day's end, got %v", p.Status)
	}

	found := false
	for _, s := range signals {
		if s.Kind == domain.DelayedPackagesArrived {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a DelayedPackagesArrived signal, got %v", signals)
	}
}
