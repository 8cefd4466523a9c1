package domain

import (
	"errors"
	"testing"

	"samedaydispatch/internal/timeutil"
)

func TestTruckAddPackageEnforcesCapacity(t *testing.T) {
	hub := LocationKey{Name: "HUB"}
	truck := NewTruck(1, 2, 18.0, hub)

	if err := truck.AddPackage(&Package{ID: 1}); err != nil {
		t.Fatalf("unexpected error adding first package: %v", err)
	}
	if err := truck.AddPackage(&Package{ID: 2}); err != nil {
		t.Fatalf("unexpected error adding second package: %v", err)
	}

	err := truck.AddPackage(&Package{ID: 3})
	var re *RunError
	if !errors.As(err, &re) || re.Kind != TruckCapacityExceeded {
		t.Fatalf("expected TruckCapacityExceeded, got %v", err)
	}
}

func TestTruckDeliverRemovesFromInventoryAndMarksPackage(t *testing.T) {
	hub := LocationKey{Name: "HUB"}
	truck := NewTruck(1, 16, 18.0, hub)
	p := &Package{ID: 1}
	if err := truck.AddPackage(p); err != nil {
		t.Fatalf("AddPackage: %v", err)
	}

	at := timeutil.New(9, 0, 0)
	if err := truck.Deliver(1, at); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if truck.Has(1) {
		t.Errorf("expected package removed from inventory after delivery")
	}
	deliveredAt, ok := p.DeliveredAt()
	if !ok || deliveredAt != at {
		t.Errorf("expected DeliveredAt=%v, got %v (ok=%v)", at, deliveredAt, ok)
	}
}

func TestTruckDeliverUnknownPackageFails(t *testing.T) {
	hub := LocationKey{Name: "HUB"}
	truck := NewTruck(1, 16, 18.0, hub)

	err := truck.Deliver(99, timeutil.New(9, 0, 0))
	var re *RunError
	if !errors.As(err, &re) || re.Kind != PackageNotOnTruck {
		t.Fatalf("expected PackageNotOnTruck, got %v", err)
	}
}

func TestTruckCommitRunResetsToHub(t *testing.T) {
	hub := LocationKey{Name: "HUB"}
	away := LocationKey{Name: "A"}
	truck := NewTruck(1, 16, 18.0, hub)
	truck.Dispatch(timeutil.New(8, 0, 0))
	truck.Travel(5, timeutil.Clock{MPH: 18.0}, away)

	// The simulator appends a dispatched run to Truck.Runs at dispatch
	// time, before CommitRun ever sees it — CommitRun must not append a
	// second time, or route history would double up.
	run := &RouteRun{TruckID: 1, TotalMiles: 10, ReturnTime: timeutil.New(9, 0, 0)}
	truck.Runs = append(truck.Runs, run)
	truck.CommitRun(run, hub)

	if truck.Dispatched {
		t.Errorf("expected truck to be idle after CommitRun")
	}
	if truck.CurrentLocation != hub {
		t.Errorf("expected truck back at hub, got %v", truck.CurrentLocation)
	}
	if truck.Count() != 0 {
		t.Errorf("expected empty inventory after CommitRun, got %d", truck.Count())
	}
	if len(truck.Runs) != 1 {
		t.Errorf("expected exactly 1 run in history, not a duplicate, got %d", len(truck.Runs))
	}
}

func TestTruckAddPackageRejectsConflictingTruckAssignment(t *testing.T) {
	hub := LocationKey{Name: "HUB"}
	truck := NewTruck(1, 16, 18.0, hub)
	p := &Package{ID: 1, AssignedTruckID: 2}

	err := truck.AddPackage(p)
	var re *RunError
	if !errors.As(err, &re) || re.Kind != InvalidRouteRun {
		t.Fatalf("expected InvalidRouteRun, got %v", err)
	}
}
