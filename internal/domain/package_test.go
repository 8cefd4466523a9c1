package domain

import (
	"testing"

	"samedaydispatch/internal/timeutil"
)

func newTestGraph(t *testing.T) (*DistanceGraph, LocationKey, LocationKey, LocationKey) {
	t.Helper()
	hub := &Location{Key: LocationKey{Name: "HUB"}, IsHub: true}
	a := &Location{Key: LocationKey{Name: "A"}}
	b := &Location{Key: LocationKey{Name: "B"}}

	dist := map[LocationKey]map[LocationKey]float64{
		hub.Key: {a.Key: 1, b.Key: 2},
		a.Key:   {b.Key: 1.5},
	}
	g, err := NewDistanceGraph([]*Location{hub, a, b}, dist)
	if err != nil {
		t.Fatalf("NewDistanceGraph: %v", err)
	}
	return g, hub.Key, a.Key, b.Key
}

func TestPackageStoreBundlePeers(t *testing.T) {
	g, _, a, b := newTestGraph(t)
	store := NewPackageStore(g, 16)

	p1 := &Package{ID: 1, Location: a, Status: AtHub}
	p2 := &Package{ID: 2, Location: b, Status: AtHub}
	p3 := &Package{ID: 3, Location: a, Status: AtHub}
	store.Add(p1)
	store.Add(p2)
	store.Add(p3)

	store.Bundle(1, 2)
	store.Bundle(2, 3)

	peers := store.BundlePeers(1)
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %d: %v", len(peers), peers)
	}

	loc, _ := g.Lookup(a)
	if !loc.HasBundledPackage {
		t.Errorf("expected location A to be flagged HasBundledPackage")
	}
}

func TestPackageStoreUpdateLocation(t *testing.T) {
	g, _, a, b := newTestGraph(t)
	store := NewPackageStore(g, 16)

	p := &Package{ID: 1, Location: a, Status: AtHub}
	store.Add(p)

	if len(store.AtLocation(a)) != 1 {
		t.Fatalf("expected 1 package at A before move")
	}

	store.UpdateLocation(p, b)

	if len(store.AtLocation(a)) != 0 {
		t.Errorf("expected 0 packages at A after move")
	}
	if len(store.AtLocation(b)) != 1 {
		t.Errorf("expected 1 package at B after move")
	}
}

func TestPackageSnapshotAtCollapsesSameTimestampTuple(t *testing.T) {
	p := &Package{ID: 1}

	t0 := timeutil.New(8, 0, 0)
	p.RecordStatus(t0, StatusSnapshot{Status: AtHub})
	p.RecordStatus(t0, StatusSnapshot{Status: Loaded})

	snap, ok := p.SnapshotAt(t0)
	if !ok {
		t.Fatalf("expected a snapshot at t0")
	}
	if snap.Status != Loaded {
		t.Errorf("expected last tuple entry (Loaded), got %v", snap.Status)
	}

	if _, ok := p.SnapshotAt(t0 - 1); ok {
		t.Errorf("expected no snapshot before the first recorded observation")
	}

	t1 := timeutil.New(9, 0, 0)
	p.RecordStatus(t1, StatusSnapshot{Status: OutForDelivery})

	snap, ok = p.SnapshotAt(timeutil.New(8, 30, 0))
	if !ok || snap.Status != Loaded {
		t.Errorf("expected the most recent prior observation (Loaded), got %v, ok=%v", snap.Status, ok)
	}
}

func TestPackageStoreBulkStatusUpdatePromotesArrivedPackages(t *testing.T) {
	g, _, a, _ := newTestGraph(t)
	store := NewPackageStore(g, 16)

	arrival := timeutil.New(4, 0, 0)
	p := &Package{ID: 1, Location: a, Status: OnRouteToDepot, HubArrivalTime: arrival, IsVerifiedAddress: true}
	store.Add(p)

	resolve := func(*Package) (LocationKey, bool) { return a, true }

	arrived, addressUpdated := store.BulkStatusUpdate(arrival, timeutil.New(10, 20, 0), resolve)
	if !arrived {
		t.Fatalf("expected arrived=true once HubArrivalTime has passed")
	}
	if addressUpdated {
		t.Errorf("expected addressUpdated=false for an already-verified package")
	}
	if p.Status != AtHub {
		t.Errorf("expected package promoted to AtHub, got %v", p.Status)
	}
}
