package domain

import (
	"fmt"

	"samedaydispatch/internal/timeutil"
)

// Truck is a capacity-bounded package carrier. Its inventory is a
// SlotTable keyed by package id — composition, not inheritance, per
// §9 — so the "at most C packages" invariant is the same data
// structure used for PackageStore's by-id index, just sized to the
// truck's own capacity.
type Truck struct {
	TruckID  int
	Capacity int
	MPH      float64

	inventory *SlotTable[*Package]

	CurrentLocation LocationKey
	CurrentTime     timeutil.TimeOfDay
	Dispatched      bool
	MilesDriven     float64

	Runs []*RouteRun
}

// NewTruck builds an idle truck parked at hub with an empty inventory.
func NewTruck(id, capacity int, mph float64, hub LocationKey) *Truck {
	return &Truck{
		TruckID:         id,
		Capacity:        capacity,
		MPH:             mph,
		inventory:       NewSlotTable[*Package](capacity),
		CurrentLocation: hub,
	}
}

// Count is the number of packages currently loaded.
func (t *Truck) Count() int { return t.inventory.Len() }

// AddPackage loads a single package, enforcing the capacity bound with
// t.inventory.Len() rather than bucket occupancy (the slot table's own
// contract permits collisions within a bucket — see SlotTable.Put).
//
// A package already pinned to a different truck (assigned_truck_id set
// by an earlier run's commit) is rejected with InvalidRouteRun rather
// than silently reassigned, per spec §3's truck-affinity invariant.
func (t *Truck) AddPackage(p *Package) error {
	if p.AssignedTruckID != 0 && p.AssignedTruckID != t.TruckID {
		return newRunError(InvalidRouteRun, t.TruckID,
			fmt.Sprintf("package %d is pinned to truck %d", p.ID, p.AssignedTruckID))
	}
	if t.inventory.Len() >= t.Capacity {
		return newRunError(TruckCapacityExceeded, t.TruckID,
			"truck is at full capacity")
	}
	if _, exists := t.inventory.Get(p.ID); exists {
		return nil
	}
	t.inventory.Put(p.ID, p)
	p.AssignedTruckID = t.TruckID
	return nil
}

// AddPackages loads each of pkgs, rolling back nothing on partial
// failure — a full truck stops as soon as it is full, leaving the
// caller to route the remainder another way.
func (t *Truck) AddPackages(pkgs []*Package) error {
	for _, p := range pkgs {
		if err := t.AddPackage(p); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether package id is currently loaded.
func (t *Truck) Has(id int) bool {
	_, ok := t.inventory.Get(id)
	return ok
}

// Packages returns every currently loaded package, in id order.
func (t *Truck) Packages() []*Package {
	var out []*Package
	t.inventory.Each(func(_ int, p *Package) { out = append(out, p) })
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ID > out[j].ID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Dispatch marks the truck as having left the hub at departTime.
func (t *Truck) Dispatch(departTime timeutil.TimeOfDay) {
	t.Dispatched = true
	t.CurrentTime = departTime
}

// Deliver marks a single loaded package delivered at the truck's
// current location and time, and removes it from inventory.
func (t *Truck) Deliver(id int, at timeutil.TimeOfDay) error {
	p, ok := t.inventory.Get(id)
	if !ok {
		return newRunError(PackageNotOnTruck, t.TruckID, "package not loaded on this truck")
	}
	p.Deliver(at)
	t.inventory.Delete(id)
	return nil
}

// Travel advances the truck's position and clock by the given
// distance in miles, using the truck's own MPH.
func (t *Truck) Travel(miles float64, clock timeutil.Clock, to LocationKey) {
	t.CurrentTime = clock.Arrival(miles, t.CurrentTime, 0)
	t.CurrentLocation = to
	t.MilesDriven += miles
}

// Unload clears the truck's remaining inventory (end-of-run reset,
// mirrors a truck arriving back at the hub with nothing left aboard).
func (t *Truck) Unload() {
	var ids []int
	t.inventory.Each(func(id int, _ *Package) { ids = append(ids, id) })
	for _, id := range ids {
		t.inventory.Delete(id)
	}
}

// CommitRun resets a completed run's truck back to hub, ready for the
// next load. The run itself is already present in t.Runs — appended at
// dispatch time, when simulator.dispatchIdleTrucks hands the truck its
// RouteRun — so CommitRun must not append it again.
func (t *Truck) CommitRun(run *RouteRun, hub LocationKey) {
	t.MilesDriven += run.TotalMiles
	t.CurrentLocation = hub
	t.CurrentTime = run.ReturnTime
	t.Dispatched = false
	t.Unload()
}
