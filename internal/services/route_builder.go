package services

import (
	"context"
	"sort"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/platform/obs"
	"samedaydispatch/internal/timeutil"
)

// RouteBuilder decides, for a pool of available trucks, which package
// pools each truck should carry and hands each pool to a RunPlanner.
// Target selection follows the teacher's AssignPackagesByDistance
// band-assignment idea, generalized from a single hub-distance sort
// into three rules: earliest-deadline first, furthest-from-hub next,
// then the opposite side of that, with any leftover truck receiving
// the most spread-out remaining location as a paired-target fold.
type RouteBuilder struct {
	Store   *domain.PackageStore
	Planner *RunPlanner
}

// Assignment is one truck's chosen pool before a run is built.
type Assignment struct {
	Truck  *domain.Truck
	Pool   []*domain.Package
	Target domain.LocationKey
	Focus  domain.FocusKind
}

// BuildAssignments selects target locations for each idle truck and
// folds their available packages into pools, in deterministic order:
// earliest-deadline location first, then furthest-from-hub, then the
// location opposite that one, then the graph's most spread-out location,
// then (if trucks remain) the remaining candidate locations in deadline
// order; a location already chosen is skipped. A target whose location
// carries a required truck id, or whose pool would otherwise pull in a
// bundle, is built as a focused run (spec §4.6/§4.7).
func (rb *RouteBuilder) BuildAssignments(ctx context.Context, trucks []*domain.Truck, currentTime timeutil.TimeOfDay) (assignments []Assignment, err error) {
	defer obs.Time(ctx, "RouteBuilder.BuildAssignments")(&err)
	if rb.Planner.Store == nil {
		rb.Planner.Store = rb.Store
	}

	available := rb.Store.Available(currentTime, true)
	if len(available) == 0 {
		return nil, nil
	}

	locs := rb.Store.PackageLocations(available, true)
	if len(locs) == 0 {
		return nil, nil
	}

	targets, err := rb.selectTargets(locs, len(trucks))
	if err != nil {
		return nil, err
	}

	// paired-target folding: when two or more targets share a required
	// truck id, they are the same focused run rather than two separate
	// ones (spec §4.7).
	targets = rb.foldPairedTargets(targets)

	usedTrucks := map[int]bool{}
	pickTruck := func(target domain.LocationKey) *domain.Truck {
		var required int
		if l, ok := rb.Store.Graph.Lookup(target); ok {
			required = l.AssignedTruckID
		}
		if required != 0 {
			for _, t := range trucks {
				if t.TruckID == required && !usedTrucks[t.TruckID] {
					usedTrucks[t.TruckID] = true
					return t
				}
			}
		}
		for _, t := range trucks {
			if !usedTrucks[t.TruckID] {
				usedTrucks[t.TruckID] = true
				return t
			}
		}
		return nil
	}

	for _, target := range targets {
		truck := pickTruck(target)
		if truck == nil {
			break
		}
		l, _ := rb.Store.Graph.Lookup(target)
		focus := domain.FocusNone
		if l != nil && l.AssignedTruckID != 0 {
			focus = domain.FocusAssignedTruck
		} else if l != nil && l.HasBundledPackage {
			focus = domain.FocusBundledPackage
		}

		pool := rb.poolFor(target, available, truck.Capacity, truck.TruckID)
		if len(pool) == 0 {
			usedTrucks[truck.TruckID] = false
			continue
		}
		rb.markAssigned(pool)
		assignments = append(assignments, Assignment{Truck: truck, Pool: pool, Target: target, Focus: focus})
	}
	return assignments, nil
}

// foldPairedTargets merges any target sharing a non-zero required
// truck id with an earlier target into one, since both must ride the
// same run regardless of distance (spec §4.7 "paired-target fold").
func (rb *RouteBuilder) foldPairedTargets(targets []domain.LocationKey) []domain.LocationKey {
	byTruck := map[int]domain.LocationKey{}
	var out []domain.LocationKey
	for _, t := range targets {
		l, ok := rb.Store.Graph.Lookup(t)
		if !ok || l.AssignedTruckID == 0 {
			out = append(out, t)
			continue
		}
		if _, already := byTruck[l.AssignedTruckID]; already {
			continue
		}
		byTruck[l.AssignedTruckID] = t
		out = append(out, t)
	}
	return out
}

// selectTargets orders candidate locations by the earliest-deadline /
// furthest-from-hub / opposite-of-that / most-spread-out rules, never
// returning more than n locations.
func (rb *RouteBuilder) selectTargets(locs []domain.LocationKey, n int) ([]domain.LocationKey, error) {
	seen := map[domain.LocationKey]bool{}
	var out []domain.LocationKey
	add := func(k domain.LocationKey) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}

	candidates := make([]*domain.Location, 0, len(locs))
	for _, k := range locs {
		if l, ok := rb.Store.Graph.Lookup(k); ok {
			candidates = append(candidates, l)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].EarliestDeadline != candidates[j].EarliestDeadline {
			return candidates[i].EarliestDeadline < candidates[j].EarliestDeadline
		}
		return candidates[i].Key.Name < candidates[j].Key.Name
	})
	if len(candidates) > 0 {
		add(candidates[0].Key)
	}

	if furthest := rb.Store.Graph.FarthestFromHub(); furthest != nil && contains(locs, furthest.Key) {
		add(furthest.Key)
	}

	if len(out) > 0 {
		if opposite, err := rb.Store.Graph.FarthestFrom(out[len(out)-1]); err == nil && opposite != nil && contains(locs, opposite.Key) {
			add(opposite.Key)
		}
	}

	for len(out) < n {
		spread, err := rb.Store.Graph.MostSpreadOut()
		if err != nil {
			return out, err
		}
		if spread == nil {
			break
		}
		before := len(out)
		add(spread.Key)
		if len(out) == before {
			// MostSpreadOut doesn't exclude already-chosen locations;
			// fall back to remaining candidates in deadline order.
			added := false
			for _, c := range candidates {
				if !seen[c.Key] {
					add(c.Key)
					added = true
					break
				}
			}
			if !added {
				break
			}
		}
	}

	return out, nil
}

func contains(locs []domain.LocationKey, k domain.LocationKey) bool {
	for _, l := range locs {
		if l == k {
			return true
		}
	}
	return false
}

// poolFor collects packages at target plus nearby bundled/required-
// truck packages, bounded by capacity. truckID is the truck this pool
// is being built for: a package already pinned to a different truck is
// excluded outright (spec §3's truck-affinity invariant), and a bundle
// is only folded in whole — if every member doesn't fit in the
// remaining capacity, the entire bundle is skipped rather than split
// across trucks (spec §3/§8 scenario 4).
func (rb *RouteBuilder) poolFor(target domain.LocationKey, available []*domain.Package, capacity int, truckID int) []*domain.Package {
	var pool []*domain.Package
	seen := map[int]bool{}
	eligible := func(p *domain.Package) bool {
		return p.AssignedTruckID == 0 || p.AssignedTruckID == truckID
	}
	add := func(p *domain.Package) bool {
		if seen[p.ID] || len(pool) >= capacity || !eligible(p) {
			return false
		}
		seen[p.ID] = true
		pool = append(pool, p)
		return true
	}
	tryAddBundle := func(p *domain.Package) {
		peers := rb.Store.BundlePeers(p.ID)
		if len(peers) == 0 {
			add(p)
			return
		}
		members := append([]int{p.ID}, peers...)
		var toAdd []*domain.Package
		need := 0
		for _, id := range members {
			if seen[id] {
				continue
			}
			m, ok := rb.Store.ByID(id)
			if !ok || !eligible(m) {
				return // bundle can't ride this truck at all; skip wholesale
			}
			toAdd = append(toAdd, m)
			need++
		}
		if len(pool)+need > capacity {
			return // bundle would split across trucks; skip wholesale rather than partially load
		}
		for _, m := range toAdd {
			add(m)
		}
	}

	for _, p := range available {
		if p.Location == target {
			tryAddBundle(p)
		}
	}
	for _, p := range available {
		if len(pool) >= capacity {
			break
		}
		if seen[p.ID] {
			continue
		}
		if len(rb.Store.BundlePeers(p.ID)) == 0 {
			continue
		}
		for _, peerID := range rb.Store.BundlePeers(p.ID) {
			if seen[peerID] {
				tryAddBundle(p)
				break
			}
		}
	}
	return pool
}

// markAssigned flags every distinct location touched by pool as
// BeenAssigned so subsequent target selection skips it.
func (rb *RouteBuilder) markAssigned(pool []*domain.Package) {
	for _, k := range rb.Store.PackageLocations(pool, false) {
		if l, ok := rb.Store.Graph.Lookup(k); ok {
			l.BeenAssigned = true
		}
	}
}

// BuildRuns hands each assignment's pool to the planner. On a
// recoverable error (PackageNotArrived, UnconfirmedPackageDelivery) it
// rebuilds at the error's RetryAt time, and keeps doing so for each new
// recoverable error until the attempt bound (pool size + 2) is reached; on
// LateDelivery it retries with the lowest-priority package dropped,
// since a truck that cannot make every deadline is still worth
// dispatching with what it can make. An accepted OptimalHubReturn
// signal is not an error — the run is used as built. Any spare
// capacity left after a successful build is topped up via FillIn from
// the remaining available pool.
func (rb *RouteBuilder) BuildRuns(ctx context.Context, assignments []Assignment, departTime timeutil.TimeOfDay, leftover []*domain.Package) (runs []*domain.RouteRun, errs []error) {
	var firstErr error
	defer func() { obs.Time(ctx, "RouteBuilder.BuildRuns")(&firstErr) }()
	if rb.Planner.Store == nil {
		rb.Planner.Store = rb.Store
	}

	for _, a := range assignments {
		pool := a.Pool
		start := departTime
		var run *domain.RouteRun
		var err error

		for attempt := 0; attempt < len(pool)+2; attempt++ {
			run, err = rb.Planner.Build(ctx, a.Truck, pool, start, a.Focus, a.Target)
			if err == nil {
				break
			}
			re, ok := err.(*domain.RunError)
			if !ok {
				break
			}
			if re.Kind.Recoverable() {
				start = re.RetryAt
				continue
			}
			if re.Kind != domain.LateDelivery || len(pool) <= 1 {
				break
			}
			pool = dropLowestPriority(pool)
		}

		if err != nil {
			errs = append(errs, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := a.Truck.AddPackages(pool); err != nil {
			errs = append(errs, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if capacityLeft := a.Truck.Capacity - a.Truck.Count(); capacityLeft > 0 && len(leftover) > 0 {
			folded := rb.Planner.FillIn(run, leftover, capacityLeft, a.Truck.TruckID, departTime)
			if len(folded) > 0 {
				if err := a.Truck.AddPackages(folded); err != nil {
					errs = append(errs, err)
					if firstErr == nil {
						firstErr = err
					}
				} else {
					rb.markAssigned(folded)
				}
			}
		}
		runs = append(runs, run)
	}
	return runs, errs
}

// dropLowestPriority removes the package with the latest deadline
// (lowest delivery priority) from pool.
func dropLowestPriority(pool []*domain.Package) []*domain.Package {
	if len(pool) == 0 {
		return pool
	}
	worst := 0
	for i, p := range pool {
		if p.Deadline > pool[worst].Deadline {
			worst = i
		}
	}
	out := make([]*domain.Package, 0, len(pool)-1)
	out = append(out, pool[:worst]...)
	out = append(out, pool[worst+1:]...)
	return out
}
