package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/platform/obs"
	"samedaydispatch/internal/timeutil"
)

// RunPlanner builds a single RouteRun for one truck out of a pool of
// available packages: nearest-neighbor ordering, a 2-opt pass to
// shorten the resulting tour, a fill-in pass that folds in any
// remaining pool packages whose detour cost is cheap enough, and a
// final check for whether returning to hub now beats continuing the
// search — grounded on the teacher's NearestNeighborRoute/PlanRoute
// greedy loop, generalized with the extra passes the richer domain
// model calls for.
type RunPlanner struct {
	Graph *domain.DistanceGraph
	Clock timeutil.Clock
	Store *domain.PackageStore

	// FillInAllowance bounds how much extra mileage a fill-in insertion
	// may cost relative to the direct leg it interrupts.
	FillInAllowance float64
	// HubReturnAllowance bounds the hub-insertion cost that still
	// counts as "cheap" for OptimalHubReturn, spec §4.6.
	HubReturnAllowance float64
	// ClosestNeighborMinimum is the minimum number of distinct stops
	// below which the planner skips the 2-opt pass (not worth the passes).
	ClosestNeighborMinimum int

	// RevisitThresholdMiles is the minimum mileage a relocation must
	// save before a stop is worth revisiting out of order, spec §4.6.
	RevisitThresholdMiles float64

	// Fill-in exclusion radii, spec §4.6: a candidate location is
	// excluded from fill-in if it sits within FillInDelayedRadius of a
	// location still holding a delayed (not-yet-arrived) package,
	// within FillInOtherTruckRadius of a location whose packages are
	// pinned to a different truck, or within FillInUnconfirmedRadius of
	// a location holding an unconfirmed-address package.
	FillInDelayedRadius    float64
	FillInOtherTruckRadius float64
	FillInUnconfirmedRadius float64
}

// Build routes truck through as much of pool as fits, honoring
// deadlines, returning the committed RouteRun. pool must contain only
// packages not yet assigned elsewhere; Build does not mutate it.
//
// focus and target describe why this pool was assembled (spec §4.6's
// ASSIGNED_TRUCK / BUNDLED_PACKAGE focused runs); a plain
// closest-neighbor build passes domain.FocusNone and a zero target.
func (rp *RunPlanner) Build(ctx context.Context, truck *domain.Truck, pool []*domain.Package, departTime timeutil.TimeOfDay, focus domain.FocusKind, target domain.LocationKey) (run *domain.RouteRun, err error) {
	defer obs.Time(ctx, "RunPlanner.Build")(&err)

	if len(pool) == 0 {
		return nil, &domain.RunError{Kind: domain.EmptyPool, TruckID: truck.TruckID, Detail: "no packages in pool"}
	}

	byLoc := groupByLocation(pool)
	locs := make([]domain.LocationKey, 0, len(byLoc))
	for k := range byLoc {
		locs = append(locs, k)
	}

	order, err := rp.nearestNeighborOrder(locs, target)
	if err != nil {
		return nil, &domain.RunError{Kind: domain.UnknownLocation, TruckID: truck.TruckID, Detail: err.Error(), Cause: err}
	}

	if len(order) >= rp.ClosestNeighborMinimum {
		order = rp.twoOpt(order, target)
	}
	order = rp.revisitOptimize(order)

	poolSize := len(pool)
	run, err = rp.materialize(truck, order, byLoc, departTime, poolSize)
	if err != nil {
		return nil, err
	}
	run.TargetLocation = target
	run.FocusedRun = focus

	if err := rp.verify(run, byLoc, departTime); err != nil {
		return nil, err
	}

	if err := rp.commit(run, truck); err != nil {
		return nil, err
	}

	return run, nil
}

func groupByLocation(pool []*domain.Package) map[domain.LocationKey][]*domain.Package {
	byLoc := make(map[domain.LocationKey][]*domain.Package)
	for _, p := range pool {
		byLoc[p.Location] = append(byLoc[p.Location], p)
	}
	return byLoc
}

// nearestNeighborOrder greedily visits the closest unvisited location
// at each step, starting from the hub, tie-breaking on the location's
// name for determinism, except that ties within 1.5 miles favor
// whichever candidate is the run's target location — the direct
// descendant of the teacher's min-duration greedy selection with its
// "d < best || (d == best && name < bestName)" tie-break, extended
// per spec §4.6's target-affinity tie-break.
func (rp *RunPlanner) nearestNeighborOrder(locs []domain.LocationKey, target domain.LocationKey) ([]domain.LocationKey, error) {
	remaining := make(map[domain.LocationKey]bool, len(locs))
	for _, l := range locs {
		remaining[l] = true
	}

	order := make([]domain.LocationKey, 0, len(locs))
	current := rp.Graph.Hub().Key

	for len(remaining) > 0 {
		var best domain.LocationKey
		bestDist := math.MaxFloat64
		found := false
		for l := range remaining {
			d, err := rp.Graph.Distance(current, l)
			if err != nil {
				return nil, err
			}
			switch {
			case !found:
				best, bestDist, found = l, d, true
			case l == target && d <= bestDist+1.5:
				best, bestDist = l, d
			case best == target && d+1.5 >= bestDist:
				// keep the target: l is not more than 1.5 miles closer
			case d < bestDist || (d == bestDist && l.Name < best.Name):
				best, bestDist = l, d
			}
		}
		order = append(order, best)
		delete(remaining, best)
		current = best
	}
	return order, nil
}

// twoOpt repeatedly reverses sub-segments of order when doing so
// shortens the hub-to-hub tour, stopping once a full pass finds no
// improvement. This is deliberately the teacher's plain pairwise
// swap search, not a full Lin-Kernighan style solver — spec §4.6's
// Non-goals explicitly disclaim an optimal TSP solver — with one
// addition: among equally-improving swaps, prefer the one that keeps
// target adjacent to its nearest neighbor (spec §4.6's tie-break).
func (rp *RunPlanner) twoOpt(order []domain.LocationKey, target domain.LocationKey) []domain.LocationKey {
	improved := true
	for improved {
		improved = false
		bestI, bestJ, bestGain := -1, -1, 1e-9
		for i := 0; i < len(order)-1; i++ {
			for j := i + 1; j < len(order); j++ {
				gain := rp.segmentGain(order, i, j)
				if gain < bestGain {
					continue
				}
				if bestI >= 0 && gain == bestGain && !touchesTarget(order, bestI, bestJ, target) && touchesTarget(order, i, j, target) {
					bestI, bestJ, bestGain = i, j, gain
					continue
				}
				if gain > bestGain {
					bestI, bestJ, bestGain = i, j, gain
				}
			}
		}
		if bestI >= 0 {
			reverse(order, bestI, bestJ)
			improved = true
		}
	}
	return order
}

func touchesTarget(order []domain.LocationKey, i, j int, target domain.LocationKey) bool {
	return order[i] == target || order[j] == target
}

func (rp *RunPlanner) segmentGain(order []domain.LocationKey, i, j int) float64 {
	before := rp.edgeCost(order, i-1, i) + rp.edgeCost(order, j, j+1)
	after := rp.edgeCostBetween(rp.at(order, i-1), rp.at(order, j)) + rp.edgeCostBetween(rp.at(order, i), rp.at(order, j+1))
	return before - after
}

func (rp *RunPlanner) at(order []domain.LocationKey, i int) domain.LocationKey {
	if i < 0 || i >= len(order) {
		return rp.Graph.Hub().Key
	}
	return order[i]
}

func (rp *RunPlanner) edgeCost(order []domain.LocationKey, i, j int) float64 {
	return rp.edgeCostBetween(rp.at(order, i), rp.at(order, j))
}

func (rp *RunPlanner) edgeCostBetween(a, b domain.LocationKey) float64 {
	if a == b {
		return 0
	}
	d, err := rp.Graph.Distance(a, b)
	if err != nil {
		return 0
	}
	return d
}

func reverse(order []domain.LocationKey, i, j int) {
	for i < j {
		order[i], order[j] = order[j], order[i]
		i++
		j--
	}
}

// revisitOptimize relocates a single stop to a different position in
// the tour when doing so saves more than RevisitThresholdMiles of
// total mileage, spec §4.6's revisit-optimization pass. After each
// relocation it rescans from the first stop, and it stops once a full
// scan finds no relocation that saves more than the threshold.
func (rp *RunPlanner) revisitOptimize(order []domain.LocationKey) []domain.LocationKey {
	if rp.RevisitThresholdMiles <= 0 || len(order) < 3 {
		return order
	}
	improved := true
	for improved {
		improved = false
		for i := 0; i < len(order); i++ {
			loc := order[i]
			without := append(append([]domain.LocationKey{}, order[:i]...), order[i+1:]...)
			bestPos, bestCost := -1, math.MaxFloat64
			for pos := 0; pos <= len(without); pos++ {
				candidate := insertAt(without, pos, loc)
				cost := rp.tourCost(candidate)
				if cost < bestCost {
					bestPos, bestCost = pos, cost
				}
			}
			current := rp.tourCost(order)
			if bestPos >= 0 && current-bestCost > rp.RevisitThresholdMiles {
				order = insertAt(without, bestPos, loc)
				improved = true
				break
			}
		}
	}
	return order
}

func insertAt(locs []domain.LocationKey, pos int, loc domain.LocationKey) []domain.LocationKey {
	out := make([]domain.LocationKey, 0, len(locs)+1)
	out = append(out, locs[:pos]...)
	out = append(out, loc)
	out = append(out, locs[pos:]...)
	return out
}

func (rp *RunPlanner) tourCost(order []domain.LocationKey) float64 {
	total := 0.0
	for i := 0; i <= len(order); i++ {
		total += rp.edgeCost(order, i-1, i)
	}
	return total
}

// materialize walks the ordered stop list and builds the committed
// RouteRun, including arrival times and the per-(previous,location)
// analysis table, truncating early with an OptimalHubReturn signal
// once the return detour is cheap AND enough of the pool has already
// been delivered AND packages remain elsewhere unassigned — spec
// §4.6's three-way condition, not a pure cost cap.
func (rp *RunPlanner) materialize(truck *domain.Truck, order []domain.LocationKey, byLoc map[domain.LocationKey][]*domain.Package, departTime timeutil.TimeOfDay, poolSize int) (*domain.RouteRun, error) {
	hub := rp.Graph.Hub().Key
	run := &domain.RouteRun{TruckID: truck.TruckID, DepartHub: departTime}

	prev := hub
	currentTime := departTime
	var totalMiles float64
	var delivered []int
	var visited []domain.LocationKey
	minOptimalDeparture := timeutil.EndOfDay

	enoughDelivered := func() bool {
		if truck.Capacity == 0 {
			return true
		}
		return len(delivered) >= poolSize%truck.Capacity
	}

	for idx, loc := range order {
		d, err := rp.Graph.Distance(prev, loc)
		if err != nil {
			return nil, &domain.RunError{Kind: domain.UnknownLocation, TruckID: truck.TruckID, Detail: err.Error(), Cause: err}
		}

		hubBack := 0.0
		if prev != hub {
			hubBack, err = rp.Graph.HubDistance(prev)
			if err != nil {
				return nil, &domain.RunError{Kind: domain.UnknownLocation, TruckID: truck.TruckID, Detail: err.Error(), Cause: err}
			}
		}
		onward, err := rp.Graph.HubDistance(loc)
		if err != nil {
			return nil, &domain.RunError{Kind: domain.UnknownLocation, TruckID: truck.TruckID, Detail: err.Error(), Cause: err}
		}
		insertionCost := d + onward - hubBack

		if idx > 0 && insertionCost > 0 && insertionCost <= rp.HubReturnAllowance &&
			enoughDelivered() && rp.moreUnassignedRemain(order[idx:]) {
			run.ReturnTime = rp.Clock.Arrival(hubBack, currentTime, 0)
			run.TotalMiles = totalMiles + hubBack
			run.Signal = &domain.RunSignal{Kind: domain.OptimalHubReturn, TruckID: truck.TruckID, AtStop: idx}
			return run, nil
		}

		arrival := rp.Clock.Arrival(d, currentTime, 0)
		pkgs := byLoc[loc]

		earliest := timeutil.EndOfDay
		ids := make([]int, 0, len(pkgs))
		for _, p := range pkgs {
			ids = append(ids, p.ID)
			if p.Deadline != 0 && p.Deadline < earliest {
				earliest = p.Deadline
			}
		}
		sort.Ints(ids)

		onwardTime := rp.Clock.TravelSeconds(onward)
		optimalDeparture := earliest
		if earliest != timeutil.EndOfDay {
			optimalDeparture = earliest.Add(-onwardTime)
		}
		if optimalDeparture < minOptimalDeparture {
			minOptimalDeparture = optimalDeparture
		}

		delivered = append(delivered, ids...)
		visited = append(visited, loc)

		l, _ := rp.Graph.Lookup(loc)
		run.Stops = append(run.Stops, l)
		run.ArrivalTimes = append(run.ArrivalTimes, arrival)
		run.Analysis = append(run.Analysis, domain.RunAnalysisEntry{
			Previous:                   prev,
			Location:                   loc,
			ArrivalTime:                arrival,
			LatestAllowedTime:          earliest,
			HubInsertionCost:           insertionCost,
			MileageToHub:               onward,
			OptimalHubDepartureTime:    optimalDeparture,
			MinOptimalHubDepartureTime: minOptimalDeparture,
			DepartureMet:               departTime <= optimalDeparture || optimalDeparture == timeutil.EndOfDay,
			DeliveryMet:                earliest == timeutil.EndOfDay || !arrival.After(earliest),
			PackageIDs:                 ids,
			DeliveredSoFar:             append([]int(nil), delivered...),
			VisitedSoFar:               append([]domain.LocationKey(nil), visited...),
		})
		if idx+1 < len(order) {
			next := order[idx+1]
			nd, err := rp.Graph.Distance(loc, next)
			if err == nil {
				run.Analysis[len(run.Analysis)-1].NextLocation = next
				run.Analysis[len(run.Analysis)-1].NextDistance = nd
			}
		}

		totalMiles += d
		currentTime = arrival
		prev = loc
	}

	hubBack, err := rp.Graph.HubDistance(prev)
	if err != nil {
		return nil, &domain.RunError{Kind: domain.UnknownLocation, TruckID: truck.TruckID, Detail: err.Error(), Cause: err}
	}
	run.ReturnTime = rp.Clock.Arrival(hubBack, currentTime, 0)
	run.TotalMiles = totalMiles + hubBack
	return run, nil
}

// moreUnassignedRemain reports whether any location not already on
// this tour still has packages waiting, per spec §4.6's OptimalHubReturn
// condition "more packages remain unassigned".
func (rp *RunPlanner) moreUnassignedRemain(remainingOnTour []domain.LocationKey) bool {
	if rp.Store == nil {
		return len(remainingOnTour) > 1
	}
	onTour := make(map[domain.LocationKey]bool, len(remainingOnTour))
	for _, l := range remainingOnTour {
		onTour[l] = true
	}
	for _, l := range rp.Graph.Locations() {
		if l.IsHub || l.BeenAssigned || onTour[l.Key] {
			continue
		}
		if len(rp.Store.AtLocation(l.Key)) > 0 {
			return true
		}
	}
	return false
}

// verify confirms deadlines and hub-arrival/confirmation timing for
// every stop, returning the first violation found as a *domain.RunError
// (PackageNotArrived and UnconfirmedPackageDelivery carry a RetryAt
// the caller can rebuild with, spec §4.6/§4.7; LateDelivery is fatal).
func (rp *RunPlanner) verify(run *domain.RouteRun, byLoc map[domain.LocationKey][]*domain.Package, departTime timeutil.TimeOfDay) error {
	for i, entry := range run.Analysis {
		pkgs := byLoc[entry.Location]

		for _, p := range pkgs {
			if p.HubArrivalTime > departTime {
				kind := domain.PackageNotArrived
				run.ErrorKind, run.ErrorLocation = &kind, entry.Location
				return &domain.RunError{
					Kind:     domain.PackageNotArrived,
					TruckID:  run.TruckID,
					Detail:   fmt.Sprintf("package %d has not arrived at hub by %s", p.ID, departTime),
					Location: entry.Location,
					RetryAt:  p.HubArrivalTime,
				}
			}
			if !p.IsVerifiedAddress {
				kind := domain.UnconfirmedPackageDelivery
				run.ErrorKind, run.ErrorLocation = &kind, entry.Location
				retryAt := entry.OptimalHubDepartureTime.Add(-120)
				return &domain.RunError{
					Kind:     domain.UnconfirmedPackageDelivery,
					TruckID:  run.TruckID,
					Detail:   fmt.Sprintf("package %d has an unconfirmed address", p.ID),
					Location: entry.Location,
					RetryAt:  retryAt,
				}
			}
		}

		if entry.LatestAllowedTime != timeutil.EndOfDay && run.ArrivalTimes[i].After(entry.LatestAllowedTime) {
			kind := domain.LateDelivery
			run.ErrorKind, run.ErrorLocation = &kind, entry.Location
			return &domain.RunError{
				Kind:     domain.LateDelivery,
				TruckID:  run.TruckID,
				Detail:   fmt.Sprintf("stop %d (%s) arrives %s after deadline %s", i, entry.Location.Name, run.ArrivalTimes[i], entry.LatestAllowedTime),
				Location: entry.Location,
			}
		}
	}
	return nil
}

// commit finalizes truck-id and bundle-peer propagation across the
// run: every package delivered must either be unpinned or already
// pinned to truck, and every one of its bundle peers must ride this
// same run — spec §3/§4.6's commit-time checks, surfaced as
// InvalidRouteRun / BundledPackageTruckAssignment rather than silently
// accepted.
func (rp *RunPlanner) commit(run *domain.RouteRun, truck *domain.Truck) error {
	if rp.Store == nil {
		return nil
	}
	onRun := make(map[int]bool)
	for _, entry := range run.Analysis {
		for _, id := range entry.PackageIDs {
			onRun[id] = true
		}
	}

	var required []int
	for id := range onRun {
		p, ok := rp.Store.ByID(id)
		if !ok {
			continue
		}
		if p.AssignedTruckID != 0 && p.AssignedTruckID != truck.TruckID {
			return &domain.RunError{
				Kind:     domain.InvalidRouteRun,
				TruckID:  truck.TruckID,
				Detail:   fmt.Sprintf("package %d is pinned to truck %d", id, p.AssignedTruckID),
				Location: p.Location,
			}
		}
		for _, peer := range rp.Store.BundlePeers(id) {
			if !onRun[peer] {
				return &domain.RunError{
					Kind:     domain.BundledPackageTruckAssignment,
					TruckID:  truck.TruckID,
					Detail:   fmt.Sprintf("bundle peer %d of package %d did not ride this run", peer, id),
					Location: p.Location,
				}
			}
		}
		required = append(required, id)
	}
	sort.Ints(required)
	run.RequiredPackages = required
	run.AssignedTruckID = truck.TruckID
	for _, id := range required {
		if p, ok := rp.Store.ByID(id); ok {
			p.AssignedTruckID = truck.TruckID
		}
	}
	return nil
}

// FillIn folds any of extra's packages into an already-built run,
// where doing so costs no more than FillInAllowance of extra mileage
// relative to the direct leg it interrupts and the candidate location
// clears every exclusion zone spec §4.6 names (delayed packages,
// other-truck packages, unconfirmed packages), returning the packages
// folded in. Used by RouteBuilder when a truck has spare capacity
// after its initial build.
func (rp *RunPlanner) FillIn(run *domain.RouteRun, extra []*domain.Package, capacityLeft int, truckID int, dispatchTime timeutil.TimeOfDay) []*domain.Package {
	if capacityLeft <= 0 || len(extra) == 0 {
		return nil
	}
	byLoc := groupByLocation(extra)
	var folded []*domain.Package

	exclusionZones := rp.exclusionZones(truckID, dispatchTime)

locLoop:
	for loc, pkgs := range byLoc {
		if capacityLeft <= 0 {
			break
		}
		for _, z := range exclusionZones {
			if d, err := rp.Graph.Distance(loc, z.at); err == nil && d <= z.radius {
				continue locLoop
			}
			if loc == z.at {
				continue locLoop
			}
		}

		bestIdx, bestCost := -1, math.MaxFloat64
		for i := range run.Stops {
			prev := run.Analysis[i].Previous
			cur := run.Analysis[i].Location
			direct, err := rp.Graph.Distance(prev, cur)
			if err != nil {
				continue
			}
			toNew, err1 := rp.Graph.Distance(prev, loc)
			fromNew, err2 := rp.Graph.Distance(loc, cur)
			if err1 != nil || err2 != nil {
				continue
			}
			cost := toNew + fromNew - direct
			if cost < bestCost {
				bestIdx, bestCost = i, cost
			}
		}
		if bestIdx < 0 || bestCost > rp.FillInAllowance {
			continue
		}
		if len(pkgs) > capacityLeft {
			continue
		}

		l, ok := rp.Graph.Lookup(loc)
		if !ok {
			continue
		}
		ids := make([]int, 0, len(pkgs))
		for _, p := range pkgs {
			ids = append(ids, p.ID)
		}
		sort.Ints(ids)

		entry := domain.RunAnalysisEntry{
			Previous:         run.Analysis[bestIdx].Previous,
			Location:         loc,
			HubInsertionCost: bestCost,
			PackageIDs:       ids,
		}
		run.Stops = append(run.Stops[:bestIdx], append([]*domain.Location{l}, run.Stops[bestIdx:]...)...)
		run.Analysis = append(run.Analysis[:bestIdx], append([]domain.RunAnalysisEntry{entry}, run.Analysis[bestIdx:]...)...)
		run.Analysis[bestIdx+1].Previous = loc

		arrivals := make([]timeutil.TimeOfDay, 0, len(run.Stops))
		at, from := run.DepartHub, rp.Graph.Hub().Key
		for i, s := range run.Stops {
			at = rp.Clock.Arrival(rp.edgeCostBetween(from, s.Key), at, 0)
			arrivals = append(arrivals, at)
			run.Analysis[i].ArrivalTime = at
			from = s.Key
		}
		run.ArrivalTimes = arrivals
		run.ReturnTime = rp.Clock.Arrival(rp.edgeCostBetween(from, rp.Graph.Hub().Key), at, 0)

		run.TotalMiles += bestCost
		capacityLeft -= len(pkgs)
		folded = append(folded, pkgs...)
	}
	return folded
}

type exclusionZone struct {
	at     domain.LocationKey
	radius float64
}

// exclusionZones builds the set of (location, radius) pairs fill-in
// candidates must clear, spec §4.6: locations still holding a delayed
// package (0.75mi), locations pinned to a different truck (0.75mi),
// and locations holding an unconfirmed-address package (3mi).
func (rp *RunPlanner) exclusionZones(truckID int, dispatchTime timeutil.TimeOfDay) []exclusionZone {
	if rp.Store == nil {
		return nil
	}
	var zones []exclusionZone
	for _, p := range rp.Store.Delayed(dispatchTime, true) {
		zones = append(zones, exclusionZone{at: p.Location, radius: rp.FillInDelayedRadius})
	}
	for _, p := range rp.Store.RequiredTruck(0) {
		if p.AssignedTruckID != truckID {
			zones = append(zones, exclusionZone{at: p.Location, radius: rp.FillInOtherTruckRadius})
		}
	}
	for _, p := range rp.Store.Unconfirmed() {
		zones = append(zones, exclusionZone{at: p.Location, radius: rp.FillInUnconfirmedRadius})
	}
	return zones
}
