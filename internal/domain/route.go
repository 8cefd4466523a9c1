package domain

import "samedaydispatch/internal/timeutil"

// FocusKind tags why a run's target was chosen, per spec §4.5/§4.6's
// "focused_run" field: a run focused on a required-truck locus or a
// bundle locus relaxes nearest-neighbor greed in favor of satisfying
// that focus.
type FocusKind int

const (
	FocusNone FocusKind = iota
	FocusAssignedTruck
	FocusBundledPackage
)

func (k FocusKind) String() string {
	switch k {
	case FocusAssignedTruck:
		return "ASSIGNED_TRUCK"
	case FocusBundledPackage:
		return "BUNDLED_PACKAGE"
	default:
		return "NONE"
	}
}

// RunAnalysisEntry is one row of a RouteRun's per-stop analysis table,
// keyed by (previous stop, this stop) rather than by stop alone — the
// later of the two behaviors §9 describes, since the same location can
// legitimately appear twice in a run (a revisit after a bundle or
// hub-insertion reorder) with different analyses each time.
type RunAnalysisEntry struct {
	Previous    LocationKey
	Location    LocationKey
	ArrivalTime timeutil.TimeOfDay

	NextLocation LocationKey
	NextDistance float64

	LatestAllowedTime timeutil.TimeOfDay // earliest deadline among packages delivered here
	HubInsertionCost  float64            // extra mileage to detour hub->here->continue vs skipping
	MileageToHub      float64            // distance from this stop straight back to hub

	// OptimalHubDepartureTime is the latest time the truck could have
	// left the hub and still make this stop's LatestAllowedTime.
	OptimalHubDepartureTime timeutil.TimeOfDay
	// MinOptimalHubDepartureTime is the running minimum of
	// OptimalHubDepartureTime over this stop and every earlier one.
	MinOptimalHubDepartureTime timeutil.TimeOfDay

	DepartureMet bool // start_time did not exceed OptimalHubDepartureTime
	DeliveryMet  bool // ArrivalTime did not exceed LatestAllowedTime

	PackageIDs []int // packages delivered at this stop

	// DeliveredSoFar/VisitedSoFar are the running accumulation of
	// delivered package ids and visited locations through this stop,
	// inclusive.
	DeliveredSoFar []int
	VisitedSoFar   []LocationKey

	// ErrorKind is set when this stop is the first one to violate a
	// constraint (PackageNotArrived, LateDelivery,
	// UnconfirmedPackageDelivery); nil otherwise.
	ErrorKind *RunErrorKind
}

// RouteRun is the hub-to-hub traversal plan for a single truck: an
// ordered stop list plus the per-(previous,location) analysis used to
// decide fill-ins, revisits, and early hub return.
type RouteRun struct {
	TruckID        int
	TargetLocation LocationKey
	FocusedRun     FocusKind

	DepartHub    timeutil.TimeOfDay
	Stops        []*Location
	ArrivalTimes []timeutil.TimeOfDay
	Analysis     []RunAnalysisEntry

	// RequiredPackages is the closure of every stop's package set plus
	// every bundle peer touched, computed at commit time.
	RequiredPackages []int
	// AssignedTruckID is the truck id every RequiredPackages member is
	// pinned to after commit (spec §4.5/§4.6 "propagate truck id").
	AssignedTruckID int

	TotalMiles float64
	ReturnTime timeutil.TimeOfDay
	Signal     *RunSignal // non-nil if the run ended on an accepted signal rather than exhausting the pool

	// ErrorKind/ErrorLocation record the first constraint violation
	// detected during analysis, mirroring spec §4.5's error_type /
	// error_location fields, even though Build also returns the same
	// information as a *RunError for Go-idiomatic error handling.
	ErrorKind     *RunErrorKind
	ErrorLocation LocationKey
}

// StopCount is the number of stops excluding the final hub return.
func (r *RouteRun) StopCount() int { return len(r.Stops) }

// PackageIDsAt returns every package id delivered at stop index i,
// drawn from the analysis table (a stop can appear more than once on
// a revisit, so callers should not assume uniqueness of Stops[i].Key
// across the run).
func (r *RouteRun) PackageIDsAt(i int) []int {
	if i < 0 || i >= len(r.Analysis) {
		return nil
	}
	return r.Analysis[i].PackageIDs
}

// LatestArrival returns the arrival time at the last stop before the
// hub return.
func (r *RouteRun) LatestArrival() timeutil.TimeOfDay {
	if len(r.ArrivalTimes) == 0 {
		return r.DepartHub
	}
	return r.ArrivalTimes[len(r.ArrivalTimes)-1]
}
