package domain

import (
	"fmt"

	"samedaydispatch/internal/timeutil"
)

// RunErrorKind classifies the fatal, planner-side failure tags spec §7
// names. Two of that taxonomy's tags — DelayedPackagesArrived and
// AddressUpdate — are deliberately absent here: they are signals, not
// errors (see RunSignalKind below), since the simulator converts them
// into state transitions rather than treating them as failures.
type RunErrorKind int

const (
	// PackageNotArrived: a run is proposed that would load a package
	// before its hub arrival. Recoverable by delaying start_time.
	PackageNotArrived RunErrorKind = iota
	// LateDelivery: a run is proposed that arrives at a stop after its
	// earliest_deadline. Fatal for that run construction; the caller
	// must re-target.
	LateDelivery
	// UnconfirmedPackageDelivery: a run would deliver an unconfirmed
	// package before its address-update time. Recoverable by delaying
	// start_time to optimal_hub_departure_time - 120s of the offending
	// stop.
	UnconfirmedPackageDelivery
	// TruckCapacityExceeded: attempted add_package past capacity.
	// Fatal: indicates a planner bug; the production planner must
	// preflight.
	TruckCapacityExceeded
	// InvalidRouteRun: a run contains two packages with conflicting
	// assigned_truck_id. Fatal.
	InvalidRouteRun
	// OverlappingRouteRun: two runs on the same truck overlap in time.
	// Fatal.
	OverlappingRouteRun
	// BundledPackageTruckAssignment: bundle membership would assign
	// different truck ids. Fatal.
	BundledPackageTruckAssignment
	// PackageNotOnTruck: simulator-side — attempted to deliver a
	// package the truck does not hold. Fatal.
	PackageNotOnTruck
	// EmptyPool: there is nothing to route (no available package).
	// Not named in §7's taxonomy; added because RunPlanner.Build must
	// reject a nil pool distinctly from a genuine routing failure.
	EmptyPool
	// UnknownLocation: a stop references a LocationKey absent from the
	// DistanceGraph. Not named in §7; a DistanceGraph-consistency
	// check the taxonomy assumes holds by construction.
	UnknownLocation
)

func (k RunErrorKind) String() string {
	switch k {
	case PackageNotArrived:
		return "PACKAGE_NOT_ARRIVED"
	case LateDelivery:
		return "LATE_DELIVERY"
	case UnconfirmedPackageDelivery:
		return "UNCONFIRMED_PACKAGE_DELIVERY"
	case TruckCapacityExceeded:
		return "TRUCK_CAPACITY_EXCEEDED"
	case InvalidRouteRun:
		return "INVALID_ROUTE_RUN"
	case OverlappingRouteRun:
		return "OVERLAPPING_ROUTE_RUN"
	case BundledPackageTruckAssignment:
		return "BUNDLED_PACKAGE_TRUCK_ASSIGNMENT"
	case PackageNotOnTruck:
		return "PACKAGE_NOT_ON_TRUCK"
	case EmptyPool:
		return "EMPTY_POOL"
	case UnknownLocation:
		return "UNKNOWN_LOCATION"
	default:
		return "UNKNOWN"
	}
}

// Recoverable reports whether the caller can retry after adjusting
// start_time, per §7's propagation rules, rather than having to
// abandon the target entirely.
func (k RunErrorKind) Recoverable() bool {
	return k == PackageNotArrived || k == UnconfirmedPackageDelivery
}

// RunError wraps a RunErrorKind with context and an optional
// underlying cause, unwrappable via errors.Is/errors.As.
type RunError struct {
	Kind    RunErrorKind
	TruckID int
	Detail  string
	Cause   error

	// Location is the stop where the violation was first observed, for
	// callers that want to report or re-target around it.
	Location LocationKey
	// RetryAt is set on the two recoverable kinds (PackageNotArrived,
	// UnconfirmedPackageDelivery): the start_time the caller should
	// retry the build at, per spec §4.6/§4.7.
	RetryAt timeutil.TimeOfDay
}

func (e *RunError) Error() string {
	if e.TruckID != 0 {
		return fmt.Sprintf("run planner: truck %d: %s: %s", e.TruckID, e.Kind, e.Detail)
	}
	return fmt.Sprintf("run planner: %s: %s", e.Kind, e.Detail)
}

func (e *RunError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &RunError{Kind: X}) match on kind alone.
func (e *RunError) Is(target error) bool {
	t, ok := target.(*RunError)
	return ok && t.Kind == e.Kind
}

func newRunError(kind RunErrorKind, truckID int, detail string) *RunError {
	return &RunError{Kind: kind, TruckID: truckID, Detail: detail}
}

// RunSignalKind enumerates accepted, non-error verdicts a run or a
// status update can terminate with — §7 explicitly calls these out as
// tags the simulator converts into state transitions rather than
// failures.
type RunSignalKind int

const (
	// OptimalHubReturn: the planner found that returning to the hub
	// now, rather than continuing the search, minimizes total mileage
	// given the remaining pool — §9's accepted refinement of the
	// original two-function split.
	OptimalHubReturn RunSignalKind = iota
	// DelayedPackagesArrived: a bulk status update promoted one or
	// more ON_ROUTE_TO_DEPOT packages to AT_HUB mid-simulation,
	// triggering opportunistic reload of a hub-present truck.
	DelayedPackagesArrived
	// AddressUpdate: the address-correction event fired for a specific
	// package; the simulator reports it and re-homes the package.
	AddressUpdate
)

func (k RunSignalKind) String() string {
	switch k {
	case OptimalHubReturn:
		return "OPTIMAL_HUB_RETURN"
	case DelayedPackagesArrived:
		return "DELAYED_PACKAGES_ARRIVED"
	case AddressUpdate:
		return "ADDRESS_UPDATE"
	default:
		return "UNKNOWN"
	}
}

// RunSignal carries an accepted, non-error outcome alongside whatever
// data the caller needs to act on it. It is returned as a distinct
// value from RunError precisely so callers cannot accidentally
// propagate it as a failure with a bare `if err != nil { return err }`.
type RunSignal struct {
	Kind    RunSignalKind
	TruckID int
	AtStop  int // index into the run's stop list, where applicable
}

func (s *RunSignal) String() string {
	return fmt.Sprintf("signal: truck %d: %s (stop %d)", s.TruckID, s.Kind, s.AtStop)
}
