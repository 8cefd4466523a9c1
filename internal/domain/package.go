package domain

import (
	"sort"

	"samedaydispatch/internal/timeutil"
)

// PackageStatus is the lifecycle state of a Package, spec.md §3.
type PackageStatus int

const (
	OnRouteToDepot PackageStatus = iota
	AtHub
	Loaded
	OutForDelivery
	Delivered
)

func (s PackageStatus) String() string {
	switch s {
	case OnRouteToDepot:
		return "ON_ROUTE_TO_DEPOT"
	case AtHub:
		return "AT_HUB"
	case Loaded:
		return "LOADED"
	case OutForDelivery:
		return "OUT_FOR_DELIVERY"
	case Delivered:
		return "DELIVERED"
	default:
		return "UNKNOWN"
	}
}

// StatusSnapshot is one observed state of a Package at a point in
// time, spec.md §3/§9: snapshots accumulate as a tuple when several
// land on the same timestamp.
type StatusSnapshot struct {
	Status            PackageStatus
	Location          LocationKey
	IsVerifiedAddress bool
	SpecialNote       string
}

// Package is a single delivery unit. Identity is its integer id
// (1..N); Location is a key into the owning PackageStore's
// DistanceGraph.
type Package struct {
	ID                int
	Location          LocationKey
	IsVerifiedAddress bool
	Deadline          timeutil.TimeOfDay
	WeightKilos       int
	SpecialNote       string
	HubArrivalTime    timeutil.TimeOfDay
	AssignedTruckID   int // 0 = unset

	Status       PackageStatus
	DeliveryTime timeutil.TimeOfDay
	hasDelivery  bool

	// statusTimes/statusSnapshots are parallel slices preserving
	// observation order (a repeated timestamp accumulates into the
	// same tuple rather than overwriting it).
	statusTimes     []timeutil.TimeOfDay
	statusSnapshots [][]StatusSnapshot
}

// Deliver records the delivery time once, the terminal status event.
func (p *Package) Deliver(at timeutil.TimeOfDay) {
	p.Status = Delivered
	p.DeliveryTime = at
	p.hasDelivery = true
	p.RecordStatus(at, StatusSnapshot{Status: Delivered, Location: p.Location, IsVerifiedAddress: p.IsVerifiedAddress, SpecialNote: p.SpecialNote})
}

// DeliveredAt returns the delivery time and whether it has happened yet.
func (p *Package) DeliveredAt() (timeutil.TimeOfDay, bool) { return p.DeliveryTime, p.hasDelivery }

// RecordStatus appends a new observation, possibly at a repeated
// timestamp (spec.md §3: "accumulate as a tuple").
func (p *Package) RecordStatus(at timeutil.TimeOfDay, snap StatusSnapshot) {
	if n := len(p.statusTimes); n > 0 && p.statusTimes[n-1] == at {
		p.statusSnapshots[n-1] = append(p.statusSnapshots[n-1], snap)
		return
	}
	p.statusTimes = append(p.statusTimes, at)
	p.statusSnapshots = append(p.statusSnapshots, []StatusSnapshot{snap})
}

// SnapshotAt returns the canonical state at queryTime: the last
// observation at or before queryTime, collapsed to the last entry of
// any same-timestamp tuple.
func (p *Package) SnapshotAt(queryTime timeutil.TimeOfDay) (StatusSnapshot, bool) {
	idx := sort.Search(len(p.statusTimes), func(i int) bool {
		return p.statusTimes[i] > queryTime
	}) - 1
	if idx < 0 {
		return StatusSnapshot{}, false
	}
	tuple := p.statusSnapshots[idx]
	return tuple[len(tuple)-1], true
}

// History returns every observed (time, snapshots-at-that-time) pair
// in observation order, for the CLI's log dump.
func (p *Package) History() ([]timeutil.TimeOfDay, [][]StatusSnapshot) {
	return p.statusTimes, p.statusSnapshots
}

// PackageStore owns every Package and the DistanceGraph they
// reference, plus the index queries spec.md §4.2 names. It is built
// once and then mutated only through UpdateLocation/BulkStatusUpdate
// (single-writer — whoever holds the DeliverySimulator, per spec.md §5).
type PackageStore struct {
	Graph *DistanceGraph

	byID      *SlotTable[*Package]
	byLoc     map[LocationKey][]*Package
	all       []*Package
	dsuParent map[int]int // package id -> parent id, union-find over bundles
	bundleOf  map[int][]int
}

// NewPackageStore builds an (initially empty) store bound to a graph.
// Capacity should be the truck capacity C, matching the slot-table
// contract shared with Truck.
func NewPackageStore(graph *DistanceGraph, capacity int) *PackageStore {
	return &PackageStore{
		Graph:     graph,
		byID:      NewSlotTable[*Package](capacity),
		byLoc:     make(map[LocationKey][]*Package),
		dsuParent: make(map[int]int),
	}
}

// Add registers a package, indexing it by id and by location, and
// refreshes that location's package aggregates.
func (s *PackageStore) Add(p *Package) {
	s.byID.Put(p.ID, p)
	s.byLoc[p.Location] = append(s.byLoc[p.Location], p)
	s.all = append(s.all, p)
	s.dsuParent[p.ID] = p.ID
	s.refreshLocation(p.Location)
}

// Bundle links two packages into the same bundle equivalence class
// (spec.md §3: "A,B share an edge, B,C share one => {A,B,C}").
func (s *PackageStore) Bundle(a, b int) {
	ra, rb := s.find(a), s.find(b)
	if ra == rb {
		return
	}
	s.dsuParent[ra] = rb
	s.bundleOf = nil // invalidate memoized groups
	if la, ok := s.byID.Get(a); ok {
		s.refreshLocation(la.Location)
	}
	if lb, ok := s.byID.Get(b); ok {
		s.refreshLocation(lb.Location)
	}
}

func (s *PackageStore) find(id int) int {
	root, ok := s.dsuParent[id]
	if !ok {
		return id
	}
	for root != s.dsuParent[root] {
		root = s.dsuParent[root]
	}
	for id != root && s.dsuParent[id] != root {
		next := s.dsuParent[id]
		s.dsuParent[id] = root
		id = next
	}
	return root
}

func (s *PackageStore) groups() map[int][]int {
	if s.bundleOf != nil {
		return s.bundleOf
	}
	groups := make(map[int][]int)
	for _, p := range s.all {
		root := s.find(p.ID)
		groups[root] = append(groups[root], p.ID)
	}
	s.bundleOf = groups
	return groups
}

// BundlePeers returns every other member of id's bundle equivalence
// class (the bundle minus id itself, spec.md §3).
func (s *PackageStore) BundlePeers(id int) []int {
	root := s.find(id)
	group := s.groups()[root]
	if len(group) <= 1 {
		return nil
	}
	peers := make([]int, 0, len(group)-1)
	for _, m := range group {
		if m != id {
			peers = append(peers, m)
		}
	}
	return peers
}

// ByID returns the package for id.
func (s *PackageStore) ByID(id int) (*Package, bool) { return s.byID.Get(id) }

// All returns every package in id order.
func (s *PackageStore) All() []*Package {
	out := make([]*Package, len(s.all))
	copy(out, s.all)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AtLocation returns the packages currently indexed at loc.
func (s *PackageStore) AtLocation(loc LocationKey) []*Package {
	return s.byLoc[loc]
}

// UpdateLocation atomically moves a package from its old residency to
// a new one and refreshes both locations' aggregates, spec.md §5
// "scoped acquisition: remove then add is the same operation".
func (s *PackageStore) UpdateLocation(p *Package, newLoc LocationKey) {
	old := p.Location
	list := s.byLoc[old]
	for i, q := range list {
		if q.ID == p.ID {
			s.byLoc[old] = append(list[:i], list[i+1:]...)
			break
		}
	}
	p.Location = newLoc
	s.byLoc[newLoc] = append(s.byLoc[newLoc], p)
	s.refreshLocation(old)
	s.refreshLocation(newLoc)
}

// refreshLocation recomputes the Location's package-derived aggregates
// (spec.md §3): earliest deadline, latest package arrival, the three
// has-* flags, and assigned truck id.
func (s *PackageStore) refreshLocation(key LocationKey) {
	loc, ok := s.Graph.Lookup(key)
	if !ok {
		return
	}
	pkgs := s.byLoc[key]

	loc.EarliestDeadline = timeutil.EndOfDay
	loc.LatestPackageArrival = 0
	loc.HasRequiredTruckPackage = false
	loc.HasBundledPackage = false
	loc.HasUnconfirmedPackage = false

	truckIDs := map[int]bool{}
	for _, p := range pkgs {
		if p.Deadline != 0 && p.Deadline < loc.EarliestDeadline {
			loc.EarliestDeadline = p.Deadline
		}
		if p.HubArrivalTime > loc.LatestPackageArrival {
			loc.LatestPackageArrival = p.HubArrivalTime
		}
		if p.AssignedTruckID != 0 {
			loc.HasRequiredTruckPackage = true
			truckIDs[p.AssignedTruckID] = true
		}
		if len(s.BundlePeers(p.ID)) > 0 {
			loc.HasBundledPackage = true
		}
		if !p.IsVerifiedAddress {
			loc.HasUnconfirmedPackage = true
		}
	}

	if len(truckIDs) == 1 {
		for id := range truckIDs {
			loc.AssignedTruckID = id
		}
	} else {
		loc.AssignedTruckID = 0
	}
}

// Delayed returns packages whose hub arrival is after dispatchTime,
// optionally excluding ones that have since arrived (AtHub or later).
func (s *PackageStore) Delayed(dispatchTime timeutil.TimeOfDay, ignoreArrived bool) []*Package {
	var out []*Package
	for _, p := range s.All() {
		if p.HubArrivalTime <= dispatchTime {
			continue
		}
		if ignoreArrived && p.Status != OnRouteToDepot {
			continue
		}
		out = append(out, p)
	}
	return out
}

// RequiredTruck returns packages with an assigned truck id, optionally
// filtered to one truck id (0 means no filter).
func (s *PackageStore) RequiredTruck(truckID int) []*Package {
	var out []*Package
	for _, p := range s.All() {
		if p.AssignedTruckID == 0 {
			continue
		}
		if truckID != 0 && p.AssignedTruckID != truckID {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Bundled returns the union of every bundle equivalence class with
// more than one member. With allLocationPackages, the result expands
// to include every package at a bundled package's location. With
// ignoreAssigned, locations already consumed (BeenAssigned) are
// excluded.
func (s *PackageStore) Bundled(allLocationPackages, ignoreAssigned bool) []*Package {
	seen := map[int]bool{}
	var out []*Package
	for _, group := range s.groups() {
		if len(group) <= 1 {
			continue
		}
		for _, id := range group {
			p, ok := s.byID.Get(id)
			if !ok {
				continue
			}
			if ignoreAssigned {
				if loc, ok := s.Graph.Lookup(p.Location); ok && loc.BeenAssigned {
					continue
				}
			}
			if !seen[p.ID] {
				seen[p.ID] = true
				out = append(out, p)
			}
			if allLocationPackages {
				for _, sib := range s.byLoc[p.Location] {
					if !seen[sib.ID] {
						seen[sib.ID] = true
						out = append(out, sib)
					}
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unconfirmed returns every package with an unverified address.
func (s *PackageStore) Unconfirmed() []*Package {
	var out []*Package
	for _, p := range s.All() {
		if !p.IsVerifiedAddress {
			out = append(out, p)
		}
	}
	return out
}

// Available returns packages whose hub arrival has already happened as
// of currentTime, optionally excluding locations already consumed.
func (s *PackageStore) Available(currentTime timeutil.TimeOfDay, ignoreAssigned bool) []*Package {
	var out []*Package
	for _, p := range s.All() {
		if p.HubArrivalTime > currentTime {
			continue
		}
		if ignoreAssigned {
			if loc, ok := s.Graph.Lookup(p.Location); ok && loc.BeenAssigned {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// PackageLocations returns the set of distinct locations touched by
// pkgs, optionally excluding already-consumed locations.
func (s *PackageStore) PackageLocations(pkgs []*Package, ignoreAssigned bool) []LocationKey {
	seen := map[LocationKey]bool{}
	var out []LocationKey
	for _, p := range pkgs {
		if seen[p.Location] {
			continue
		}
		if ignoreAssigned {
			if loc, ok := s.Graph.Lookup(p.Location); ok && loc.BeenAssigned {
				continue
			}
		}
		seen[p.Location] = true
		out = append(out, p.Location)
	}
	return out
}

// ExpectedUpdateTimes returns the sorted, deduplicated union of every
// non-hub location's EarliestDeadline and LatestPackageArrival falling
// within [windowStart, windowEnd], plus any caller-supplied special
// times (the address-correction time lives there).
func (s *PackageStore) ExpectedUpdateTimes(special []timeutil.TimeOfDay, windowStart, windowEnd timeutil.TimeOfDay) []timeutil.TimeOfDay {
	seen := map[timeutil.TimeOfDay]bool{}
	var out []timeutil.TimeOfDay
	add := func(t timeutil.TimeOfDay) {
		if t < windowStart || t > windowEnd {
			return
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, l := range s.Graph.Locations() {
		if l.IsHub {
			continue
		}
		add(l.EarliestDeadline)
		add(l.LatestPackageArrival)
	}
	for _, t := range special {
		add(t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BulkStatusUpdate promotes ON_ROUTE_TO_DEPOT packages whose hub
// arrival has passed to AT_HUB, and re-homes unconfirmed packages once
// currentTime reaches addressChangeTime via the supplied resolver. It
// reports whether any package transitioned (the DelayedPackagesArrived
// signal) and whether any address was corrected (the AddressUpdate
// signal) — these are signals, not errors, per spec.md §7. Calling it
// twice at the same currentTime is a no-op the second time, since
// every transition it makes is one-way.
func (s *PackageStore) BulkStatusUpdate(currentTime, addressChangeTime timeutil.TimeOfDay, resolve func(p *Package) (LocationKey, bool)) (arrived bool, addressUpdated bool) {
	for _, p := range s.All() {
		if p.Status == OnRouteToDepot && p.HubArrivalTime <= currentTime {
			p.Status = AtHub
			p.RecordStatus(currentTime, StatusSnapshot{Status: AtHub, Location: p.Location, IsVerifiedAddress: p.IsVerifiedAddress, SpecialNote: p.SpecialNote})
			arrived = true
		}
		if !p.IsVerifiedAddress && addressChangeTime <= currentTime {
			newLoc, ok := resolve(p)
			if !ok {
				continue
			}
			if newLoc != p.Location {
				s.UpdateLocation(p, newLoc)
			}
			p.IsVerifiedAddress = true
			p.RecordStatus(currentTime, StatusSnapshot{Status: p.Status, Location: p.Location, IsVerifiedAddress: true, SpecialNote: p.SpecialNote})
			addressUpdated = true
		}
	}
	return arrived, addressUpdated
}
