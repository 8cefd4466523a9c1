package domain

import (
	"fmt"
	"math"

	"samedaydispatch/internal/timeutil"
)

// LocationKey identifies a Location by the (name, address, zip) triple
// spec.md §4.1 specifies; being a plain comparable struct it doubles
// as its own map key, same as the teacher's coordinate/address string
// keys in its distance-cache lookups.
type LocationKey struct {
	Name    string
	Address string
	Zip     string
}

// Location is one stop in the distance graph. Package annotation
// fields (earliest deadline, flags, assigned truck id) are re-derived
// whenever packages are attached via RefreshAnnotations.
type Location struct {
	Key  LocationKey
	City string
	IsHub bool

	EarliestDeadline        timeutil.TimeOfDay
	LatestPackageArrival    timeutil.TimeOfDay
	HasRequiredTruckPackage bool
	HasBundledPackage       bool
	HasUnconfirmedPackage   bool
	AssignedTruckID         int // 0 means unset

	BeenAssigned bool
	BeenVisited  bool

	hubDistance float64
}

func (l *Location) String() string { return l.Key.Name }

// HubDistance returns the cached distance from this location to the
// hub, computed once by NewDistanceGraph.
func (l *Location) HubDistance() float64 { return l.hubDistance }

// DistanceGraph is the immutable, symmetric, complete distance table
// over a fixed set of Locations, grounded on the teacher's plain
// string-keyed distance maps (nearest_neighbor.go) but promoted to a
// first-class type with hub detection and a real distance(a,b) query.
type DistanceGraph struct {
	locations []*Location
	byKey     map[LocationKey]*Location
	dist      map[LocationKey]map[LocationKey]float64
	hub       *Location
}

// NewDistanceGraph builds a DistanceGraph from the parsed locations
// and a complete set of pairwise distances. dist must contain an
// entry for every unordered pair; it need not be supplied in both
// directions (symmetry is enforced on build).
func NewDistanceGraph(locations []*Location, dist map[LocationKey]map[LocationKey]float64) (*DistanceGraph, error) {
	g := &DistanceGraph{
		locations: locations,
		byKey:     make(map[LocationKey]*Location, len(locations)),
		dist:      make(map[LocationKey]map[LocationKey]float64, len(locations)),
	}

	for _, l := range locations {
		if _, dup := g.byKey[l.Key]; dup {
			return nil, fmt.Errorf("distance graph: duplicate location %q", l.Key.Name)
		}
		g.byKey[l.Key] = l
		g.dist[l.Key] = make(map[LocationKey]float64, len(locations))

		if l.IsHub {
			if g.hub != nil {
				return nil, fmt.Errorf("distance graph: more than one hub (%q and %q)", g.hub.Key.Name, l.Key.Name)
			}
			g.hub = l
		}
	}
	if g.hub == nil {
		return nil, fmt.Errorf("distance graph: no location is tagged as hub")
	}

	for a, row := range dist {
		for b, d := range row {
			if d < 0 {
				return nil, fmt.Errorf("distance graph: negative distance %s -> %s", a.Name, b.Name)
			}
			if a == b {
				continue
			}
			g.setDistance(a, b, d)
		}
	}

	for _, l := range locations {
		if l == g.hub {
			l.hubDistance = 0
			continue
		}
		d, err := g.Distance(l.Key, g.hub.Key)
		if err != nil {
			return nil, fmt.Errorf("distance graph: missing hub distance for %q: %w", l.Key.Name, err)
		}
		l.hubDistance = d
	}

	return g, nil
}

func (g *DistanceGraph) setDistance(a, b LocationKey, d float64) {
	if g.dist[a] == nil {
		g.dist[a] = make(map[LocationKey]float64)
	}
	if g.dist[b] == nil {
		g.dist[b] = make(map[LocationKey]float64)
	}
	g.dist[a][b] = d
	g.dist[b][a] = d
}

// Distance returns the symmetric driving distance in miles between a
// and b. Never call with a == b (spec.md §3: "d(x,x) is undefined").
func (g *DistanceGraph) Distance(a, b LocationKey) (float64, error) {
	if a == b {
		return 0, fmt.Errorf("distance graph: distance(x,x) is undefined for %q", a.Name)
	}
	row, ok := g.dist[a]
	if !ok {
		return 0, fmt.Errorf("distance graph: unknown location %q", a.Name)
	}
	d, ok := row[b]
	if !ok {
		return 0, fmt.Errorf("distance graph: no distance recorded %q -> %q", a.Name, b.Name)
	}
	return d, nil
}

// HubDistance returns the distance from a to the hub.
func (g *DistanceGraph) HubDistance(a LocationKey) (float64, error) {
	return g.Distance(a, g.hub.Key)
}

// Hub returns the unique hub location.
func (g *DistanceGraph) Hub() *Location { return g.hub }

// Lookup returns the Location for a key.
func (g *DistanceGraph) Lookup(key LocationKey) (*Location, bool) {
	l, ok := g.byKey[key]
	return l, ok
}

// Locations returns every location in the graph, hub included.
func (g *DistanceGraph) Locations() []*Location { return g.locations }

// FarthestFromHub returns the location with maximum HubDistance,
// ignoring the hub itself. Used by RouteBuilder's "furthest from hub"
// target selection rule.
func (g *DistanceGraph) FarthestFromHub() *Location {
	var best *Location
	for _, l := range g.locations {
		if l.IsHub {
			continue
		}
		if best == nil || l.HubDistance() > best.HubDistance() {
			best = l
		}
	}
	return best
}

// FarthestFrom returns the location with maximum distance from from,
// ignoring from itself and the hub.
func (g *DistanceGraph) FarthestFrom(from LocationKey) (*Location, error) {
	var best *Location
	var bestDist float64
	for _, l := range g.locations {
		if l.IsHub || l.Key == from {
			continue
		}
		d, err := g.Distance(from, l.Key)
		if err != nil {
			return nil, err
		}
		if best == nil || d > bestDist {
			best, bestDist = l, d
		}
	}
	return best, nil
}

// MostSpreadOut returns the non-hub location with the maximum sum of
// outgoing distances to every other non-hub location — RouteBuilder's
// paired-target replacement rule.
func (g *DistanceGraph) MostSpreadOut() (*Location, error) {
	var best *Location
	var bestSum float64
	for _, l := range g.locations {
		if l.IsHub {
			continue
		}
		sum := 0.0
		for _, other := range g.locations {
			if other.IsHub || other.Key == l.Key {
				continue
			}
			d, err := g.Distance(l.Key, other.Key)
			if err != nil {
				return nil, err
			}
			sum += d
		}
		if best == nil || sum > bestSum {
			best, bestSum = l, sum
		}
	}
	return best, nil
}

// RouteMileage sums the distance along an ordered sequence of
// locations (hub-to-hub or any sub-path).
func (g *DistanceGraph) RouteMileage(route []*Location) (float64, error) {
	total := 0.0
	for i := 1; i < len(route); i++ {
		d, err := g.Distance(route[i-1].Key, route[i].Key)
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total, nil
}

// clamp guards against floating point noise producing tiny negatives
// where a true zero is expected (hub-insertion cost computations).
func clamp(x float64) float64 {
	if math.Abs(x) < 1e-9 {
		return 0
	}
	return x
}
