package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/timeutil"
)

// PackageLoader reads the package manifest CSV into Package values
// bound to locations already present in graph, applying the four
// recognized special-note prefixes (delayed arrival, truck
// restriction, bundling, wrong address) the same way the calibration
// corpus's own parser does.
type PackageLoader struct {
	Path                       string
	StandardHubArrival         timeutil.TimeOfDay
}

func NewPackageLoader(path string, standardHubArrival timeutil.TimeOfDay) *PackageLoader {
	return &PackageLoader{Path: path, StandardHubArrival: standardHubArrival}
}

var (
	delayedArrivalRe = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*(am|pm)`)
	truckOnlyRe      = regexp.MustCompile(`\d+`)
	bundleIDRe       = regexp.MustCompile(`\d+`)
)

func (l *PackageLoader) LoadPackages(ctx context.Context, graph *domain.DistanceGraph) ([]*domain.Package, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("package loader: open %q: %w", l.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("package loader: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"Package ID", "Address", "City", "Zip", "Delivery Deadline", "Mass KILO", "Special Notes"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("package loader: missing column %q", required)
		}
	}

	var out []*domain.Package

	for {
		row, err := r.Read()
		if err != nil {
			break
		}

		id, err := strconv.Atoi(strings.TrimSpace(row[col["Package ID"]]))
		if err != nil {
			return nil, fmt.Errorf("package loader: parse package id %q: %w", row[col["Package ID"]], err)
		}
		address := strings.TrimSpace(row[col["Address"]])
		zip := strings.TrimSpace(row[col["Zip"]])

		loc, ok := lookupByAddress(graph, address, zip)
		if !ok {
			return nil, fmt.Errorf("package loader: package %d: no location matches address %q zip %q", id, address, zip)
		}

		deadlineRaw := strings.TrimSpace(row[col["Delivery Deadline"]])
		var deadline timeutil.TimeOfDay
		if deadlineRaw == "" || strings.EqualFold(deadlineRaw, "EOD") {
			deadline = timeutil.EndOfDay
		} else {
			deadline, err = timeutil.Parse(deadlineRaw)
			if err != nil {
				return nil, fmt.Errorf("package loader: package %d: parse deadline %q: %w", id, deadlineRaw, err)
			}
		}

		weight, err := strconv.Atoi(strings.TrimSpace(row[col["Mass KILO"]]))
		if err != nil {
			return nil, fmt.Errorf("package loader: package %d: parse weight %q: %w", id, row[col["Mass KILO"]], err)
		}

		note := strings.TrimSpace(row[col["Special Notes"]])
		isVerified := !strings.HasPrefix(note, "Wrong address")

		p := &domain.Package{
			ID:                id,
			Location:          loc.Key,
			IsVerifiedAddress: isVerified,
			Deadline:          deadline,
			WeightKilos:       weight,
			SpecialNote:       note,
			HubArrivalTime:    l.StandardHubArrival,
			Status:            domain.OnRouteToDepot,
		}

		applyDelayedArrival(p, note)
		applyTruckRestriction(p, note)

		out = append(out, p)
	}

	return out, nil
}

func lookupByAddress(graph *domain.DistanceGraph, address, zip string) (*domain.Location, bool) {
	for _, l := range graph.Locations() {
		if l.Key.Address == address && (zip == "" || l.Key.Zip == zip || l.Key.Zip == "") {
			return l, true
		}
	}
	return nil, false
}

// applyDelayedArrival parses "Delayed on flight—will not arrive to
// depot until H:MM am|pm" into p.HubArrivalTime.
func applyDelayedArrival(p *domain.Package, note string) {
	if !strings.HasPrefix(note, "Delayed") {
		return
	}
	m := delayedArrivalRe.FindStringSubmatch(note)
	if m == nil {
		return
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if strings.EqualFold(m[3], "pm") && hour != 12 {
		hour += 12
	} else if strings.EqualFold(m[3], "am") && hour == 12 {
		hour = 0
	}
	p.HubArrivalTime = timeutil.New(hour, minute, 0)
}

// applyTruckRestriction parses "Can only be on truck K" into
// p.AssignedTruckID.
func applyTruckRestriction(p *domain.Package, note string) {
	const prefix = "Can only be on truck "
	if !strings.HasPrefix(note, prefix) {
		return
	}
	matches := truckOnlyRe.FindAllString(note, -1)
	if len(matches) == 0 {
		return
	}
	id, err := strconv.Atoi(matches[len(matches)-1])
	if err != nil {
		return
	}
	p.AssignedTruckID = id
}

// parseBundlePeers parses "Must be delivered with I, J, …" into the
// list of package ids it names.
func parseBundlePeers(note string) []int {
	const prefix = "Must be delivered with "
	if !strings.HasPrefix(note, prefix) {
		return nil
	}
	matches := bundleIDRe.FindAllString(note, -1)
	peers := make([]int, 0, len(matches))
	for _, m := range matches {
		id, err := strconv.Atoi(m)
		if err == nil {
			peers = append(peers, id)
		}
	}
	return peers
}

// Bundles returns the raw (id -> declared peer ids) map parsed from
// "Must be delivered with" notes, for the caller to fold into
// PackageStore.Bundle calls once packages are indexed (Bundle requires
// both ids already registered via Add).
func (l *PackageLoader) Bundles(pkgs []*domain.Package) map[int][]int {
	out := make(map[int][]int)
	for _, p := range pkgs {
		if peers := parseBundlePeers(p.SpecialNote); len(peers) > 0 {
			out[p.ID] = peers
		}
	}
	return out
}
