// Package csv holds ports.GraphLoader/ports.PackageLoader adapters
// reading the two flat-file inputs spec §6 defines: a grid-format
// distance matrix and a package manifest. Neither the teacher nor any
// other pack repo parses this kind of multi-line-header grid, so the
// column/row walk below is grounded directly on the calibration
// corpus's own CSV layout rather than on an example Go parser; the
// encoding/csv reader it sits on is stdlib because no example repo
// wires a third-party CSV library for anything (DESIGN.md).
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"samedaydispatch/internal/domain"
)

// GridGraphLoader builds a DistanceGraph from the grid-format distance
// CSV: column 1 carries a location's name and address as a multi-line
// cell, column 2 carries "HUB" or the address again plus a
// parenthesized zip, and the remaining columns hold the lower
// triangle of a symmetric distance matrix in miles.
type GridGraphLoader struct {
	Path string
}

func NewGridGraphLoader(path string) *GridGraphLoader {
	return &GridGraphLoader{Path: path}
}

var zipParen = regexp.MustCompile(`\((\d+)\)`)

func (l *GridGraphLoader) LoadGraph(ctx context.Context) (*domain.DistanceGraph, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("grid graph loader: open %q: %w", l.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("grid graph loader: read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("grid graph loader: header has fewer than 2 columns")
	}

	locations := make([]*domain.Location, 0, len(header)-2)
	for _, col := range header[2:] {
		lines := strings.Split(col, "\n")
		name := strings.TrimSpace(lines[0])
		var address string
		if len(lines) > 1 {
			address = strings.TrimSpace(lines[1])
		}
		var zip string
		if len(lines) > 2 {
			zip = extractZip(lines[2])
		}
		locations = append(locations, &domain.Location{
			Key: domain.LocationKey{Name: name, Address: address, Zip: zip},
		})
	}

	var nameRows, addrRows []string
	var distRows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("grid graph loader: read row: %w", err)
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("grid graph loader: row has fewer than 2 columns")
		}
		nameRows = append(nameRows, row[0])
		addrRows = append(addrRows, row[1])
		distRows = append(distRows, row[2:])
	}
	if len(nameRows) != len(locations) {
		return nil, fmt.Errorf("grid graph loader: %d data rows but %d header columns", len(nameRows), len(locations))
	}

	dist := make(map[domain.LocationKey]map[domain.LocationKey]float64, len(locations))
	for i, loc := range locations {
		name := strings.TrimSpace(strings.Split(nameRows[i], "\n")[0])
		addrCell := strings.TrimSpace(addrRows[i])
		if addrCell == "HUB" {
			loc.IsHub = true
		}
		if m := zipParen.FindStringSubmatch(addrCell); m != nil && loc.Key.Zip == "" && name == loc.Key.Name {
			loc.Key.Zip = m[1]
		}

		row := make(map[domain.LocationKey]float64, len(locations))
		for j := 0; j < i; j++ {
			d, err := strconv.ParseFloat(strings.TrimSpace(distRows[i][j]), 64)
			if err != nil {
				return nil, fmt.Errorf("grid graph loader: parse distance [%d][%d]: %w", i, j, err)
			}
			row[locations[j].Key] = d
		}
		for k := i + 1; k < len(distRows); k++ {
			if i >= len(distRows[k]) {
				continue
			}
			cell := strings.TrimSpace(distRows[k][i])
			if cell == "" {
				continue
			}
			d, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("grid graph loader: parse distance [%d][%d]: %w", k, i, err)
			}
			row[locations[k].Key] = d
		}
		dist[loc.Key] = row
	}

	return domain.NewDistanceGraph(locations, dist)
}

func extractZip(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
