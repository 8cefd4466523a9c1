// Package cli implements the text menu spec.md §6 calls for: printing
// package status snapshotted at a chosen time, a "time machine" that
// moves the snapshot time, a simulation log dump, and a UI-speed
// knob — grounded on the same interactive-menu shape the original
// Python CLI exposed (main.py), rewritten around Package.SnapshotAt
// instead of re-simulation.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/timeutil"
)

// Menu drives the interactive terminal session over an already-run
// simulation: Store holds every package's full status history, Log
// holds every timestamped line the simulation emitted, and Trucks
// reports the end-of-day mileage summary.
type Menu struct {
	Store  *domain.PackageStore
	Trucks []*domain.Truck
	Log    []string

	snapshotAt timeutil.TimeOfDay
	speed      int // UI speed multiplier, cosmetic only
}

// NewMenu builds a menu defaulted to the end-of-day snapshot time.
func NewMenu(store *domain.PackageStore, trucks []*domain.Truck, log []string) *Menu {
	return &Menu{Store: store, Trucks: trucks, Log: log, snapshotAt: timeutil.EndOfDay, speed: 1}
}

const (
	minSnapshotTime = timeutil.TimeOfDay(4 * 3600)       // 04:00
	maxSnapshotTime = timeutil.TimeOfDay(18*3600 + 59*60) // 18:59
)

// Run drives the menu loop over in and out until the user selects
// exit (0), returning the process exit code (always 0 on normal
// completion, per spec.md §6).
func (m *Menu) Run(in io.Reader, out io.Writer) int {
	scanner := bufio.NewScanner(in)
	for {
		m.printMenu(out)
		if !scanner.Scan() {
			return 0
		}
		choice := strings.TrimSpace(scanner.Text())

		switch choice {
		case "1":
			m.printAllPackages(out)
		case "2":
			fmt.Fprint(out, "package id: ")
			if !scanner.Scan() {
				return 0
			}
			m.printOnePackage(out, strings.TrimSpace(scanner.Text()))
		case "3":
			fmt.Fprint(out, "new snapshot time (HH:MM, 04:00-18:59): ")
			if !scanner.Scan() {
				return 0
			}
			m.setSnapshotTime(out, strings.TrimSpace(scanner.Text()))
		case "4":
			m.dumpLog(out)
		case "5":
			fmt.Fprint(out, "new UI speed (1-10): ")
			if !scanner.Scan() {
				return 0
			}
			m.setSpeed(out, strings.TrimSpace(scanner.Text()))
		case "0":
			m.printSummary(out)
			return 0
		default:
			fmt.Fprintln(out, "unrecognized selection")
		}
	}
}

func (m *Menu) printMenu(out io.Writer) {
	fmt.Fprintf(out, "\n-- snapshot: %s --\n", m.snapshotAt)
	fmt.Fprintln(out, "1) print all packages")
	fmt.Fprintln(out, "2) print one package")
	fmt.Fprintln(out, "3) time machine")
	fmt.Fprintln(out, "4) dump log")
	fmt.Fprintln(out, "5) adjust UI speed")
	fmt.Fprintln(out, "0) exit")
	fmt.Fprint(out, "> ")
}

func (m *Menu) printAllPackages(out io.Writer) {
	for _, p := range m.Store.All() {
		m.printPackage(out, p)
	}
}

func (m *Menu) printOnePackage(out io.Writer, idRaw string) {
	id, err := strconv.Atoi(idRaw)
	if err != nil {
		fmt.Fprintln(out, "invalid package id")
		return
	}
	p, ok := m.Store.ByID(id)
	if !ok {
		fmt.Fprintln(out, "no such package")
		return
	}
	m.printPackage(out, p)
}

func (m *Menu) printPackage(out io.Writer, p *domain.Package) {
	status := p.Status
	loc := p.Location.Name
	verified := p.IsVerifiedAddress
	if snap, ok := p.SnapshotAt(m.snapshotAt); ok {
		status, loc, verified = snap.Status, snap.Location.Name, snap.IsVerifiedAddress
	}
	verifiedTag := ""
	if !verified {
		verifiedTag = " (unverified address)"
	}
	fmt.Fprintf(out, "package %d: %s at %s%s, deadline %s\n", p.ID, status, loc, verifiedTag, p.Deadline)
}

func (m *Menu) setSnapshotTime(out io.Writer, raw string) {
	t, err := timeutil.Parse(raw)
	if err != nil {
		fmt.Fprintln(out, "unrecognized time format, expected HH:MM")
		return
	}
	if t < minSnapshotTime || t > maxSnapshotTime {
		fmt.Fprintln(out, "time machine is restricted to 04:00-18:59")
		return
	}
	m.snapshotAt = t
}

func (m *Menu) dumpLog(out io.Writer) {
	for _, line := range m.Log {
		fmt.Fprintln(out, line)
	}
}

func (m *Menu) setSpeed(out io.Writer, raw string) {
	speed, err := strconv.Atoi(raw)
	if err != nil || speed < 1 || speed > 10 {
		fmt.Fprintln(out, "UI speed must be an integer between 1 and 10")
		return
	}
	m.speed = speed
}

// Speed returns the current UI speed multiplier.
func (m *Menu) Speed() int { return m.speed }

const ansiGreen = "\033[32m"
const ansiReset = "\033[0m"

// printSummary prints total fleet mileage and completion time, green
// on success — no color library appears anywhere in the pack, so this
// is a direct ANSI escape per DESIGN.md's standard-library
// justification for this one concern.
func (m *Menu) printSummary(out io.Writer) {
	var totalMiles float64
	var latestReturn timeutil.TimeOfDay
	for _, t := range m.Trucks {
		totalMiles += t.MilesDriven
		for _, r := range t.Runs {
			if r.ReturnTime > latestReturn {
				latestReturn = r.ReturnTime
			}
		}
	}

	undelivered := 0
	for _, p := range m.Store.All() {
		if _, delivered := p.DeliveredAt(); !delivered {
			undelivered++
		}
	}

	line := fmt.Sprintf("fleet mileage: %.1f mi, completed at %s", totalMiles, latestReturn)
	if undelivered == 0 {
		fmt.Fprintln(out, ansiGreen+line+ansiReset)
	} else {
		fmt.Fprintln(out, line)
		fmt.Fprintf(out, "%d package(s) not delivered\n", undelivered)
	}
}
