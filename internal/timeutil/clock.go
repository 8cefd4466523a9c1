// Package timeutil implements the wall-clock-only time arithmetic the
// planner and simulator share: a time-of-day type with no date or
// timezone component, and the single miles<->time conversion law that
// governs every ETA in the system.
package timeutil

import (
	"fmt"
	"time"
)

// TimeOfDay is a point in time within one simulated day, stored as
// seconds since midnight. There are no dates and no timezones: the
// calendar is implicit, per spec.
type TimeOfDay int

// EndOfDay is the default deadline used when a package carries none.
const EndOfDay TimeOfDay = TimeOfDay(19 * 3600) // DELIVERY_RETURN_TIME, 19:00

// New builds a TimeOfDay from an hour/minute/second triple.
func New(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// Parse reads "H:MM:SS am|pm" or "HH:MM" (24h), the two formats the
// package and CLI inputs use.
func Parse(s string) (TimeOfDay, error) {
	for _, layout := range []string{"3:04:05 pm", "3:04 pm", "15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return New(t.Hour(), t.Minute(), t.Second()), nil
		}
	}
	return 0, fmt.Errorf("timeutil: parse %q: unrecognized time-of-day format", s)
}

func (t TimeOfDay) String() string {
	h := int(t) / 3600
	m := (int(t) % 3600) / 60
	s := int(t) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Add returns t advanced by the given number of seconds (may be negative).
func (t TimeOfDay) Add(seconds int) TimeOfDay { return t + TimeOfDay(seconds) }

// Sub returns the number of seconds from u to t (t - u).
func (t TimeOfDay) Sub(u TimeOfDay) int { return int(t - u) }

// Before reports whether t is strictly earlier than u.
func (t TimeOfDay) Before(u TimeOfDay) bool { return t < u }

// After reports whether t is strictly later than u.
func (t TimeOfDay) After(u TimeOfDay) bool { return t > u }

// Clock converts miles traveled at a fixed speed, plus a pause, into
// an arrival TimeOfDay:
//
//	arrival = origin + (miles / mph) * 3600 + pauseSeconds
type Clock struct {
	MPH float64
}

// Arrival returns the time of arrival after covering miles from origin,
// including any pause (e.g. dwell time) once arrived.
func (c Clock) Arrival(miles float64, origin TimeOfDay, pauseSeconds int) TimeOfDay {
	travelSeconds := (miles / c.MPH) * 3600
	return origin.Add(int(travelSeconds)).Add(pauseSeconds)
}

// Miles is the inverse of Arrival with no pause: the distance
// coverable between start and end at the fixed MPH. Returns 0 when
// end precedes start, per spec.md §4.3.
func (c Clock) Miles(start, end TimeOfDay) float64 {
	if end.Before(start) {
		return 0
	}
	hours := float64(end.Sub(start)) / 3600.0
	return hours * c.MPH
}

// TravelSeconds is the whole-second travel time for a given distance.
func (c Clock) TravelSeconds(miles float64) int {
	return int((miles / c.MPH) * 3600)
}
