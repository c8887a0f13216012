package domain

import (
	"slices"
	"strings"
	"time"
)

// StationAvailability is the recorded-data window reported for one
// station. A station with HasData false is valid domain content, not a
// failure: the service reached the station's archive and found nothing
// (or an upstream error string), and the wizard renders it as "no data".
type StationAvailability struct {
	HasData   bool      `json:"has_data"`
	FirstDate time.Time `json:"first_date,omitzero"`
	LastDate  time.Time `json:"last_date,omitzero"`
	DaysCount int       `json:"days_count,omitempty"`
	Duration  string    `json:"duration_formatted,omitempty"`
	Label     string    `json:"label"`
	Err       string    `json:"error,omitempty"`
}

// AvailabilityKey identifies the exact station set and granularity
// that produced an availability result.
type AvailabilityKey string

// NewAvailabilityKey canonicalizes a station set and granularity.
// The station order does not matter.
func NewAvailabilityKey(stations []string, g Granularity) AvailabilityKey {
	return AvailabilityKey(string(g) + "|" + canonicalIDs(stations))
}

// AvailabilityKeyFor derives the key for the live selection.
func AvailabilityKeyFor(s SelectionState) AvailabilityKey {
	return NewAvailabilityKey(s.Stations, s.Granularity)
}

// AvailabilityResult is the per-station availability map for one query.
type AvailabilityResult struct {
	Key      AvailabilityKey
	Stations map[string]StationAvailability
}

// ValidFor reports whether the result still matches the live selection.
func (r *AvailabilityResult) ValidFor(s SelectionState) bool {
	return r != nil && r.Key == AvailabilityKeyFor(s)
}

// EarliestFirstDate returns the earliest first date across stations
// that have data, or a zero time when none do. Used to bound the date
// pickers in the period step.
func (r *AvailabilityResult) EarliestFirstDate() time.Time {
	var earliest time.Time
	if r == nil {
		return earliest
	}
	for _, a := range r.Stations {
		if !a.HasData {
			continue
		}
		if earliest.IsZero() || a.FirstDate.Before(earliest) {
			earliest = a.FirstDate
		}
	}
	return earliest
}

// AnyData reports whether at least one station in the result has data.
func (r *AvailabilityResult) AnyData() bool {
	if r == nil {
		return false
	}
	for _, a := range r.Stations {
		if a.HasData {
			return true
		}
	}
	return false
}

// canonicalIDs joins a copy of the IDs in sorted order.
func canonicalIDs(ids []string) string {
	sorted := append([]string(nil), ids...)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}
