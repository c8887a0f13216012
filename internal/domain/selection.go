package domain

import (
	"fmt"
	"time"
)

// DateFormat is the wire format for date-only values.
const DateFormat = "2006-01-02"

// Granularity is the temporal resolution of requested data, using the
// upstream wire codes (see package doc).
type Granularity string

const (
	GranularityMinute    Granularity = "U"
	GranularitySixMinute Granularity = "X"
	GranularityHourly    Granularity = "H"
	GranularityDaily     Granularity = "J"
)

// ParseGranularity validates a wire code. "D" is accepted as a legacy
// alias for daily.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityMinute, GranularitySixMinute, GranularityHourly, GranularityDaily:
		return Granularity(s), nil
	case "D":
		return GranularityDaily, nil
	default:
		return "", fmt.Errorf("unknown granularity %q", s)
	}
}

// Valid reports whether g is one of the known wire codes.
func (g Granularity) Valid() bool {
	_, err := ParseGranularity(string(g))
	return err == nil && g != "D"
}

// Label returns a human-readable name for the granularity.
func (g Granularity) Label() string {
	switch g {
	case GranularityMinute:
		return "minute"
	case GranularitySixMinute:
		return "6 minutes"
	case GranularityHourly:
		return "hourly"
	case GranularityDaily:
		return "daily"
	default:
		return string(g)
	}
}

// BlockLimitDays is the maximum date span in days the upstream service
// accepts in a single download request at this granularity.
func (g Granularity) BlockLimitDays() int {
	switch g {
	case GranularityMinute:
		return 7
	case GranularitySixMinute:
		return 31
	case GranularityHourly:
		return 180
	default:
		return 365
	}
}

// Change flags which selection fields a mutation touched. Downstream
// components use it to decide which derived results to invalidate.
type Change uint8

const (
	ChangeStations Change = 1 << iota
	ChangeParams
	ChangeGranularity
	ChangeDates
)

// Has reports whether the change includes the given flag.
func (c Change) Has(flag Change) bool {
	return c&flag != 0
}

// SelectionState is an immutable snapshot of the user's current
// selections. Station and parameter IDs are sorted and free of
// duplicates. Start and End are zero when unset, UTC midnight
// otherwise; Start never exceeds End when both are set.
type SelectionState struct {
	Stations    []string
	Params      []string
	Granularity Granularity
	Start       time.Time
	End         time.Time
}

// HasStations reports whether at least one station is selected.
func (s SelectionState) HasStations() bool { return len(s.Stations) > 0 }

// HasParams reports whether at least one parameter is selected.
func (s SelectionState) HasParams() bool { return len(s.Params) > 0 }

// DatesComplete reports whether both date bounds are set.
func (s SelectionState) DatesComplete() bool {
	return !s.Start.IsZero() && !s.End.IsZero()
}

// Complete reports whether the full export tuple is present: at least
// one station, at least one parameter, and both date bounds.
func (s SelectionState) Complete() bool {
	return s.HasStations() && s.HasParams() && s.DatesComplete()
}

// StationSelected reports whether the station ID is in the selection.
func (s SelectionState) StationSelected(id string) bool {
	for _, v := range s.Stations {
		if v == id {
			return true
		}
	}
	return false
}

// ParamSelected reports whether the parameter ID is in the selection.
func (s SelectionState) ParamSelected(id string) bool {
	for _, v := range s.Params {
		if v == id {
			return true
		}
	}
	return false
}
