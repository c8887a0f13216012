package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// FormatDuration renders a day count as a coarse human-readable span:
// "12 days", "3 months", "2 years 3 months". Under a month it stays in
// days; above, years and months are derived with 365/30-day rounding.
func FormatDuration(days int) string {
	if days < 30 {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}

	years := days / 365
	months := (days % 365) / 30

	var parts []string
	if years == 1 {
		parts = append(parts, "1 year")
	} else if years > 1 {
		parts = append(parts, fmt.Sprintf("%d years", years))
	}
	if months == 1 {
		parts = append(parts, "1 month")
	} else if months > 1 {
		parts = append(parts, fmt.Sprintf("%d months", months))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("%d days", days)
	}
	return strings.Join(parts, " ")
}

// ExportFilename builds the deterministic output filename for an
// export: station labels joined by '-', then the date bounds with
// separators stripped, e.g.
//
//	meteo_BINGERVILLE-ABOBO_20230101-20231231.csv
//
// Station IDs are canonicalized (sorted) first so identical selections
// always produce the same name.
func ExportFilename(stations []string, start, end time.Time) string {
	ids := append([]string(nil), stations...)
	slices.Sort(ids)

	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = StationLabel(id)
	}

	return fmt.Sprintf("meteo_%s_%s-%s.csv",
		strings.Join(labels, "-"),
		start.Format("20060102"),
		end.Format("20060102"),
	)
}

// DateBlock is one contiguous sub-range of an export period.
type DateBlock struct {
	Start time.Time
	End   time.Time
}

// SplitDateRange divides [start, end] into blocks of at most maxDays
// days each. Blocks abut: each block's end is the next block's start.
// Returns nil when start is not before end or maxDays is not positive.
func SplitDateRange(start, end time.Time, maxDays int) []DateBlock {
	if maxDays <= 0 || !start.Before(end) {
		return nil
	}

	var blocks []DateBlock
	cur := start
	for cur.Before(end) {
		next := cur.AddDate(0, 0, maxDays)
		if next.After(end) {
			next = end
		}
		blocks = append(blocks, DateBlock{Start: cur, End: next})
		cur = next
	}
	return blocks
}

func formatDateOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateFormat)
}
