package domain

import "strings"

// StationType classifies a measuring site.
type StationType string

const (
	StationUrban StationType = "urban"
	StationRural StationType = "rural"
)

// Station is one measuring site from the station catalog.
// The catalog is loaded once at startup and never mutated.
type Station struct {
	ID     string      `json:"id"`
	Label  string      `json:"label"`
	Region string      `json:"region,omitempty"`
	Type   StationType `json:"type"`
	Lat    float64     `json:"lat,omitempty"`
	Lon    float64     `json:"lon,omitempty"`
}

// StationLabel derives a display token from a station ID by stripping
// the country prefix, e.g. "CI_BINGERVILLE" -> "BINGERVILLE".
func StationLabel(id string) string {
	return strings.TrimPrefix(id, "CI_")
}

// Parameter is one measured quantity, unique within its category.
type Parameter struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ParameterCategory groups related parameters for display, in catalog order.
type ParameterCategory struct {
	Key    string      `json:"key"`
	Label  string      `json:"label"`
	Params []Parameter `json:"params"`
}

// Catalog holds the station and parameter catalogs loaded once at startup.
type Catalog struct {
	Stations   []Station
	Categories []ParameterCategory
}

// Station looks up a station by ID.
func (c *Catalog) Station(id string) (Station, bool) {
	for _, s := range c.Stations {
		if s.ID == id {
			return s, true
		}
	}
	return Station{}, false
}

// HasParam reports whether a parameter ID exists in any category.
func (c *Catalog) HasParam(id string) bool {
	for _, cat := range c.Categories {
		for _, p := range cat.Params {
			if p.ID == id {
				return true
			}
		}
	}
	return false
}

// ParamCount returns the total number of parameters across categories.
func (c *Catalog) ParamCount() int {
	n := 0
	for _, cat := range c.Categories {
		n += len(cat.Params)
	}
	return n
}

// SelectionCounts returns, per category key, how many of the selected
// parameter IDs belong to that category. Categories with no selected
// parameters are present with a zero count so the parameter step can
// render cumulative counts for every group.
func (c *Catalog) SelectionCounts(selected []string) map[string]int {
	chosen := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		chosen[id] = struct{}{}
	}

	counts := make(map[string]int, len(c.Categories))
	for _, cat := range c.Categories {
		n := 0
		for _, p := range cat.Params {
			if _, ok := chosen[p.ID]; ok {
				n++
			}
		}
		counts[cat.Key] = n
	}
	return counts
}
