package workflow

import "github.com/meteoci/station-export/internal/domain"

// Gates is the visibility vector for the wizard's four steps. Each
// gate is a pure function of the selection snapshot and the latest
// valid async results; no gate transition is itself asynchronous.
type Gates struct {
	Stations   bool // step 1: always visible
	Period     bool // step 2: at least one station selected
	Parameters bool // step 3: availability known for the current station+granularity
	Download   bool // step 4: full tuple selected and estimate valid for it
}

// ComputeGates derives the gate vector. Replaying the same inputs
// always yields the same vector.
func ComputeGates(snap domain.SelectionState, avail *domain.AvailabilityResult, est *domain.EstimateResult) Gates {
	return Gates{
		Stations:   true,
		Period:     snap.HasStations(),
		Parameters: snap.HasStations() && avail.ValidFor(snap),
		Download:   snap.Complete() && est.ValidFor(snap),
	}
}

// Step returns the highest unlocked step number (1-4).
func (g Gates) Step() int {
	switch {
	case g.Download:
		return 4
	case g.Parameters:
		return 3
	case g.Period:
		return 2
	default:
		return 1
	}
}
