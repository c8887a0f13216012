// Package selection owns the wizard's selection state. All mutations go
// through the Store; rendering code only ever sees immutable snapshots.
package selection

import (
	"slices"
	"sync"
	"time"

	"github.com/meteoci/station-export/internal/domain"
)

// Listener receives every new snapshot together with a change
// descriptor. focus carries a station ID when a toggle newly selected
// that station and the surface should center on it; it is a side-effect
// notification, not part of the state.
type Listener func(snap domain.SelectionState, change domain.Change, focus string)

// Store is the single source of truth for the current station set,
// parameter set, granularity, and date range. It guarantees the date
// invariant (start <= end when both set) by clearing the opposing
// bound instead of rejecting a mutation.
type Store struct {
	mu       sync.Mutex
	stations map[string]struct{}
	params   map[string]struct{}
	gran     domain.Granularity
	start    time.Time
	end      time.Time
	listener Listener
}

// New creates an empty store with the given default granularity.
func New(defaultGranularity domain.Granularity) *Store {
	return &Store{
		stations: make(map[string]struct{}),
		params:   make(map[string]struct{}),
		gran:     defaultGranularity,
	}
}

// Subscribe registers the listener notified after every effective
// mutation. Only one listener is supported; the last registration wins.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// Snapshot returns the current state as an immutable snapshot.
func (s *Store) Snapshot() domain.SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SetStations replaces the station set.
func (s *Store) SetStations(ids []string) (domain.SelectionState, domain.Change) {
	return s.mutate(func() (domain.Change, string) {
		next := toSet(ids)
		if setsEqual(s.stations, next) {
			return 0, ""
		}
		s.stations = next
		return domain.ChangeStations, ""
	})
}

// ToggleStation flips one station's membership. A station that becomes
// newly selected is reported as the focus target.
func (s *Store) ToggleStation(id string) (domain.SelectionState, domain.Change) {
	return s.mutate(func() (domain.Change, string) {
		if _, ok := s.stations[id]; ok {
			delete(s.stations, id)
			return domain.ChangeStations, ""
		}
		s.stations[id] = struct{}{}
		return domain.ChangeStations, id
	})
}

// SelectAllVisible adds every ID from the currently visible (filtered)
// station list to the selection.
func (s *Store) SelectAllVisible(filteredIDs []string) (domain.SelectionState, domain.Change) {
	return s.mutate(func() (domain.Change, string) {
		changed := false
		for _, id := range filteredIDs {
			if _, ok := s.stations[id]; !ok {
				s.stations[id] = struct{}{}
				changed = true
			}
		}
		if !changed {
			return 0, ""
		}
		return domain.ChangeStations, ""
	})
}

// SetParams replaces the parameter set.
func (s *Store) SetParams(ids []string) (domain.SelectionState, domain.Change) {
	return s.mutate(func() (domain.Change, string) {
		next := toSet(ids)
		if setsEqual(s.params, next) {
			return 0, ""
		}
		s.params = next
		return domain.ChangeParams, ""
	})
}

// ToggleParam flips one parameter's membership. When forced is non-nil
// the parameter is driven to that state instead of flipped; forcing a
// parameter into the state it already has is a no-op.
func (s *Store) ToggleParam(id string, forced *bool) (domain.SelectionState, domain.Change) {
	return s.mutate(func() (domain.Change, string) {
		_, selected := s.params[id]
		want := !selected
		if forced != nil {
			want = *forced
		}
		if want == selected {
			return 0, ""
		}
		if want {
			s.params[id] = struct{}{}
		} else {
			delete(s.params, id)
		}
		return domain.ChangeParams, ""
	})
}

// SetGranularity switches the temporal resolution.
func (s *Store) SetGranularity(g domain.Granularity) (domain.SelectionState, domain.Change) {
	return s.mutate(func() (domain.Change, string) {
		if !g.Valid() || g == s.gran {
			return 0, ""
		}
		s.gran = g
		return domain.ChangeGranularity, ""
	})
}

// SetStart sets the range start. If the new start exceeds the current
// end, the end is cleared rather than the call rejected.
func (s *Store) SetStart(t time.Time) (domain.SelectionState, domain.Change) {
	return s.mutate(func() (domain.Change, string) {
		t = normalizeDate(t)
		if s.start.Equal(t) {
			return 0, ""
		}
		s.start = t
		if !t.IsZero() && !s.end.IsZero() && t.After(s.end) {
			s.end = time.Time{}
		}
		return domain.ChangeDates, ""
	})
}

// SetEnd sets the range end. If the new end precedes the current
// start, the start is cleared rather than the call rejected.
func (s *Store) SetEnd(t time.Time) (domain.SelectionState, domain.Change) {
	return s.mutate(func() (domain.Change, string) {
		t = normalizeDate(t)
		if s.end.Equal(t) {
			return 0, ""
		}
		s.end = t
		if !t.IsZero() && !s.start.IsZero() && t.Before(s.start) {
			s.start = time.Time{}
		}
		return domain.ChangeDates, ""
	})
}

// SetDateRange sets both bounds at once. An inverted pair keeps the
// start and clears the end, preserving the date invariant.
func (s *Store) SetDateRange(start, end time.Time) (domain.SelectionState, domain.Change) {
	return s.mutate(func() (domain.Change, string) {
		start, end = normalizeDate(start), normalizeDate(end)
		if !start.IsZero() && !end.IsZero() && start.After(end) {
			end = time.Time{}
		}
		if s.start.Equal(start) && s.end.Equal(end) {
			return 0, ""
		}
		s.start, s.end = start, end
		return domain.ChangeDates, ""
	})
}

// ClearAll resets stations, parameters, and the date range. The
// granularity is kept. Clearing an already empty store emits nothing.
func (s *Store) ClearAll() (domain.SelectionState, domain.Change) {
	return s.mutate(func() (domain.Change, string) {
		var change domain.Change
		if len(s.stations) > 0 {
			s.stations = make(map[string]struct{})
			change |= domain.ChangeStations
		}
		if len(s.params) > 0 {
			s.params = make(map[string]struct{})
			change |= domain.ChangeParams
		}
		if !s.start.IsZero() || !s.end.IsZero() {
			s.start, s.end = time.Time{}, time.Time{}
			change |= domain.ChangeDates
		}
		return change, ""
	})
}

// mutate runs op under the lock, snapshots, and notifies the listener
// outside the lock when something actually changed.
func (s *Store) mutate(op func() (domain.Change, string)) (domain.SelectionState, domain.Change) {
	s.mu.Lock()
	change, focus := op()
	snap := s.snapshotLocked()
	listener := s.listener
	s.mu.Unlock()

	if change != 0 && listener != nil {
		listener(snap, change, focus)
	}
	return snap, change
}

func (s *Store) snapshotLocked() domain.SelectionState {
	return domain.SelectionState{
		Stations:    sortedKeys(s.stations),
		Params:      sortedKeys(s.params),
		Granularity: s.gran,
		Start:       s.start,
		End:         s.end,
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func normalizeDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
