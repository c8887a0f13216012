package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteoci/station-export/internal/domain"
	"github.com/meteoci/station-export/internal/observability"
	"github.com/meteoci/station-export/internal/selection"
)

// spyPresenter records every call so tests can assert on what the
// surface was told, in order.
type spyPresenter struct {
	mu        sync.Mutex
	gates     Gates
	avail     []*domain.AvailabilityResult
	estimates []*domain.EstimateResult
	toasts    []toastCall
	focused   []string
}

type toastCall struct {
	message  string
	severity Severity
}

func (p *spyPresenter) RenderState(_ domain.SelectionState, gates Gates) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gates = gates
}

func (p *spyPresenter) RenderAvailability(res *domain.AvailabilityResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.avail = append(p.avail, res)
}

func (p *spyPresenter) RenderEstimate(res *domain.EstimateResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.estimates = append(p.estimates, res)
}

func (p *spyPresenter) FocusStation(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.focused = append(p.focused, id)
}

func (p *spyPresenter) Toast(message string, severity Severity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toasts = append(p.toasts, toastCall{message, severity})
}

func (p *spyPresenter) Progress(int, string) {}

func (p *spyPresenter) lastAvailability() (*domain.AvailabilityResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.avail) == 0 {
		return nil, false
	}
	return p.avail[len(p.avail)-1], true
}

func (p *spyPresenter) lastEstimate() (*domain.EstimateResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.estimates) == 0 {
		return nil, false
	}
	return p.estimates[len(p.estimates)-1], true
}

func (p *spyPresenter) renderedRows() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var rows []int
	for _, est := range p.estimates {
		if est != nil {
			rows = append(rows, est.Rows)
		}
	}
	return rows
}

func (p *spyPresenter) lastToast() (toastCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.toasts) == 0 {
		return toastCall{}, false
	}
	return p.toasts[len(p.toasts)-1], true
}

func (p *spyPresenter) currentGates() Gates {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gates
}

// fakeChecker answers every availability query with a fixed window.
type fakeChecker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeChecker) CheckAvailability(_ context.Context, stations []string, _ domain.Granularity) (map[string]domain.StationAvailability, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.StationAvailability, len(stations))
	for _, id := range stations {
		out[id] = domain.StationAvailability{
			HasData:   true,
			FirstDate: time.Date(2018, 3, 15, 0, 0, 0, 0, time.UTC),
			Label:     domain.StationLabel(id),
		}
	}
	return out, nil
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingEstimator parks every request on a channel so tests control
// the order in which responses arrive.
type blockingEstimator struct {
	mu      sync.Mutex
	pending []chan domain.EstimateResult
}

func (b *blockingEstimator) Estimate(ctx context.Context, _ domain.ExportRequest) (domain.EstimateResult, error) {
	ch := make(chan domain.EstimateResult, 1)
	b.mu.Lock()
	b.pending = append(b.pending, ch)
	b.mu.Unlock()

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return domain.EstimateResult{}, ctx.Err()
	}
}

func (b *blockingEstimator) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *blockingEstimator) release(i, rows int) {
	b.mu.Lock()
	ch := b.pending[i]
	b.mu.Unlock()
	ch <- domain.EstimateResult{Rows: rows, SizeKB: rows / 50}
}

func newTestEngine(t *testing.T, checker AvailabilityChecker, est Estimator) (*Engine, *selection.Store, *spyPresenter) {
	t.Helper()
	logger := observability.NewTestLogger()
	metrics := observability.NewMetricsForTesting()
	store := selection.New(domain.GranularityHourly)
	spy := &spyPresenter{}
	eng := NewEngine(
		context.Background(),
		store,
		nil,
		NewAvailabilityCoordinator(checker, 8, logger, metrics),
		NewEstimationCoordinator(est, logger, metrics),
		spy,
		logger,
		metrics,
	)
	return eng, store, spy
}

func waitTick(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func selectCompleteTuple(t *testing.T, store *selection.Store, spy *spyPresenter) {
	t.Helper()
	store.ToggleStation("CI_BINGERVILLE")
	waitTick(t, func() bool {
		res, ok := spy.lastAvailability()
		return ok && res != nil
	}, "availability result never rendered")
	store.ToggleParam("Temp._inst", nil)
	store.SetDateRange(
		time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC),
	)
}

// The engine's core guarantee: whatever order estimate responses
// arrive in, the displayed estimate is always the one matching the
// user's final selection.
func TestEngine_SupersededEstimateDiscarded(t *testing.T) {
	orders := map[string][2]int{
		"stale response arrives first": {0, 1},
		"stale response arrives last":  {1, 0},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			est := &blockingEstimator{}
			_, store, spy := newTestEngine(t, &fakeChecker{}, est)

			selectCompleteTuple(t, store, spy)
			waitTick(t, func() bool { return est.callCount() == 1 }, "first estimate never requested")

			// The user changes their mind while request A is in flight.
			store.ToggleParam("Cum._pluie", nil)
			waitTick(t, func() bool { return est.callCount() == 2 }, "second estimate never requested")

			rows := map[int]int{0: 111, 1: 222}
			est.release(order[0], rows[order[0]])
			est.release(order[1], rows[order[1]])

			waitTick(t, func() bool {
				res, ok := spy.lastEstimate()
				return ok && res != nil && res.Rows == 222
			}, "final selection's estimate never displayed")

			assert.NotContains(t, spy.renderedRows(), 111,
				"superseded response must be discarded silently, never rendered")
			assert.True(t, spy.currentGates().Download, "valid estimate unlocks the download gate")
		})
	}
}

// instantEstimator answers immediately, maximizing pressure on the
// window between a coordinator's apply and the engine's render.
type instantEstimator struct{}

func (instantEstimator) Estimate(_ context.Context, req domain.ExportRequest) (domain.EstimateResult, error) {
	return domain.EstimateResult{Rows: 100 * len(req.Params)}, nil
}

// A response can clear the coordinator's epoch check and then lose the
// engine mutex to a mutation that retracts the estimate. The late
// render must drop the result, not put it back on screen.
func TestEngine_LateEstimateAfterRetractionIsDropped(t *testing.T) {
	est := &blockingEstimator{}
	eng, store, spy := newTestEngine(t, &fakeChecker{}, est)

	selectCompleteTuple(t, store, spy)
	waitTick(t, func() bool { return est.callCount() == 1 }, "estimate never requested")
	stale := &domain.EstimateResult{Key: domain.EstimateKeyFor(store.Snapshot()), Rows: 111}

	// Removing the last parameter makes the tuple incomplete: the
	// estimate is retracted and no new request will overwrite it.
	store.ToggleParam("Temp._inst", nil)
	res, ok := spy.lastEstimate()
	require.True(t, ok)
	require.Nil(t, res)

	// The response that already passed the coordinator now reaches the
	// engine. It was valid when applied but the selection has moved on.
	eng.handleEstimate(stale, nil)

	res, ok = spy.lastEstimate()
	require.True(t, ok)
	assert.Nil(t, res, "retraction must stay; the stale estimate must not render")
	assert.False(t, spy.currentGates().Download)
}

func TestEngine_LateAvailabilityAfterRetractionIsDropped(t *testing.T) {
	eng, store, spy := newTestEngine(t, &fakeChecker{}, &blockingEstimator{})

	store.ToggleStation("CI_BINGERVILLE")
	waitTick(t, func() bool {
		res, ok := spy.lastAvailability()
		return ok && res != nil
	}, "availability never rendered")
	stale := &domain.AvailabilityResult{
		Key:      domain.AvailabilityKeyFor(store.Snapshot()),
		Stations: map[string]domain.StationAvailability{"CI_BINGERVILLE": {HasData: true}},
	}

	store.ToggleStation("CI_BINGERVILLE")
	res, ok := spy.lastAvailability()
	require.True(t, ok)
	require.Nil(t, res)

	eng.handleAvailability(stale, nil)

	res, ok = spy.lastAvailability()
	require.True(t, ok)
	assert.Nil(t, res, "retraction must stay; the stale availability must not render")
	assert.False(t, spy.currentGates().Parameters)
}

// Stress the same window end to end: an instant estimator and rapid
// toggling of the last parameter. After the final retraction no
// estimate may ever render again.
func TestEngine_RapidToggleNeverRevivesRetractedEstimate(t *testing.T) {
	_, store, spy := newTestEngine(t, &fakeChecker{}, instantEstimator{})

	selectCompleteTuple(t, store, spy)

	for i := 0; i < 500; i++ {
		store.ToggleParam("Temp._inst", nil) // off: retract
		store.ToggleParam("Temp._inst", nil) // on: re-request
	}
	store.ToggleParam("Temp._inst", nil) // final state: no parameters

	assert.Never(t, func() bool {
		res, ok := spy.lastEstimate()
		return ok && res != nil
	}, 150*time.Millisecond, 5*time.Millisecond,
		"an estimate rendered although the selection has no parameters")
}

func TestEngine_EstimateInvalidatedOnEveryInputChange(t *testing.T) {
	est := &blockingEstimator{}
	_, store, spy := newTestEngine(t, &fakeChecker{}, est)

	selectCompleteTuple(t, store, spy)
	waitTick(t, func() bool { return est.callCount() == 1 }, "estimate never requested")
	est.release(0, 500)
	waitTick(t, func() bool {
		res, ok := spy.lastEstimate()
		return ok && res != nil && res.Rows == 500
	}, "estimate never displayed")

	// Shrinking the date range retracts the estimate immediately; the
	// gate closes before any new response arrives.
	store.SetEnd(time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC))
	res, ok := spy.lastEstimate()
	require.True(t, ok)
	assert.Nil(t, res, "stale estimate must be retracted, not left on screen")
	assert.False(t, spy.currentGates().Download)
}

func TestEngine_DeselectLastStationClearsEverything(t *testing.T) {
	checker := &fakeChecker{}
	eng, store, spy := newTestEngine(t, checker, &blockingEstimator{})

	store.ToggleStation("CI_BINGERVILLE")
	waitTick(t, func() bool {
		res, ok := spy.lastAvailability()
		return ok && res != nil
	}, "availability never rendered")

	store.ToggleStation("CI_BINGERVILLE")
	res, ok := spy.lastAvailability()
	require.True(t, ok)
	assert.Nil(t, res, "empty station set retracts availability")
	assert.Nil(t, eng.Availability())
	gates := spy.currentGates()
	assert.False(t, gates.Period)
	assert.False(t, gates.Parameters)

	// Repeating the now-empty clear is harmless.
	store.ClearAll()
	assert.Nil(t, eng.Availability())
}

func TestEngine_AvailabilityCacheHitSkipsServiceCall(t *testing.T) {
	checker := &fakeChecker{}
	_, store, spy := newTestEngine(t, checker, &blockingEstimator{})

	store.ToggleStation("CI_BINGERVILLE")
	waitTick(t, func() bool {
		res, ok := spy.lastAvailability()
		return ok && res != nil
	}, "availability never rendered")
	require.Equal(t, 1, checker.callCount())

	store.ToggleStation("CI_BINGERVILLE") // deselect
	store.ToggleStation("CI_BINGERVILLE") // reselect the same set

	// Same query key: answered from cache, rendered synchronously.
	res, ok := spy.lastAvailability()
	require.True(t, ok)
	assert.NotNil(t, res)
	assert.Equal(t, 1, checker.callCount(), "repeat query must not hit the service")
}

func TestEngine_AvailabilityErrorToastsWithoutMutating(t *testing.T) {
	checker := &fakeChecker{err: errors.New("boom")}
	eng, store, spy := newTestEngine(t, checker, &blockingEstimator{})

	store.ToggleStation("CI_BINGERVILLE")
	waitTick(t, func() bool {
		toast, ok := spy.lastToast()
		return ok && toast.severity == SeverityError
	}, "failure toast never shown")

	assert.Nil(t, eng.Availability())
	snap := store.Snapshot()
	assert.Equal(t, []string{"CI_BINGERVILLE"}, snap.Stations, "failure leaves the selection untouched")
	assert.False(t, spy.currentGates().Parameters)
}

func TestEngine_FocusFollowsNewSelection(t *testing.T) {
	_, store, spy := newTestEngine(t, &fakeChecker{}, &blockingEstimator{})

	store.ToggleStation("CI_YAMOUSSOUKRO")
	waitTick(t, func() bool {
		spy.mu.Lock()
		defer spy.mu.Unlock()
		return len(spy.focused) == 1 && spy.focused[0] == "CI_YAMOUSSOUKRO"
	}, "focus never signalled")

	store.ToggleStation("CI_YAMOUSSOUKRO")
	spy.mu.Lock()
	defer spy.mu.Unlock()
	assert.Len(t, spy.focused, 1, "deselection must not focus")
}

func TestEngine_QuickPeriod(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2023, 6, 15, 12, 30, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	eng, store, spy := newTestEngine(t, &fakeChecker{}, &blockingEstimator{})

	// Rejected before an availability result exists.
	err := eng.QuickPeriod(7)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	toast, ok := spy.lastToast()
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, toast.severity)

	store.ToggleStation("CI_BINGERVILLE")
	waitTick(t, func() bool {
		res, ok := spy.lastAvailability()
		return ok && res != nil
	}, "availability never rendered")

	require.NoError(t, eng.QuickPeriod(7))
	snap := store.Snapshot()
	assert.Equal(t, time.Date(2023, 6, 8, 0, 0, 0, 0, time.UTC), snap.Start)
	assert.Equal(t, time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC), snap.End)

	assert.Error(t, eng.QuickPeriod(0), "non-positive spans are invalid")
}
