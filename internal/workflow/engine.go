// Package workflow contains the dependent-selection engine: the
// selection-driven gate derivation and the coordinators that fire
// asynchronous verification and estimation requests.
//
// Concurrency model: all user input is serialized through the engine
// mutex, the Go rendition of the original's single-threaded event
// loop. Network calls run in goroutines and re-enter through a
// coordinator's apply path, which drops any response whose request
// epoch or query key no longer matches the live selection. There is no
// in-flight cancellation — responses are idempotent reads and are
// suppressed at apply time instead.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/meteoci/station-export/internal/domain"
	"github.com/meteoci/station-export/internal/observability"
	"github.com/meteoci/station-export/internal/selection"
)

// CatalogSource is the startup slice of the DataService: health probe
// and the one-shot station and parameter catalogs.
type CatalogSource interface {
	Health(ctx context.Context) error
	Stations(ctx context.Context, stationType domain.StationType) ([]domain.Station, error)
	Parameters(ctx context.Context, stationType domain.StationType) ([]domain.ParameterCategory, error)
}

// Engine is the workflow controller. It reacts to every store
// mutation: invalidates downstream results, fires coordinator calls
// when their preconditions hold, recomputes the gate vector, and
// pushes everything to the presenter.
type Engine struct {
	store        *selection.Store
	catalogSrc   CatalogSource
	availability *AvailabilityCoordinator
	estimation   *EstimationCoordinator
	presenter    Presenter
	logger       *slog.Logger
	metrics      *observability.Metrics

	mu      sync.Mutex
	ctx     context.Context
	catalog domain.Catalog
	ready   atomic.Bool
}

// NewEngine wires the engine to its store, coordinators, and surface,
// and subscribes to store mutations. Coordinator calls inherit ctx;
// cancelling it stops all outstanding background requests from
// applying.
func NewEngine(
	ctx context.Context,
	store *selection.Store,
	catalogSrc CatalogSource,
	availability *AvailabilityCoordinator,
	estimation *EstimationCoordinator,
	presenter Presenter,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Engine {
	e := &Engine{
		store:        store,
		catalogSrc:   catalogSrc,
		availability: availability,
		estimation:   estimation,
		presenter:    presenter,
		logger:       logger,
		metrics:      metrics,
		ctx:          ctx,
	}
	store.Subscribe(e.onChange)
	return e
}

// Bootstrap probes the service and loads both catalogs once. A failed
// health probe is reported as a transient status and does not abort
// the load; missing catalogs do, since the wizard cannot run without
// them.
func (e *Engine) Bootstrap(ctx context.Context, stationType domain.StationType) error {
	if err := e.catalogSrc.Health(ctx); err != nil {
		e.logger.Warn("health check failed", "error", err)
		e.presenter.Toast(fmt.Sprintf("service unreachable: %v", err), SeverityWarning)
	}

	stations, err := e.catalogSrc.Stations(ctx, stationType)
	if err != nil {
		return fmt.Errorf("load stations: %w", err)
	}
	categories, err := e.catalogSrc.Parameters(ctx, stationType)
	if err != nil {
		return fmt.Errorf("load parameters: %w", err)
	}

	e.mu.Lock()
	e.catalog = domain.Catalog{Stations: stations, Categories: categories}
	e.mu.Unlock()
	e.ready.Store(true)

	e.logger.Info("catalogs loaded", "stations", len(stations), "categories", len(categories))
	e.render(e.store.Snapshot())
	return nil
}

// CheckReadiness reports whether the catalogs have been loaded.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return fmt.Errorf("catalogs not loaded yet")
	}
	return nil
}

// Catalog returns the loaded catalogs.
func (e *Engine) Catalog() domain.Catalog {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog
}

// Store exposes the selection store; user actions mutate through it.
func (e *Engine) Store() *selection.Store { return e.store }

// Gates returns the current gate vector.
func (e *Engine) Gates() Gates {
	return ComputeGates(e.store.Snapshot(), e.availability.Current(), e.estimation.Current())
}

// Availability returns the last valid availability result, nil if none.
func (e *Engine) Availability() *domain.AvailabilityResult {
	return e.availability.Current()
}

// Estimate returns the last valid estimate, nil if none.
func (e *Engine) Estimate() *domain.EstimateResult {
	return e.estimation.Current()
}

// QuickPeriod applies a "last n days" shortcut relative to today. It
// is accepted only once an availability result exists for the current
// station set and granularity; otherwise it is rejected with a
// user-facing warning and no state change.
func (e *Engine) QuickPeriod(days int) error {
	if days <= 0 {
		return domain.Validationf("quick period must be positive, got %d", days)
	}
	snap := e.store.Snapshot()
	if !e.availability.Current().ValidFor(snap) {
		e.presenter.Toast("check data availability before picking a quick period", SeverityWarning)
		return domain.Validationf("no availability result for the current selection")
	}

	end := domain.Today()
	start := end.AddDate(0, 0, -days)
	e.store.SetDateRange(start, end)
	return nil
}

// onChange is the store listener: every mutation lands here with its
// change descriptor, decides which results to invalidate and which
// coordinator to fire, then re-renders.
func (e *Engine) onChange(snap domain.SelectionState, change domain.Change, focus string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if focus != "" {
		e.presenter.FocusStation(focus)
	}

	// Station or granularity changes invalidate availability.
	if change.Has(domain.ChangeStations) || change.Has(domain.ChangeGranularity) {
		e.availability.Clear()
		if snap.HasStations() {
			if res := e.availability.Check(e.ctx, snap, e.store.Snapshot, e.handleAvailability); res != nil {
				e.presenter.RenderAvailability(res)
			} else {
				e.presenter.RenderAvailability(nil)
			}
		} else {
			e.presenter.RenderAvailability(nil)
		}
	}

	// Any change to stations, parameters, granularity, or dates
	// invalidates the estimate.
	e.estimation.Clear()
	e.presenter.RenderEstimate(nil)
	if snap.Complete() {
		e.estimation.Estimate(e.ctx, snap, e.store.Snapshot, e.handleEstimate)
	}

	e.renderLocked(snap)
}

// handleAvailability runs on a coordinator goroutine after a
// non-superseded response. The selection may still have moved on
// between the coordinator's apply and this render; a result that no
// longer matches the live selection is dropped so it can never
// overwrite the retraction already on screen.
func (e *Engine) handleAvailability(res *domain.AvailabilityResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.store.Snapshot()
	if err != nil {
		e.logger.Warn("availability check failed", "error", err)
		e.presenter.Toast(fmt.Sprintf("availability check failed: %v", err), SeverityError)
	} else {
		if !res.ValidFor(snap) {
			e.logger.Debug("availability result stale at render, dropped")
			return
		}
		e.presenter.RenderAvailability(res)
	}
	e.renderLocked(snap)
}

// handleEstimate runs on a coordinator goroutine after a
// non-superseded response. A failed estimate retracts the
// estimate-dependent UI but leaves the user's selections alone. Like
// handleAvailability, a result the selection outran between apply and
// render is dropped rather than displayed.
func (e *Engine) handleEstimate(res *domain.EstimateResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.store.Snapshot()
	if err != nil {
		e.logger.Warn("estimate failed", "error", err)
		e.presenter.RenderEstimate(nil)
		e.presenter.Toast(fmt.Sprintf("estimate failed: %v", err), SeverityError)
	} else {
		if !res.ValidFor(snap) {
			e.logger.Debug("estimate result stale at render, dropped")
			return
		}
		e.presenter.RenderEstimate(res)
	}
	e.renderLocked(snap)
}

func (e *Engine) render(snap domain.SelectionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderLocked(snap)
}

func (e *Engine) renderLocked(snap domain.SelectionState) {
	gates := ComputeGates(snap, e.availability.Current(), e.estimation.Current())
	e.metrics.WorkflowStep.Set(float64(gates.Step()))
	e.presenter.RenderState(snap, gates)
}
