package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/meteoci/station-export/internal/domain"
	"github.com/meteoci/station-export/internal/observability"
)

// Estimator fetches a row/byte-size estimate for a full export tuple.
type Estimator interface {
	Estimate(ctx context.Context, req domain.ExportRequest) (domain.EstimateResult, error)
}

// EstimationCoordinator issues estimate requests under the same
// epoch-and-query-key supersession rule as availability checks. This
// is where rapid re-selection meets network latency: whatever order
// responses arrive in, only the one matching the newest request and
// the live selection is applied, so the user always sees the estimate
// for their final selection. Estimates are not cached — they are cheap
// and sensitive to every input.
type EstimationCoordinator struct {
	svc     Estimator
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	epoch   uint64
	current *domain.EstimateResult
}

// NewEstimationCoordinator creates an estimation coordinator.
func NewEstimationCoordinator(svc Estimator, logger *slog.Logger, metrics *observability.Metrics) *EstimationCoordinator {
	return &EstimationCoordinator{svc: svc, logger: logger, metrics: metrics}
}

// Current returns the last applied estimate, nil when none is valid.
func (c *EstimationCoordinator) Current() *domain.EstimateResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Clear drops the current estimate and supersedes any in-flight
// request. Called on every selection change that touches an estimate
// input, so a stale value is never displayed as current.
func (c *EstimationCoordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.current = nil
}

// Estimate starts an estimate request for the snapshot's full tuple.
// onResult fires later with either the applied result or the request
// error; it never fires for a superseded response.
//
// Preconditions: snap.Complete() — at least one station, at least one
// parameter, both dates set (the store guarantees start <= end).
func (c *EstimationCoordinator) Estimate(
	ctx context.Context,
	snap domain.SelectionState,
	live func() domain.SelectionState,
	onResult func(*domain.EstimateResult, error),
) {
	key := domain.EstimateKeyFor(snap)
	req := domain.ExportRequestFrom(snap)

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	go func() {
		est, err := c.svc.Estimate(ctx, req)
		c.apply(epoch, key, est, err, live, onResult)
	}()
}

func (c *EstimationCoordinator) apply(
	epoch uint64,
	key domain.EstimateKey,
	est domain.EstimateResult,
	err error,
	live func() domain.SelectionState,
	onResult func(*domain.EstimateResult, error),
) {
	c.mu.Lock()
	if epoch != c.epoch || key != domain.EstimateKeyFor(live()) {
		c.mu.Unlock()
		c.metrics.CoordinatorRequests.WithLabelValues("estimate", "superseded").Inc()
		c.logger.Debug("estimate response superseded", "key", string(key))
		return
	}

	if err != nil {
		c.mu.Unlock()
		c.metrics.CoordinatorRequests.WithLabelValues("estimate", "error").Inc()
		onResult(nil, err)
		return
	}

	est.Key = key
	res := &est
	c.current = res
	c.mu.Unlock()

	c.metrics.CoordinatorRequests.WithLabelValues("estimate", "success").Inc()
	onResult(res, nil)
}
