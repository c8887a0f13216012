package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/meteoci/station-export/internal/domain"
	"github.com/meteoci/station-export/internal/observability"
)

// AvailabilityChecker fetches per-station data-availability windows.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, stations []string, g domain.Granularity) (map[string]domain.StationAvailability, error)
}

// AvailabilityCoordinator issues availability checks and guarantees
// that only the response matching the newest request and the live
// selection is ever applied. Results are cached by query key; a repeat
// query for a station set already checked this session is answered
// without a network call.
type AvailabilityCoordinator struct {
	svc     AvailabilityChecker
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	epoch   uint64
	cache   *resultCache
	current *domain.AvailabilityResult
}

// NewAvailabilityCoordinator creates a coordinator with an LRU result
// cache of the given size.
func NewAvailabilityCoordinator(svc AvailabilityChecker, cacheSize int, logger *slog.Logger, metrics *observability.Metrics) *AvailabilityCoordinator {
	return &AvailabilityCoordinator{
		svc:     svc,
		logger:  logger,
		metrics: metrics,
		cache:   newResultCache(cacheSize),
	}
}

// Current returns the last applied result, nil when none is valid.
func (c *AvailabilityCoordinator) Current() *domain.AvailabilityResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Clear drops the current result and supersedes any in-flight request.
// Called when the station set empties or changes shape.
func (c *AvailabilityCoordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.current = nil
}

// Check starts a verification for the snapshot's station set and
// granularity. When the result is already cached it is applied and
// returned synchronously with no network call. Otherwise the request
// runs in the background and onResult is invoked later — only if no
// newer request was issued meanwhile and the live selection still
// matches the query key. Superseded responses are discarded silently.
//
// Preconditions: the snapshot has at least one station.
func (c *AvailabilityCoordinator) Check(
	ctx context.Context,
	snap domain.SelectionState,
	live func() domain.SelectionState,
	onResult func(*domain.AvailabilityResult, error),
) *domain.AvailabilityResult {
	key := domain.AvailabilityKeyFor(snap)

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	if res, ok := c.cache.get(key); ok {
		c.current = res
		c.mu.Unlock()
		c.metrics.AvailabilityCache.WithLabelValues("hit").Inc()
		return res
	}
	c.mu.Unlock()
	c.metrics.AvailabilityCache.WithLabelValues("miss").Inc()

	stations := append([]string(nil), snap.Stations...)
	granularity := snap.Granularity

	go func() {
		perStation, err := c.svc.CheckAvailability(ctx, stations, granularity)
		c.apply(epoch, key, perStation, err, live, onResult)
	}()
	return nil
}

func (c *AvailabilityCoordinator) apply(
	epoch uint64,
	key domain.AvailabilityKey,
	perStation map[string]domain.StationAvailability,
	err error,
	live func() domain.SelectionState,
	onResult func(*domain.AvailabilityResult, error),
) {
	c.mu.Lock()
	if epoch != c.epoch || key != domain.AvailabilityKeyFor(live()) {
		c.mu.Unlock()
		c.metrics.CoordinatorRequests.WithLabelValues("availability", "superseded").Inc()
		c.logger.Debug("availability response superseded", "key", string(key))
		return
	}

	if err != nil {
		c.mu.Unlock()
		c.metrics.CoordinatorRequests.WithLabelValues("availability", "error").Inc()
		onResult(nil, err)
		return
	}

	res := &domain.AvailabilityResult{Key: key, Stations: perStation}
	c.cache.put(key, res)
	c.current = res
	c.mu.Unlock()

	c.metrics.CoordinatorRequests.WithLabelValues("availability", "success").Inc()
	onResult(res, nil)
}
