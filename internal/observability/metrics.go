package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// export workflow.
type Metrics struct {
	// Coordinator outcomes. The "superseded" outcome counts responses
	// discarded because a newer request was issued before they arrived;
	// they are silent toward the user but visible here.
	CoordinatorRequests *prometheus.CounterVec // labels: coordinator={availability,estimate}, outcome={success,error,superseded}
	AvailabilityCache   *prometheus.CounterVec // labels: result={hit,miss}

	// DataService client metrics.
	APIRequestDuration *prometheus.HistogramVec // labels: endpoint

	// Download orchestrator metrics.
	Downloads     *prometheus.CounterVec // labels: outcome={success,error,rejected}
	DownloadBytes prometheus.Counter

	// Highest wizard step currently unlocked (1-4).
	WorkflowStep prometheus.Gauge
}

// NewMetrics creates and registers all workflow metrics with the
// default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CoordinatorRequests,
		m.AvailabilityCache,
		m.APIRequestDuration,
		m.Downloads,
		m.DownloadBytes,
		m.WorkflowStep,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so
// parallel tests do not hit "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CoordinatorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_export",
			Name:      "coordinator_requests_total",
			Help:      "Coordinator calls by coordinator and outcome.",
		}, []string{"coordinator", "outcome"}),
		AvailabilityCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_export",
			Name:      "availability_cache_total",
			Help:      "Availability cache lookups by result.",
		}, []string{"result"}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "station_export",
			Name:      "api_request_duration_seconds",
			Help:      "DataService request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_export",
			Name:      "downloads_total",
			Help:      "Download attempts by outcome.",
		}, []string{"outcome"}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_export",
			Name:      "download_bytes_total",
			Help:      "Total CSV payload bytes written.",
		}),
		WorkflowStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "station_export",
			Name:      "workflow_step",
			Help:      "Highest wizard step currently unlocked (1-4).",
		}),
	}
}
