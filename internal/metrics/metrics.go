// Package metrics exposes the engine's Prometheus counters and gauges.
// All metrics register against an injected Registerer so tests can use
// a private registry instead of process-wide state.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all engine metrics.
	Namespace = "listing_engine"
)

// Pass outcome label values for ModelPassesTotal.
const (
	PassStatusOK          = "ok"
	PassStatusFetchError  = "fetch_error"
	PassStatusCommitError = "commit_error"
)

// Metrics holds all Prometheus metrics for the listing engine.
type Metrics struct {
	// Revalidation
	RunsTotal              prometheus.Counter
	ModelPassesTotal       *prometheus.CounterVec
	ListingsUpsertedTotal  prometheus.Counter
	ListingsArchivedTotal  *prometheus.CounterVec
	CandidatesFetchedTotal prometheus.Counter
	FilterAnomaliesTotal   prometheus.Counter
	StaleBacklog           prometheus.Gauge
	LastRunTimestamp       prometheus.Gauge
	LastRunDuration        prometheus.Gauge

	// Cleanup
	CleanupRunsTotal        prometheus.Counter
	CleanupListingsTotal    prometheus.Counter
	CleanupLastRunTimestamp prometheus.Gauge
	CleanupLastRunDuration  prometheus.Gauge
}

// New creates and registers all engine metrics. A nil registerer
// falls back to the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "revalidation_runs_total",
			Help:      "Total number of revalidation runs started",
		}),
		ModelPassesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "model_passes_total",
			Help:      "Per-model revalidation passes by outcome",
		}, []string{"status"}),
		ListingsUpsertedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "listings_upserted_total",
			Help:      "Total number of listings inserted or refreshed",
		}),
		ListingsArchivedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "listings_archived_total",
			Help:      "Total number of listings archived, by exclusion reason",
		}, []string{"reason"}),
		CandidatesFetchedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "candidates_fetched_total",
			Help:      "Total raw candidates collected from the marketplace",
		}),
		FilterAnomaliesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "filter_anomalies_total",
			Help:      "Listings that matched neither model nor accessory keywords",
		}),
		StaleBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "stale_backlog",
			Help:      "Models left unprocessed by the most recent revalidation run",
		}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the most recent revalidation run",
		}),
		LastRunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the most recent revalidation run",
		}),
		CleanupRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cleanup_runs_total",
			Help:      "Total number of cleanup sweeps started",
		}),
		CleanupListingsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cleanup_listings_processed_total",
			Help:      "Active listings re-filtered by cleanup sweeps",
		}),
		CleanupLastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cleanup_last_run_timestamp_seconds",
			Help:      "Unix timestamp of the most recent cleanup sweep",
		}),
		CleanupLastRunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cleanup_last_run_duration_seconds",
			Help:      "Duration of the most recent cleanup sweep",
		}),
	}
}

// ObserveRun records the terminal gauges for a revalidation run.
func (m *Metrics) ObserveRun(startedAt time.Time, duration time.Duration, remaining int) {
	m.LastRunTimestamp.Set(float64(startedAt.Unix()))
	m.LastRunDuration.Set(duration.Seconds())
	m.StaleBacklog.Set(float64(remaining))
}

// ObserveCleanup records the terminal gauges for a cleanup sweep.
func (m *Metrics) ObserveCleanup(startedAt time.Time, duration time.Duration) {
	m.CleanupLastRunTimestamp.Set(float64(startedAt.Unix()))
	m.CleanupLastRunDuration.Set(duration.Seconds())
}
