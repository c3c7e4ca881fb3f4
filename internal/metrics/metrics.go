// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycle Metrics

	// CyclesTotal counts pipeline cycles by result (success, missing_input, failed).
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "track_enrichment_cycles_total",
			Help: "Total number of pipeline cycles by result",
		},
		[]string{"result"},
	)

	// CycleDuration tracks wall time of a full cycle.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "track_enrichment_cycle_duration_seconds",
			Help:    "Duration of pipeline cycles in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
	)

	// StageDuration tracks time spent in each driver state.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "track_enrichment_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"stage"},
	)

	// CurrentState is 1 for the state the driver is in and 0 for the others.
	CurrentState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "track_enrichment_state",
			Help: "Current pipeline driver state",
		},
		[]string{"state"},
	)

	// Track Metrics

	// TrackOutcomes counts enrichment outcomes per stage.
	TrackOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "track_enrichment_track_outcomes_total",
			Help: "Per-track enrichment outcomes by stage and status",
		},
		[]string{"stage", "status"},
	)

	// DownloadFailures counts links that could not be fetched.
	DownloadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "track_enrichment_download_failures_total",
			Help: "Total number of GPX links that failed to download",
		},
	)

	// RowsPersisted is the row count of the last persisted dataset.
	RowsPersisted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "track_enrichment_rows_persisted",
			Help: "Number of rows written by the last successful persist",
		},
	)

	// External Service Metrics

	// ExternalRequests counts outbound requests by service and result.
	ExternalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "track_enrichment_external_requests_total",
			Help: "Outbound geodata requests by service and result",
		},
		[]string{"service", "result"},
	)

	// CacheLookups counts response cache hits and misses.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "track_enrichment_cache_lookups_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"},
	)
)

// SetState marks state as the current driver state.
func SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		CurrentState.WithLabelValues(s).Set(v)
	}
}
