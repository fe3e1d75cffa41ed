package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricsOnce ensures metrics are registered only once
	metricsOnce sync.Once

	// importReportsTotal counts processed reports by result
	importReportsTotal *prometheus.CounterVec

	// importRowsTotal counts candidate rows by result
	importRowsTotal *prometheus.CounterVec

	importDuration prometheus.Histogram

	statusTransitionsTotal prometheus.Counter

	// statusHealsTotal counts targets that had more than one active status
	statusHealsTotal prometheus.Counter

	// tagChangesTotal counts tag attach/detach by action and direction
	tagChangesTotal *prometheus.CounterVec

	sourcesOutdatedTotal prometheus.Counter

	factGraphErrorsTotal *prometheus.CounterVec

	lastImportTimestamp prometheus.Gauge
)

// InitMetrics registers all Prometheus metrics.
// This should be called once at application startup
func InitMetrics() {
	metricsOnce.Do(func() {
		importReportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actionables_import_reports_total",
				Help: "Total number of reports processed by the importer by result",
			},
			[]string{"result"},
		)

		importRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actionables_import_rows_total",
				Help: "Total number of candidate indicator rows by result",
			},
			[]string{"result"},
		)

		importDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "actionables_import_duration_seconds",
				Help:    "Duration of import runs in seconds",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900},
			},
		)

		statusTransitionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "actionables_status_transitions_total",
				Help: "Total number of status link transitions",
			},
		)

		statusHealsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "actionables_status_heals_total",
				Help: "Total number of targets found with several active statuses",
			},
		)

		tagChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actionables_tag_changes_total",
				Help: "Total number of actionable tag changes by action and direction",
			},
			[]string{"action", "direction"},
		)

		sourcesOutdatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "actionables_sources_outdated_total",
				Help: "Total number of sources marked outdated",
			},
		)

		factGraphErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actionables_factgraph_errors_total",
				Help: "Total number of fact graph errors by type",
			},
			[]string{"error_type"},
		)

		lastImportTimestamp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "actionables_last_import_timestamp_seconds",
				Help: "Unix time of the last successful import run",
			},
		)
	})
}

// RecordReport records one report outcome.
// result: "imported", "failed"
func RecordReport(result string) {
	if importReportsTotal != nil {
		importReportsTotal.WithLabelValues(result).Inc()
	}
}

// RecordRows records candidate rows.
// result: "imported", "skipped"
func RecordRows(result string, n int) {
	if importRowsTotal != nil && n > 0 {
		importRowsTotal.WithLabelValues(result).Add(float64(n))
	}
}

func RecordStatusTransition() {
	if statusTransitionsTotal != nil {
		statusTransitionsTotal.Inc()
	}
}

func RecordStatusHeal() {
	if statusHealsTotal != nil {
		statusHealsTotal.Inc()
	}
}

// RecordTagChange records attached or detached tags.
// action: "add", "remove"
// direction: "inbound" (from fact tags), "outbound" (user actions)
func RecordTagChange(action, direction string, n int) {
	if tagChangesTotal != nil && n > 0 {
		tagChangesTotal.WithLabelValues(action, direction).Add(float64(n))
	}
}

func RecordSourcesOutdated(n int) {
	if sourcesOutdatedTotal != nil && n > 0 {
		sourcesOutdatedTotal.Add(float64(n))
	}
}

// RecordFactGraphError records a fact graph failure.
// errorType: "connection", "query", "circuit_open"
func RecordFactGraphError(errorType string) {
	if factGraphErrorsTotal != nil {
		factGraphErrorsTotal.WithLabelValues(errorType).Inc()
	}
}

// ImportTimer is a helper for timing import runs
type ImportTimer struct {
	start time.Time
}

func StartTimer() *ImportTimer {
	return &ImportTimer{start: time.Now()}
}

// ObserveDuration records the elapsed time and stamps the last import time.
func (t *ImportTimer) ObserveDuration() {
	if t == nil {
		return
	}
	if importDuration != nil {
		importDuration.Observe(time.Since(t.start).Seconds())
	}
	if lastImportTimestamp != nil {
		lastImportTimestamp.Set(float64(time.Now().Unix()))
	}
}
