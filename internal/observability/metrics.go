// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	RecordsIngested prometheus.Counter
	RecordsFiltered prometheus.Counter
	RecordsSkipped  *prometheus.CounterVec
	PagesFetched    prometheus.Counter
	ProductsCreated prometheus.Counter

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	// Source metrics
	SourceRequestLatency prometheus.Histogram
	SourceRequestErrors  prometheus.Counter

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cloudmarketwatch"
	}

	return &Metrics{
		RecordsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_ingested_total",
			Help:      "Total number of price observations persisted",
		}),
		RecordsFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_filtered_total",
			Help:      "Total number of records outside the query window",
		}),
		RecordsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_skipped_total",
			Help:      "Total number of malformed records skipped",
		}, []string{"reason"}),
		PagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "pages_fetched_total",
			Help:      "Total number of source pages fetched",
		}),
		ProductsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "products_created_total",
			Help:      "Total number of products created on catalog miss",
		}),
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Total number of runs by outcome",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Duration of complete runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		SourceRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "request_duration_seconds",
			Help:      "Latency of spot price history page requests",
			Buckets:   prometheus.DefBuckets,
		}),
		SourceRequestErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "request_errors_total",
			Help:      "Total number of failed source requests after retries",
		}),
		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful run",
		}),
	}
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordIngested increments the persisted observation counter.
func RecordIngested(n int) {
	DefaultMetrics.RecordsIngested.Add(float64(n))
}

// RecordFiltered increments the out-of-window counter.
func RecordFiltered(n int) {
	DefaultMetrics.RecordsFiltered.Add(float64(n))
}

// RecordSkipped counts a malformed record by reason.
func RecordSkipped(reason string) {
	DefaultMetrics.RecordsSkipped.WithLabelValues(reason).Inc()
}

// RecordPageFetched increments the page counter.
func RecordPageFetched() {
	DefaultMetrics.PagesFetched.Inc()
}

// RecordProductCreated increments the catalog-miss counter.
func RecordProductCreated() {
	DefaultMetrics.ProductsCreated.Inc()
}

// RecordRun records a run outcome and its duration.
func RecordRun(status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RunDuration.Observe(durationSeconds)
}

// RecordSourceRequest records one source page request.
func RecordSourceRequest(seconds float64, err error) {
	DefaultMetrics.SourceRequestLatency.Observe(seconds)
	if err != nil {
		DefaultMetrics.SourceRequestErrors.Inc()
	}
}

// MarkRunSuccess stamps the last successful run gauge.
func MarkRunSuccess(unixSeconds float64) {
	DefaultMetrics.LastSuccessfulRun.Set(unixSeconds)
}
