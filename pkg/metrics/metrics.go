// Package metrics defines the Prometheus collectors of the toolkit. Batch
// commands dump them to a node-exporter textfile when they finish; the run
// recorder serves them over HTTP.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage label values.
const (
	StageTFIDF      = "tfidf"
	StagePropensity = "propensity"
	StageMerge      = "merge"
	StageEvaluate   = "evaluate"
	StageLabelStats = "labelstats"
)

// Metrics holds all Prometheus collectors for the toolkit.
type Metrics struct {
	InstancesProcessed   *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	StageFailures        *prometheus.CounterVec
	ShardsMerged         prometheus.Counter
	ZeroNormDocuments    prometheus.Counter
	UnlabeledInstances   prometheus.Counter
	PropensityCache      *prometheus.CounterVec
	RunsRecorded         *prometheus.CounterVec
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InstancesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xmc_instances_processed_total",
				Help: "Instances processed by pipeline stage.",
			},
			[]string{"stage"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xmc_stage_duration_seconds",
				Help:    "Wall-clock duration of a pipeline stage.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"stage"},
		),
		StageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xmc_stage_failures_total",
				Help: "Failed stage runs by error class.",
			},
			[]string{"stage", "class"},
		),
		ShardsMerged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "xmc_shards_merged_total",
				Help: "Prediction shard files folded into a merged result.",
			},
		),
		ZeroNormDocuments: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "xmc_zero_norm_documents_total",
				Help: "Documents whose tf-idf vector had zero norm.",
			},
		),
		UnlabeledInstances: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "xmc_unlabeled_instances_total",
				Help: "Ground-truth instances without labels, excluded from metrics.",
			},
		),
		PropensityCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xmc_propensity_cache_requests_total",
				Help: "Propensity cache lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		RunsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xmc_runs_recorded_total",
				Help: "Run events persisted by the recorder, by stage.",
			},
			[]string{"stage"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
	}

	reg.MustRegister(
		m.InstancesProcessed,
		m.StageDuration,
		m.StageFailures,
		m.ShardsMerged,
		m.ZeroNormDocuments,
		m.UnlabeledInstances,
		m.PropensityCache,
		m.RunsRecorded,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)

	return m
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// WriteTextfile writes every metric of g to path in the text exposition
// format, for the node-exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
