// Package metrics exposes Prometheus collectors for decomposition runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metrics for the application.
type Registry struct {
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	LayersFactorizedTotal prometheus.Counter
	LeavesSkippedTotal    *prometheus.CounterVec
	RankClampedTotal      prometheus.Counter
	SVDDuration           prometheus.Histogram
	ReconstructionError   prometheus.Histogram

	ParametersBefore prometheus.Gauge
	ParametersAfter  prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a new metrics registry with all metrics initialized.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}
	factory := promauto.With(r.registry)

	r.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lowrank_runs_total",
			Help: "Total number of decomposition runs",
		},
		[]string{"status"},
	)

	r.RunDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lowrank_run_duration_seconds",
			Help:    "Wall time of a full decomposition run",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	r.LayersFactorizedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "lowrank_layers_factorized_total",
			Help: "Linear layers replaced by a low-rank pair",
		},
	)

	r.LeavesSkippedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lowrank_leaves_skipped_total",
			Help: "Non-linear leaves copied unchanged",
		},
		[]string{"type"},
	)

	r.RankClampedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "lowrank_rank_clamped_total",
			Help: "Layers whose requested rank exceeded the SVD rank or fell below 1",
		},
	)

	r.SVDDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lowrank_svd_duration_seconds",
			Help:    "Time spent factorizing a single weight matrix",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	r.ReconstructionError = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lowrank_reconstruction_error_ratio",
			Help:    "Relative Frobenius error of each low-rank approximation",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1},
		},
	)

	r.ParametersBefore = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "lowrank_parameters_before",
			Help: "Parameter count of the input model of the last successful run",
		},
	)

	r.ParametersAfter = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "lowrank_parameters_after",
			Help: "Parameter count of the output model of the last successful run",
		},
	)

	return r
}

// RecordLayer records one factorized linear layer.
func (r *Registry) RecordLayer(svd time.Duration, relErr float64, clamped bool) {
	r.LayersFactorizedTotal.Inc()
	r.SVDDuration.Observe(svd.Seconds())
	r.ReconstructionError.Observe(relErr)
	if clamped {
		r.RankClampedTotal.Inc()
	}
}

// RecordSkipped records a leaf that was copied unchanged.
func (r *Registry) RecordSkipped(typeName string) {
	r.LeavesSkippedTotal.WithLabelValues(typeName).Inc()
}

// RecordRun records the outcome of a decomposition run. before and after
// are only applied to the gauges for successful runs.
func (r *Registry) RecordRun(err error, duration time.Duration, before, after int) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.RunsTotal.WithLabelValues(status).Inc()
	r.RunDuration.Observe(duration.Seconds())
	if err == nil {
		r.ParametersBefore.Set(float64(before))
		r.ParametersAfter.Set(float64(after))
	}
}

// WriteToTextfile writes all metrics in the text exposition format, for
// node_exporter's textfile collector.
func (r *Registry) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
