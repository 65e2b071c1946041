// Package metrics exposes search progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Evaluation outcomes used as the result label
const (
	ResultSuccess       = "success"
	ResultLaunchFailure = "launch_failure"
	ResultTraceFailure  = "trace_failure"
)

// Recorder owns a private registry so several searches (or tests) can run
// in one process. All methods are safe on a nil *Recorder.
type Recorder struct {
	registry    *prometheus.Registry
	evaluations *prometheus.CounterVec
	duration    prometheus.Histogram
	trials      prometheus.Gauge
	bestFitness prometheus.Gauge
	busyWorkers prometheus.Gauge
}

// NewRecorder creates a recorder with the search metrics registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paramsearch_evaluations_total",
			Help: "Evaluations finished, by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paramsearch_evaluation_duration_seconds",
			Help:    "Wall-clock time of one evaluation.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		trials: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paramsearch_trials",
			Help: "Trials recorded in the shared optimizer state.",
		}),
		bestFitness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paramsearch_best_fitness",
			Help: "Lowest fitness observed so far.",
		}),
		busyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paramsearch_workers_busy",
			Help: "Workers currently running an evaluation.",
		}),
	}
	r.registry.MustRegister(
		r.evaluations,
		r.duration,
		r.trials,
		r.bestFitness,
		r.busyWorkers,
		collectors.NewGoCollector(),
	)
	return r
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveEvaluation records one finished evaluation
func (r *Recorder) ObserveEvaluation(result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.evaluations.WithLabelValues(result).Inc()
	r.duration.Observe(elapsed.Seconds())
}

// SetTrials records the current trial count
func (r *Recorder) SetTrials(n int) {
	if r == nil {
		return
	}
	r.trials.Set(float64(n))
}

// SetBestFitness records a new best fitness
func (r *Recorder) SetBestFitness(fitness float64) {
	if r == nil {
		return
	}
	r.bestFitness.Set(fitness)
}

// WorkerStarted marks a worker busy
func (r *Recorder) WorkerStarted() {
	if r == nil {
		return
	}
	r.busyWorkers.Inc()
}

// WorkerFinished marks a worker idle again
func (r *Recorder) WorkerFinished() {
	if r == nil {
		return
	}
	r.busyWorkers.Dec()
}
