// Package metrics records run outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caffeineduck/wasmplay/executor"
)

// Recorder implements executor.Observer.
type Recorder struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	output   *prometheus.CounterVec
	truncs   prometheus.Counter
}

// New registers the run metrics on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasmplay",
			Name:      "runs_total",
			Help:      "Guest runs by termination.",
		}, []string{"termination"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wasmplay",
			Name:      "run_duration_seconds",
			Help:      "Wall time from load to the end of the run.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		}, []string{"termination"}),
		output: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasmplay",
			Name:      "output_bytes_total",
			Help:      "Decoded guest output kept, by stream.",
		}, []string{"stream"}),
		truncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wasmplay",
			Name:      "runs_truncated_total",
			Help:      "Runs whose output hit the limit.",
		}),
	}
	r.registry.MustRegister(r.runs, r.duration, r.output, r.truncs)
	return r
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(res executor.Result) {
	term := res.Termination.String()
	r.runs.WithLabelValues(term).Inc()
	r.duration.WithLabelValues(term).Observe(res.Duration.Seconds())
	r.output.WithLabelValues("stdout").Add(float64(len(res.Stdout)))
	r.output.WithLabelValues("stderr").Add(float64(len(res.Stderr)))
	if res.Truncated {
		r.truncs.Inc()
	}
}

// Handler serves the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
