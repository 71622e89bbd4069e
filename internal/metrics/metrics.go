// Package metrics records Prometheus metrics for tool runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records run metrics. A nil *Recorder records nothing.
type Recorder struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	output   *prometheus.HistogramVec
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthkit_runs_total",
				Help: "Total number of batched tool runs by result",
			},
			[]string{"tool", "operation", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synthkit_run_duration_seconds",
				Help:    "Wall time of batched tool runs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 30, 120, 600},
			},
			[]string{"tool"},
		),
		output: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synthkit_run_output_bytes",
				Help:    "Captured output size of batched tool runs",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"tool"},
		),
	}
	for _, c := range []prometheus.Collector{r.runs, r.duration, r.output} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RecordRun records one finished run. result is "ok" or a failure kind.
func (r *Recorder) RecordRun(tool, operation, result string, elapsed time.Duration, outputBytes int) {
	if r == nil {
		return
	}
	if result == "" {
		result = "ok"
	}
	r.runs.WithLabelValues(tool, operation, result).Inc()
	r.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
	r.output.WithLabelValues(tool).Observe(float64(outputBytes))
}
