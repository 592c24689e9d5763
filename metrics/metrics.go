// Package metrics records informational counters and timings for a run.
// Nothing here is asserted on; timings exist for comparison only.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trial outcome label values.
const (
	OutcomePass          = "pass"
	OutcomeSkipped       = "skipped"
	OutcomeNotVerifiable = "not-verifiable"
	OutcomeCrash         = "crash"
	OutcomeMismatch      = "mismatch"
	OutcomeTimeout       = "timeout"
)

// Recorder owns a private registry so campaigns never share state.
type Recorder struct {
	reg *prometheus.Registry

	TrialsTotal       *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	Checks            *prometheus.CounterVec
	RetainedArtifacts prometheus.Counter
	BenchmarkSeconds  *prometheus.GaugeVec
}

// New registers the hashdiff collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		reg: reg,
		TrialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hashdiff_trials_total",
				Help: "Trials by algorithm and outcome",
			},
			[]string{"algorithm", "outcome"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hashdiff_execution_duration_seconds",
				Help:    "Wall time of subject and reference executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"algorithm", "role"},
		),
		Checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hashdiff_checks_total",
				Help: "Per-source digest checks by verdict",
			},
			[]string{"algorithm", "verdict"},
		),
		RetainedArtifacts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hashdiff_retained_artifacts_total",
				Help: "Ephemeral files kept for failure diagnosis",
			},
		),
		BenchmarkSeconds: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hashdiff_benchmark_seconds",
				Help: "Informational wall time of one hash run per input size",
			},
			[]string{"algorithm", "role", "size"},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Trial counts one trial outcome.
func (r *Recorder) Trial(algorithm, outcome string) {
	r.TrialsTotal.WithLabelValues(algorithm, outcome).Inc()
}

// Execution observes the wall time of one run; role is subject or reference.
func (r *Recorder) Execution(algorithm, role string, elapsed time.Duration) {
	r.ExecutionDuration.WithLabelValues(algorithm, role).Observe(elapsed.Seconds())
}

// Check counts one per-source verdict.
func (r *Recorder) Check(algorithm, verdict string) {
	r.Checks.WithLabelValues(algorithm, verdict).Inc()
}

// Retained counts n kept artifacts.
func (r *Recorder) Retained(n int) {
	r.RetainedArtifacts.Add(float64(n))
}

// Benchmark records one informational timing.
func (r *Recorder) Benchmark(algorithm, role string, size int, elapsed time.Duration) {
	r.BenchmarkSeconds.WithLabelValues(algorithm, role, fmt.Sprint(size)).Set(elapsed.Seconds())
}

// WriteTextfile writes the registry in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
