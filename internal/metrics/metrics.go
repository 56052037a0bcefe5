// Package metrics counts what hexagon does to domains, in Prometheus form.
// The CLI is short-lived, so metrics are exported by writing a textfile for
// node_exporter's textfile collector instead of serving them.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jbweber/hexagon/internal/batch"
)

const namespace = "hexagon"

// Recorder holds hexagon's metrics in a private registry. A nil *Recorder
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	reconciles    *prometheus.CounterVec
	changes       *prometheus.CounterVec
	escalations   *prometheus.CounterVec
	batchTargets  *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	lastRun       prometheus.Gauge
}

// New creates a Recorder with all metrics registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciles_total",
			Help:      "Reconciliation passes by outcome.",
		}, []string{"outcome"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_applied_total",
			Help:      "Attribute changes applied to domains.",
		}, []string{"attribute"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "halt_escalations_total",
			Help:      "Halts that needed an in-domain poweroff or a kill.",
		}, []string{"kind"}),
		batchTargets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_targets_total",
			Help:      "Batch targets by command and outcome.",
		}, []string{"command", "outcome"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of batch commands.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800},
		}, []string{"command"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last batch command finished.",
		}),
	}
	r.registry.MustRegister(r.reconciles, r.changes, r.escalations, r.batchTargets, r.batchDuration, r.lastRun)
	return r
}

func (r *Recorder) ReconcileFinished(outcome string) {
	if r == nil {
		return
	}
	r.reconciles.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ChangeApplied(attribute string) {
	if r == nil {
		return
	}
	r.changes.WithLabelValues(attribute).Inc()
}

func (r *Recorder) HaltEscalated(kind string) {
	if r == nil {
		return
	}
	r.escalations.WithLabelValues(kind).Inc()
}

// BatchFinished records the results of one batch command.
func (r *Recorder) BatchFinished(command string, summary batch.Summary, elapsed time.Duration, now time.Time) {
	if r == nil {
		return
	}
	for _, res := range summary.Results {
		r.batchTargets.WithLabelValues(command, res.Outcome.String()).Inc()
	}
	r.batchDuration.WithLabelValues(command).Observe(elapsed.Seconds())
	r.lastRun.Set(float64(now.Unix()))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteToTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteToTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
