package vm

// MetricsRecorder receives reconciliation events.
//
// In production, this is satisfied by *metrics.Recorder.
// A nil MetricsRecorder records nothing.
type MetricsRecorder interface {
	// ReconcileFinished counts a finished pass by outcome ("success", "failure").
	ReconcileFinished(outcome string)

	// ChangeApplied counts one applied attribute change.
	ChangeApplied(attribute string)

	// HaltEscalated counts a halt that needed more than a shutdown request
	// ("poweroff" or "kill").
	HaltEscalated(kind string)
}

type noopMetrics struct{}

func (noopMetrics) ReconcileFinished(string) {}
func (noopMetrics) ChangeApplied(string)     {}
func (noopMetrics) HaltEscalated(string)     {}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
