package emitter

import "time"

// MetricsRecorder observes engine dispatches.
type MetricsRecorder interface {
	RecordDispatch(actionType string)
	RecordOutcome(actionType string, status Status, duration time.Duration)
	RecordSuperseded(actionType string)
}

type noopMetrics struct{}

func (noopMetrics) RecordDispatch(string)                       {}
func (noopMetrics) RecordOutcome(string, Status, time.Duration) {}
func (noopMetrics) RecordSuperseded(string)                     {}
