// Package metrics defines observability hooks for pipeline runs.
package metrics

import "time"

// OutcomeLabel enumerates result categories for counters.
type OutcomeLabel string

const (
	OutcomeSuccess  OutcomeLabel = "success"
	OutcomeFailed   OutcomeLabel = "failed"
	OutcomeSkipped  OutcomeLabel = "skipped"
	OutcomeCanceled OutcomeLabel = "canceled"
)

// Recorder defines observability hooks for run, job and step metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveStepDuration(job, step string, d time.Duration)
	ObserveJobDuration(job string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncStepOutcome(job string, outcome OutcomeLabel)
	IncJobOutcome(job string, outcome OutcomeLabel)
	IncRunOutcome(outcome OutcomeLabel)
	IncDeploy(success bool)
	IncPreviewPublish(success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, string, time.Duration) {}
func (NoopRecorder) ObserveJobDuration(string, time.Duration)         {}
func (NoopRecorder) ObserveRunDuration(time.Duration)                 {}
func (NoopRecorder) IncStepOutcome(string, OutcomeLabel)              {}
func (NoopRecorder) IncJobOutcome(string, OutcomeLabel)               {}
func (NoopRecorder) IncRunOutcome(OutcomeLabel)                       {}
func (NoopRecorder) IncDeploy(bool)                                   {}
func (NoopRecorder) IncPreviewPublish(bool)                           {}
