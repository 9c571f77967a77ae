package pipeline

import (
	"time"

	"git.home.luguber.info/inful/docspipe/internal/event"
	"git.home.luguber.info/inful/docspipe/internal/metrics"
)

// Outcome classifies step, job and run results.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeCanceled Outcome = "canceled"
)

// metricLabel maps an Outcome onto the metrics label space.
func (o Outcome) metricLabel() metrics.OutcomeLabel {
	return metrics.OutcomeLabel(o)
}

// StepReport records one executed (or skipped) step.
type StepReport struct {
	Step     string        `json:"step"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// JobReport records one job instance.
type JobReport struct {
	Job      string        `json:"job"`
	Matrix   string        `json:"matrix,omitempty"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Steps    []StepReport  `json:"steps,omitempty"`
}

// Report is the full record of a pipeline run.
type Report struct {
	RunID     string        `json:"run_id"`
	Pipeline  string        `json:"pipeline"`
	Event     event.Event   `json:"-"`
	EventType string        `json:"event"`
	Outcome   Outcome       `json:"outcome"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Jobs      []JobReport   `json:"jobs"`
}

// DeriveOutcome computes the run outcome from its job outcomes: any failure
// fails the run, cancellation wins over failure, and a run where every job
// was skipped is itself skipped.
func (r *Report) DeriveOutcome() {
	outcome := OutcomeSuccess
	allSkipped := len(r.Jobs) > 0
	for _, j := range r.Jobs {
		if j.Outcome != OutcomeSkipped {
			allSkipped = false
		}
		switch j.Outcome {
		case OutcomeCanceled:
			r.Outcome = OutcomeCanceled
			return
		case OutcomeFailed:
			outcome = OutcomeFailed
		}
	}
	if allSkipped {
		outcome = OutcomeSkipped
	}
	r.Outcome = outcome
}

// JobOutcome returns the outcome of the named job instance, or "" when the
// job is not part of the report yet.
func (r *Report) JobOutcome(name string) Outcome {
	for _, j := range r.Jobs {
		if j.Job == name {
			return j.Outcome
		}
	}
	return ""
}
