// Package pipeline plans and executes pipeline runs.
package pipeline

import (
	"errors"
	"fmt"

	"git.home.luguber.info/inful/docspipe/internal/config"
	"git.home.luguber.info/inful/docspipe/internal/event"
	"git.home.luguber.info/inful/docspipe/internal/matrix"
)

// ErrNotTriggered is returned when the event does not match the pipeline's
// trigger configuration.
var ErrNotTriggered = errors.New("event does not match pipeline triggers")

// JobInstance is one schedulable unit: a job paired with a matrix row.
type JobInstance struct {
	Job     *config.Job
	Row     matrix.Row
	Gated   bool // true when the job's condition rejected the event
}

// Name returns the instance identifier (job name plus matrix label).
func (ji JobInstance) Name() string {
	if label := ji.Row.Label(); label != "" {
		return ji.Job.Name + "[" + label + "]"
	}
	return ji.Job.Name
}

// Plan is the ordered list of job instances selected for an event.
type Plan struct {
	Pipeline  *config.Pipeline
	Event     event.Event
	Instances []JobInstance
}

// BuildPlan selects and orders the jobs a trigger event runs. Jobs are ordered
// topologically by their needs edges with declaration order as tiebreak, then
// fanned out over their matrix rows. Jobs whose condition rejects the event
// stay in the plan marked Gated so the run report can show them as skipped.
func BuildPlan(p *config.Pipeline, ev event.Event) (*Plan, error) {
	if !p.Triggers.Matches(ev) {
		return nil, fmt.Errorf("%w: %s", ErrNotTriggered, ev.String())
	}

	order, err := topoOrder(p)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Pipeline: p, Event: ev}
	for _, job := range order {
		gate, err := event.ParseGate(job.If)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Name, err)
		}
		gated := !gate.Eval(ev)
		for _, row := range matrix.Expand(job.Matrix) {
			plan.Instances = append(plan.Instances, JobInstance{Job: job, Row: row, Gated: gated})
		}
	}
	return plan, nil
}

// topoOrder returns jobs in needs order using Kahn's algorithm, keeping
// declaration order among ready jobs for deterministic plans.
func topoOrder(p *config.Pipeline) ([]*config.Job, error) {
	indegree := make(map[string]int, len(p.Jobs))
	dependents := make(map[string][]string, len(p.Jobs))
	for i := range p.Jobs {
		job := &p.Jobs[i]
		indegree[job.Name] += 0
		for _, need := range job.Needs {
			if p.FindJob(need) == nil {
				return nil, fmt.Errorf("job %s: needs unknown job %q", job.Name, need)
			}
			indegree[job.Name]++
			dependents[need] = append(dependents[need], job.Name)
		}
	}

	var order []*config.Job
	for len(order) < len(p.Jobs) {
		progressed := false
		for i := range p.Jobs {
			job := &p.Jobs[i]
			if deg, ok := indegree[job.Name]; ok && deg == 0 {
				order = append(order, job)
				delete(indegree, job.Name)
				for _, dep := range dependents[job.Name] {
					indegree[dep]--
				}
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("needs cycle in pipeline %s", p.Name)
		}
	}
	return order, nil
}
