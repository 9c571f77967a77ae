package config

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/docspipe/internal/event"
)

// Validate checks a pipeline definition for structural errors and for the
// configuration-consistency properties the runner relies on:
//
//   - needs edges reference existing jobs and form no cycle
//   - every downloaded artifact is uploaded by a needed job
//   - build, upload and deploy steps agree on the docs output path
//   - deploy steps are gated to pushes on the main branch
//   - preview steps are gated to pull requests
func Validate(p *Pipeline) error {
	if len(p.Jobs) == 0 {
		return fmt.Errorf("pipeline %q has no jobs", p.Name)
	}
	if p.Triggers.Schedule != nil {
		if _, err := time.ParseDuration(p.Triggers.Schedule.Every); err != nil {
			return fmt.Errorf("schedule trigger: invalid interval %q: %w", p.Triggers.Schedule.Every, err)
		}
	}

	seen := make(map[string]bool, len(p.Jobs))
	for i := range p.Jobs {
		job := &p.Jobs[i]
		if job.Name == "" {
			return fmt.Errorf("job %d has no name", i)
		}
		if seen[job.Name] {
			return fmt.Errorf("duplicate job name: %s", job.Name)
		}
		seen[job.Name] = true
		if err := validateJob(p, job); err != nil {
			return err
		}
	}

	for i := range p.Jobs {
		for _, need := range p.Jobs[i].Needs {
			if !seen[need] {
				return fmt.Errorf("job %s: needs unknown job %q", p.Jobs[i].Name, need)
			}
		}
	}
	if err := checkAcyclic(p); err != nil {
		return err
	}
	if err := checkArtifactContract(p); err != nil {
		return err
	}
	if err := checkOutputPathConsistency(p); err != nil {
		return err
	}
	return checkPublicationGates(p)
}

func validateJob(p *Pipeline, job *Job) error {
	if len(job.Steps) == 0 {
		return fmt.Errorf("job %s has no steps", job.Name)
	}
	if _, err := event.ParseGate(job.If); err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	for i := range job.Steps {
		st := &job.Steps[i]
		if err := validateStep(job, st, i); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(job *Job, st *Step, idx int) error {
	label := st.Label()
	if label == "" {
		label = fmt.Sprintf("#%d", idx)
	}
	if st.Run == "" && st.Uses == "" {
		return fmt.Errorf("job %s step %s: needs either run or uses", job.Name, label)
	}
	if st.Run != "" && st.Uses != "" {
		return fmt.Errorf("job %s step %s: run and uses are mutually exclusive", job.Name, label)
	}
	if st.Uses != "" && !builtinKinds[st.Uses] {
		return fmt.Errorf("job %s step %s: unknown builtin %q", job.Name, label, st.Uses)
	}
	if _, err := event.ParseGate(st.If); err != nil {
		return fmt.Errorf("job %s step %s: %w", job.Name, label, err)
	}

	need := func(keys ...string) error {
		for _, k := range keys {
			if st.With[k] == "" {
				return fmt.Errorf("job %s step %s: %s requires with.%s", job.Name, label, st.Uses, k)
			}
		}
		return nil
	}
	switch st.Uses {
	case StepUploadArtifact, StepDownloadArtifact:
		return need("name", "path")
	case StepDeployPages:
		return need("branch", "path")
	case StepNoIndex:
		return need("path")
	case StepPreviewBucket:
		return need("path", "prefix")
	case StepBuildDocs:
		return need("source", "output")
	}
	return nil
}

// checkAcyclic rejects cycles in the needs graph via iterative DFS coloring.
func checkAcyclic(p *Pipeline) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(p.Jobs))
	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case gray:
			return fmt.Errorf("needs cycle involving job %s", name)
		case black:
			return nil
		}
		color[name] = gray
		for _, need := range p.FindJob(name).Needs {
			if err := visit(need); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}
	for i := range p.Jobs {
		if err := visit(p.Jobs[i].Name); err != nil {
			return err
		}
	}
	return nil
}

// checkArtifactContract ensures every download-artifact step names an artifact
// uploaded by a job in the consumer's needs closure.
func checkArtifactContract(p *Pipeline) error {
	uploadedBy := make(map[string][]string) // artifact name -> producing jobs
	for i := range p.Jobs {
		for _, st := range p.Jobs[i].Steps {
			if st.Uses == StepUploadArtifact {
				name := st.With["name"]
				uploadedBy[name] = append(uploadedBy[name], p.Jobs[i].Name)
			}
		}
	}
	for i := range p.Jobs {
		job := &p.Jobs[i]
		closure := needsClosure(p, job.Name)
		for _, st := range job.Steps {
			if st.Uses != StepDownloadArtifact {
				continue
			}
			name := st.With["name"]
			found := false
			for _, producer := range uploadedBy[name] {
				if closure[producer] {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("job %s downloads artifact %q which no needed job uploads", job.Name, name)
			}
		}
	}
	return nil
}

// needsClosure returns the transitive needs set of a job (excluding itself).
func needsClosure(p *Pipeline, name string) map[string]bool {
	out := make(map[string]bool)
	var walk func(n string)
	walk = func(n string) {
		for _, need := range p.FindJob(n).Needs {
			if !out[need] {
				out[need] = true
				walk(need)
			}
		}
	}
	walk(name)
	return out
}

// checkOutputPathConsistency enforces a single docs output path across the
// build, upload and deploy steps that reference one.
func checkOutputPathConsistency(p *Pipeline) error {
	var path, origin string
	check := func(job, step, got string) error {
		if got == "" {
			return nil
		}
		if path == "" {
			path, origin = got, fmt.Sprintf("%s/%s", job, step)
			return nil
		}
		if got != path {
			return fmt.Errorf("docs output path mismatch: %s uses %q but %s/%s uses %q", origin, path, job, step, got)
		}
		return nil
	}
	for i := range p.Jobs {
		job := &p.Jobs[i]
		for _, st := range job.Steps {
			var got string
			switch st.Uses {
			case StepBuildDocs:
				got = st.With["output"]
			case StepUploadArtifact, StepDeployPages:
				got = st.With["path"]
			default:
				continue
			}
			if err := check(job.Name, st.Label(), got); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkPublicationGates enforces the branch/event gating on the two
// publication paths: deploys only from pushes to the main branch, previews
// only from pull requests.
func checkPublicationGates(p *Pipeline) error {
	for i := range p.Jobs {
		job := &p.Jobs[i]
		jobGate, _ := event.ParseGate(job.If)
		for _, st := range job.Steps {
			stepGate, _ := event.ParseGate(st.If)
			switch st.Uses {
			case StepDeployPages:
				pinsPush := jobGate.RequiresEvent(event.Push) || stepGate.RequiresEvent(event.Push)
				pinsMain := jobGate.RequiresBranch(p.MainBranch) || stepGate.RequiresBranch(p.MainBranch)
				if !pinsPush || !pinsMain {
					return fmt.Errorf("job %s step %s: deploy-pages must be gated on event == push && branch == %s", job.Name, st.Label(), p.MainBranch)
				}
			case StepPreviewBucket:
				if !jobGate.RequiresEvent(event.PullRequest) && !stepGate.RequiresEvent(event.PullRequest) {
					return fmt.Errorf("job %s step %s: preview-bucket must be gated on event == pull_request", job.Name, st.Label())
				}
			}
		}
	}
	return nil
}
