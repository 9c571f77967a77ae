package pipeline

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docspipe/internal/artifact"
	"git.home.luguber.info/inful/docspipe/internal/config"
	"git.home.luguber.info/inful/docspipe/internal/event"
	"git.home.luguber.info/inful/docspipe/internal/git"
	"git.home.luguber.info/inful/docspipe/internal/history"
	"git.home.luguber.info/inful/docspipe/internal/logfields"
	"git.home.luguber.info/inful/docspipe/internal/metrics"
	"git.home.luguber.info/inful/docspipe/internal/preview"
	"git.home.luguber.info/inful/docspipe/internal/workspace"
)

// Runner executes a pipeline plan. Job instances run strictly sequentially:
// the hosting branch and the artifact namespace are shared resources, and run
// serialization is the only locking discipline the pipeline defines.
type Runner struct {
	pipeline  *config.Pipeline
	artifacts artifact.Store
	bucket    preview.Bucket
	recorder  metrics.Recorder
	hist      *history.Store
	shell     CommandRunner
	wsBase    string

	// Seams for tests; production uses the git package directly.
	checkoutFn func(ctx context.Context, dir string, opts git.CheckoutOpts) error
	deployFn   func(ctx context.Context, opts git.DeployOpts) error
}

// NewRunner creates a runner with default collaborators.
func NewRunner(p *config.Pipeline, store artifact.Store) *Runner {
	return &Runner{
		pipeline:   p,
		artifacts:  store,
		recorder:   metrics.NoopRecorder{},
		shell:      ShellRunner{},
		checkoutFn: git.Checkout,
		deployFn:   git.DeployPages,
	}
}

// WithBucket sets the preview bucket (fluent helper).
func (r *Runner) WithBucket(b preview.Bucket) *Runner { r.bucket = b; return r }

// WithRecorder sets the metrics recorder (fluent helper).
func (r *Runner) WithRecorder(rec metrics.Recorder) *Runner { r.recorder = rec; return r }

// WithHistory sets the run history store (fluent helper).
func (r *Runner) WithHistory(h *history.Store) *Runner { r.hist = h; return r }

// WithShell sets the shell command runner (fluent helper).
func (r *Runner) WithShell(s CommandRunner) *Runner { r.shell = s; return r }

// WithWorkspaceBase sets the base directory for run workspaces.
func (r *Runner) WithWorkspaceBase(dir string) *Runner { r.wsBase = dir; return r }

// Run executes the pipeline for an event and returns the run report. Step and
// job failures are reported through the report outcome, not the error return;
// an error means the run could not be carried out at all.
func (r *Runner) Run(ctx context.Context, ev event.Event) (*Report, error) {
	plan, err := BuildPlan(r.pipeline, ev)
	if err != nil {
		return nil, err
	}
	return r.RunPlan(ctx, plan)
}

// RunPlan executes an already built plan.
func (r *Runner) RunPlan(ctx context.Context, plan *Plan) (*Report, error) {
	runID := uuid.NewString()
	report := &Report{
		RunID:     runID,
		Pipeline:  plan.Pipeline.Name,
		Event:     plan.Event,
		EventType: string(plan.Event.Type),
		StartedAt: time.Now(),
	}

	slog.Info("Starting pipeline run",
		logfields.RunID(runID),
		logfields.Event(plan.Event.String()),
		slog.Int("jobs", len(plan.Instances)))

	ws := workspace.NewManager(r.wsBase)
	if err := ws.Create(); err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			slog.Warn("Failed to cleanup workspace", logfields.Error(err))
		}
	}()

	r.recordRunStart(ctx, report)

	// Aggregate outcome per job name across matrix rows; dependents only run
	// when every needed job fully succeeded.
	jobOutcomes := make(map[string]Outcome, len(plan.Instances))
	for _, inst := range plan.Instances {
		jr := r.runInstance(ctx, ws, runID, plan, inst, jobOutcomes)
		report.Jobs = append(report.Jobs, jr)

		prev, seen := jobOutcomes[inst.Job.Name]
		if !seen || worseOutcome(jr.Outcome, prev) {
			jobOutcomes[inst.Job.Name] = jr.Outcome
		}
		r.recorder.ObserveJobDuration(inst.Job.Name, jr.Duration)
		r.recorder.IncJobOutcome(inst.Job.Name, jr.Outcome.metricLabel())
	}

	report.Duration = time.Since(report.StartedAt)
	report.DeriveOutcome()
	r.recorder.ObserveRunDuration(report.Duration)
	r.recorder.IncRunOutcome(report.Outcome.metricLabel())
	r.recordRunEnd(ctx, report)

	slog.Info("Pipeline run finished",
		logfields.RunID(runID),
		slog.String("outcome", string(report.Outcome)),
		logfields.DurationMS(float64(report.Duration.Milliseconds())))
	return report, nil
}

// runInstance executes one job instance, honoring gates and needs outcomes.
func (r *Runner) runInstance(ctx context.Context, ws *workspace.Manager, runID string, plan *Plan, inst JobInstance, jobOutcomes map[string]Outcome) JobReport {
	jr := JobReport{Job: inst.Job.Name, Matrix: inst.Row.Label()}

	if inst.Gated {
		slog.Info("Skipping job: condition not met",
			logfields.Job(inst.Name()),
			slog.String("if", inst.Job.If))
		jr.Outcome = OutcomeSkipped
		return jr
	}
	for _, need := range inst.Job.Needs {
		if jobOutcomes[need] != OutcomeSuccess {
			slog.Info("Skipping job: needed job did not succeed",
				logfields.Job(inst.Name()),
				slog.String("needs", need),
				slog.String("need_outcome", string(jobOutcomes[need])))
			jr.Outcome = OutcomeSkipped
			return jr
		}
	}
	if ctx.Err() != nil {
		jr.Outcome = OutcomeCanceled
		return jr
	}

	jobDir, err := ws.CreateSubdir(sanitizeDirName(inst.Name()))
	if err != nil {
		jr.Outcome = OutcomeFailed
		jr.Steps = append(jr.Steps, StepReport{Step: "prepare", Outcome: OutcomeFailed, Error: err.Error()})
		return jr
	}

	slog.Info("Starting job", logfields.RunID(runID), logfields.Job(inst.Name()))
	t0 := time.Now()
	jr.Outcome = r.runSteps(ctx, runID, plan, inst, jobDir, &jr)
	jr.Duration = time.Since(t0)
	slog.Info("Job finished",
		logfields.Job(inst.Name()),
		slog.String("outcome", string(jr.Outcome)),
		logfields.DurationMS(float64(jr.Duration.Milliseconds())))
	return jr
}

// runSteps executes the instance's steps in order, halting at the first
// failure. There are no retries and no partial rollback.
func (r *Runner) runSteps(ctx context.Context, runID string, plan *Plan, inst JobInstance, jobDir string, jr *JobReport) Outcome {
	outcome := OutcomeSuccess
	halted := false
	for i := range inst.Job.Steps {
		st := &inst.Job.Steps[i]
		label := st.Label()

		if halted {
			jr.Steps = append(jr.Steps, StepReport{Step: label, Outcome: OutcomeSkipped})
			continue
		}
		if ctx.Err() != nil {
			jr.Steps = append(jr.Steps, StepReport{Step: label, Outcome: OutcomeCanceled})
			outcome = OutcomeCanceled
			halted = true
			continue
		}
		gate, _ := event.ParseGate(st.If) // validated at load time
		if !gate.Eval(plan.Event) {
			slog.Debug("Skipping step: condition not met", logfields.Step(label), slog.String("if", st.If))
			jr.Steps = append(jr.Steps, StepReport{Step: label, Outcome: OutcomeSkipped})
			r.recorder.IncStepOutcome(inst.Job.Name, metrics.OutcomeSkipped)
			continue
		}

		slog.Info("Running step", logfields.Job(inst.Name()), logfields.Step(label))
		t0 := time.Now()
		err := r.execStep(ctx, runID, plan, inst, st, jobDir)
		dur := time.Since(t0)

		sr := StepReport{Step: label, Duration: dur, Outcome: OutcomeSuccess}
		if err != nil {
			if ctx.Err() != nil {
				sr.Outcome = OutcomeCanceled
				outcome = OutcomeCanceled
			} else {
				sr.Outcome = OutcomeFailed
				outcome = OutcomeFailed
			}
			sr.Error = err.Error()
			halted = true
			slog.Error("Step failed", logfields.Job(inst.Name()), logfields.Step(label), logfields.Error(err))
		}
		jr.Steps = append(jr.Steps, sr)
		r.recorder.ObserveStepDuration(inst.Job.Name, label, dur)
		r.recorder.IncStepOutcome(inst.Job.Name, sr.Outcome.metricLabel())
		r.recordStep(ctx, runID, inst.Job.Name, sr)
	}
	return outcome
}

// execStep dispatches to the shell or the builtin action for the step.
func (r *Runner) execStep(ctx context.Context, runID string, plan *Plan, inst JobInstance, st *config.Step, jobDir string) error {
	env := r.mergedEnv(runID, plan, inst, st)
	if st.Run != "" {
		dir := jobDir
		if st.WorkDir != "" {
			dir = joinJobPath(jobDir, st.WorkDir)
		}
		return r.shell.Run(ctx, st.Run, dir, envList(env))
	}
	return r.runBuiltin(ctx, runID, plan, st, jobDir, env)
}

// mergedEnv layers environment maps: process < pipeline < job < matrix < step,
// plus declared secrets and the run's builtin variables.
func (r *Runner) mergedEnv(runID string, plan *Plan, inst JobInstance, st *config.Step) map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range plan.Pipeline.Env {
		env[k] = v
	}
	for k, v := range inst.Job.Env {
		env[k] = v
	}
	for k, v := range inst.Row.Env() {
		env[k] = v
	}
	for k, v := range st.Env {
		env[k] = v
	}
	for _, name := range plan.Pipeline.Secrets {
		if v := os.Getenv(name); v != "" {
			env[name] = v
		}
	}
	env["DOCSPIPE_RUN_ID"] = runID
	env["DOCSPIPE_EVENT"] = string(plan.Event.Type)
	env["DOCSPIPE_BRANCH"] = plan.Event.Branch
	env["DOCSPIPE_COMMIT"] = plan.Event.Commit
	if plan.Event.PRNumber > 0 {
		env["DOCSPIPE_PR"] = plan.Event.PRKey()
	}
	return env
}

// envList renders an env map as KEY=VALUE pairs in sorted order.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// worseOutcome reports whether a is worse than b for needs aggregation.
func worseOutcome(a, b Outcome) bool {
	rank := map[Outcome]int{OutcomeSuccess: 0, OutcomeSkipped: 1, OutcomeCanceled: 2, OutcomeFailed: 3}
	return rank[a] > rank[b]
}

// sanitizeDirName maps a job instance name onto a safe directory name.
func sanitizeDirName(name string) string {
	repl := strings.NewReplacer("/", "_", "\\", "_", "[", "_", "]", "", "=", "-", ",", "-", " ", "")
	return repl.Replace(name)
}

func (r *Runner) recordRunStart(ctx context.Context, report *Report) {
	if r.hist == nil {
		return
	}
	err := r.hist.RecordRun(ctx, history.Run{
		ID:        report.RunID,
		Pipeline:  report.Pipeline,
		EventType: report.EventType,
		Branch:    report.Event.Branch,
		PRNumber:  report.Event.PRNumber,
		Commit:    report.Event.Commit,
		StartedAt: report.StartedAt,
	})
	if err != nil {
		slog.Warn("Failed to record run start", logfields.Error(err))
	}
}

func (r *Runner) recordRunEnd(ctx context.Context, report *Report) {
	if r.hist == nil {
		return
	}
	if err := r.hist.FinishRun(ctx, report.RunID, string(report.Outcome), time.Now()); err != nil {
		slog.Warn("Failed to record run end", logfields.Error(err))
	}
}

func (r *Runner) recordStep(ctx context.Context, runID, job string, sr StepReport) {
	if r.hist == nil {
		return
	}
	err := r.hist.RecordStep(ctx, history.StepResult{
		RunID:    runID,
		Job:      job,
		Step:     sr.Step,
		Outcome:  string(sr.Outcome),
		Duration: sr.Duration,
	})
	if err != nil {
		slog.Warn("Failed to record step result", logfields.Error(err))
	}
}
