package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docspipe/internal/artifact"
	"git.home.luguber.info/inful/docspipe/internal/config"
	"git.home.luguber.info/inful/docspipe/internal/event"
	"git.home.luguber.info/inful/docspipe/internal/git"
	"git.home.luguber.info/inful/docspipe/internal/preview"
)

// fakeShell records executed scripts and fails those listed in failOn.
type fakeShell struct {
	mu      sync.Mutex
	scripts []string
	envs    []map[string]string
	failOn  map[string]bool
}

func (f *fakeShell) Run(ctx context.Context, script, dir string, env []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, script)
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	f.envs = append(f.envs, m)
	if f.failOn[script] {
		return fmt.Errorf("exit status 1")
	}
	return nil
}

func newTestRunner(t *testing.T, p *config.Pipeline, shell *fakeShell) *Runner {
	t.Helper()
	store, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)
	r := NewRunner(p, store).WithShell(shell).WithWorkspaceBase(t.TempDir())
	// No network in tests.
	r.checkoutFn = func(ctx context.Context, dir string, opts git.CheckoutOpts) error { return nil }
	r.deployFn = func(ctx context.Context, opts git.DeployOpts) error { return nil }
	return r
}

func shellPipeline(jobs ...config.Job) *config.Pipeline {
	return &config.Pipeline{
		Name:       "docs",
		MainBranch: "main",
		Triggers: config.TriggerConfig{
			Push:        &config.PushTrigger{},
			PullRequest: true,
			Dispatch:    true,
		},
		Jobs: jobs,
	}
}

func TestRunSuccess(t *testing.T) {
	shell := &fakeShell{}
	p := shellPipeline(config.Job{
		Name: "build",
		Steps: []config.Step{
			{Name: "Install", Run: "make deps"},
			{Name: "Build", Run: "make docs"},
		},
	})
	r := newTestRunner(t, p, shell)

	report, err := r.Run(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Jobs, 1)
	assert.Equal(t, OutcomeSuccess, report.Jobs[0].Outcome)
	assert.Equal(t, []string{"make deps", "make docs"}, shell.scripts)
}

func TestRunHaltsJobOnStepFailure(t *testing.T) {
	shell := &fakeShell{failOn: map[string]bool{"make docs": true}}
	p := shellPipeline(config.Job{
		Name: "build",
		Steps: []config.Step{
			{Name: "Install", Run: "make deps"},
			{Name: "Build", Run: "make docs"},
			{Name: "Upload", Run: "make upload"},
		},
	})
	r := newTestRunner(t, p, shell)

	report, err := r.Run(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)

	steps := report.Jobs[0].Steps
	require.Len(t, steps, 3)
	assert.Equal(t, OutcomeSuccess, steps[0].Outcome)
	assert.Equal(t, OutcomeFailed, steps[1].Outcome)
	assert.NotEmpty(t, steps[1].Error)
	assert.Equal(t, OutcomeSkipped, steps[2].Outcome)

	// The step after the failure never reached the shell.
	assert.Equal(t, []string{"make deps", "make docs"}, shell.scripts)
}

func TestRunSkipsDependentOfFailedJob(t *testing.T) {
	shell := &fakeShell{failOn: map[string]bool{"make docs": true}}
	p := shellPipeline(
		config.Job{Name: "build", Steps: []config.Step{{Run: "make docs"}}},
		config.Job{Name: "publish", Needs: []string{"build"}, Steps: []config.Step{{Run: "make publish"}}},
	)
	r := newTestRunner(t, p, shell)

	report, err := r.Run(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, OutcomeSkipped, report.JobOutcome("publish"))
	assert.NotContains(t, shell.scripts, "make publish")
}

func TestRunSkipsGatedJob(t *testing.T) {
	shell := &fakeShell{}
	p := shellPipeline(
		config.Job{Name: "build", Steps: []config.Step{{Run: "make docs"}}},
		config.Job{Name: "preview", If: "event == pull_request", Steps: []config.Step{{Run: "make preview"}}},
	)
	r := newTestRunner(t, p, shell)

	report, err := r.Run(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, OutcomeSkipped, report.JobOutcome("preview"))
	assert.Equal(t, []string{"make docs"}, shell.scripts)
}

func TestRunAllJobsGatedIsSkipped(t *testing.T) {
	shell := &fakeShell{}
	p := shellPipeline(
		config.Job{Name: "preview", If: "event == pull_request", Steps: []config.Step{{Run: "make preview"}}},
	)
	r := newTestRunner(t, p, shell)

	report, err := r.Run(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, report.Outcome)
	assert.Empty(t, shell.scripts)
}

func TestRunStepGate(t *testing.T) {
	shell := &fakeShell{}
	p := shellPipeline(config.Job{
		Name: "build",
		Steps: []config.Step{
			{Name: "Build", Run: "make docs"},
			{Name: "Deploy", If: "event == push && branch == main", Run: "make deploy"},
		},
	})
	r := newTestRunner(t, p, shell)

	// Push to a feature branch: deploy step gated off.
	report, err := r.Run(context.Background(), event.Event{Type: event.Push, Branch: "feature"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, []string{"make docs"}, shell.scripts)
	assert.Equal(t, OutcomeSkipped, report.Jobs[0].Steps[1].Outcome)

	// Push to main: deploy step runs.
	shell.scripts = nil
	_, err = r.Run(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, []string{"make docs", "make deploy"}, shell.scripts)
}

func TestRunNotTriggered(t *testing.T) {
	p := shellPipeline(config.Job{Name: "build", Steps: []config.Step{{Run: "true"}}})
	p.Triggers = config.TriggerConfig{PullRequest: true}
	r := newTestRunner(t, p, &fakeShell{})

	_, err := r.Run(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.ErrorIs(t, err, ErrNotTriggered)
}

func TestRunMatrixFanout(t *testing.T) {
	shell := &fakeShell{}
	p := shellPipeline(config.Job{
		Name: "build",
		Matrix: &config.Matrix{
			Vars: map[string][]string{"python": {"3.9", "3.10"}},
		},
		Steps: []config.Step{{Run: "make docs"}},
	})
	r := newTestRunner(t, p, shell)

	report, err := r.Run(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	require.Len(t, report.Jobs, 2)
	assert.Equal(t, "python=3.9", report.Jobs[0].Matrix)
	assert.Equal(t, "python=3.10", report.Jobs[1].Matrix)
	require.Len(t, shell.envs, 2)
	assert.Equal(t, "3.9", shell.envs[0]["MATRIX_PYTHON"])
	assert.Equal(t, "3.10", shell.envs[1]["MATRIX_PYTHON"])
}

func TestRunEnvironmentLayering(t *testing.T) {
	t.Setenv("DOCS_DEPLOY_TOKEN", "hunter2")
	shell := &fakeShell{}
	p := shellPipeline(config.Job{
		Name: "build",
		Env:  map[string]string{"LAYER": "job", "JOB_ONLY": "yes"},
		Steps: []config.Step{
			{Run: "env", Env: map[string]string{"LAYER": "step"}},
		},
	})
	p.Env = map[string]string{"LAYER": "pipeline", "PIPE_ONLY": "yes"}
	p.Secrets = []string{"DOCS_DEPLOY_TOKEN"}
	r := newTestRunner(t, p, shell)

	_, err := r.Run(context.Background(), event.Event{
		Type: event.Push, Branch: "main", Commit: "abc1234def",
	})
	require.NoError(t, err)
	require.Len(t, shell.envs, 1)
	env := shell.envs[0]

	assert.Equal(t, "step", env["LAYER"])
	assert.Equal(t, "yes", env["JOB_ONLY"])
	assert.Equal(t, "yes", env["PIPE_ONLY"])
	assert.Equal(t, "hunter2", env["DOCS_DEPLOY_TOKEN"])
	assert.NotEmpty(t, env["DOCSPIPE_RUN_ID"])
	assert.Equal(t, "push", env["DOCSPIPE_EVENT"])
	assert.Equal(t, "main", env["DOCSPIPE_BRANCH"])
	assert.Equal(t, "abc1234def", env["DOCSPIPE_COMMIT"])
	_, hasPR := env["DOCSPIPE_PR"]
	assert.False(t, hasPR)
}

func TestRunPRNumberInEnv(t *testing.T) {
	shell := &fakeShell{}
	p := shellPipeline(config.Job{Name: "build", Steps: []config.Step{{Run: "env"}}})
	r := newTestRunner(t, p, shell)

	_, err := r.Run(context.Background(), event.Event{Type: event.PullRequest, PRNumber: 42, Branch: "fix"})
	require.NoError(t, err)
	assert.Equal(t, "42", shell.envs[0]["DOCSPIPE_PR"])
}

func TestRunCanceledContext(t *testing.T) {
	shell := &fakeShell{}
	p := shellPipeline(config.Job{Name: "build", Steps: []config.Step{{Run: "make docs"}}})
	r := newTestRunner(t, p, shell)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := r.Run(ctx, event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCanceled, report.Outcome)
	assert.Empty(t, shell.scripts)
}

func TestRunArtifactFlowBetweenJobs(t *testing.T) {
	shell := &fakeShell{}
	p := shellPipeline(
		config.Job{
			Name: "build",
			Steps: []config.Step{
				{Name: "Make site", Run: "mkdir -p docs/build/html"},
				{Uses: config.StepUploadArtifact, With: map[string]string{"name": "html-docs", "path": "docs/build/html"}},
			},
		},
		config.Job{
			Name:  "consume",
			Needs: []string{"build"},
			Steps: []config.Step{
				{Uses: config.StepDownloadArtifact, With: map[string]string{"name": "html-docs", "path": "restored"}},
			},
		},
	)
	r := newTestRunner(t, p, shell)

	// The fake shell does not touch the filesystem, so create the upload
	// source through a real runner seam: replace the first step's shell run
	// by pre-creating the directory via a custom shell.
	realShell := &dirMakingShell{inner: shell}
	r.WithShell(realShell)

	report, err := r.Run(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, OutcomeSuccess, report.JobOutcome("consume"))
}

// dirMakingShell interprets "mkdir -p <dir>" literally relative to dir so
// builtin steps that follow can operate on real paths.
type dirMakingShell struct {
	inner *fakeShell
}

func (d *dirMakingShell) Run(ctx context.Context, script, dir string, env []string) error {
	if target, ok := strings.CutPrefix(script, "mkdir -p "); ok {
		path := filepath.Join(dir, target)
		if err := os.MkdirAll(path, 0o750); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(path, "index.html"), []byte("<html></html>"), 0o600)
	}
	return d.inner.Run(ctx, script, dir, env)
}

func TestRunDeployAction(t *testing.T) {
	var gotDeploy git.DeployOpts
	shell := &fakeShell{}
	p := shellPipeline(config.Job{
		Name: "build",
		Steps: []config.Step{
			{Name: "Make site", Run: "mkdir -p docs/build/html"},
			{
				If:   "event == push && branch == main",
				Uses: config.StepDeployPages,
				With: map[string]string{"branch": "gh-pages", "path": "docs/build/html"},
			},
		},
	})
	r := newTestRunner(t, p, &fakeShell{})
	r.WithShell(&dirMakingShell{inner: shell})
	r.deployFn = func(ctx context.Context, opts git.DeployOpts) error {
		gotDeploy = opts
		return nil
	}

	report, err := r.Run(context.Background(), event.Event{
		Type: event.Push, Branch: "main", Commit: "abcdef1234567890", RepoURL: "https://example.org/docs.git",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, "gh-pages", gotDeploy.Branch)
	assert.Equal(t, "https://example.org/docs.git", gotDeploy.RepoURL)
	assert.Equal(t, "Update documentation for abcdef12", gotDeploy.Message)
	assert.True(t, strings.HasSuffix(gotDeploy.SourceDir, filepath.Join("docs", "build", "html")))
}

func TestRunPreviewBucketAction(t *testing.T) {
	bucketRoot := t.TempDir()
	bucket, err := preview.NewFSBucket(bucketRoot)
	require.NoError(t, err)

	shell := &fakeShell{}
	p := shellPipeline(config.Job{
		Name: "preview",
		If:   "event == pull_request",
		Steps: []config.Step{
			{Name: "Make site", Run: "mkdir -p site"},
			{Uses: config.StepPreviewBucket, With: map[string]string{"path": "site", "prefix": "previews/docs"}},
		},
	})
	r := newTestRunner(t, p, &fakeShell{})
	r.WithShell(&dirMakingShell{inner: shell}).WithBucket(bucket)

	report, err := r.Run(context.Background(), event.Event{Type: event.PullRequest, PRNumber: 17, Branch: "fix"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)

	_, err = os.Stat(filepath.Join(bucketRoot, "previews", "docs", "17", "index.html"))
	assert.NoError(t, err)
}

func TestRunPreviewBucketRequiresPRNumber(t *testing.T) {
	bucket, err := preview.NewFSBucket(t.TempDir())
	require.NoError(t, err)

	p := shellPipeline(config.Job{
		Name: "preview",
		Steps: []config.Step{
			{Name: "Make site", Run: "mkdir -p site"},
			{Uses: config.StepPreviewBucket, With: map[string]string{"path": "site", "prefix": "previews"}},
		},
	})
	r := newTestRunner(t, p, &fakeShell{})
	r.WithShell(&dirMakingShell{inner: &fakeShell{}}).WithBucket(bucket)

	report, err := r.Run(context.Background(), event.Event{Type: event.Dispatch})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Contains(t, report.Jobs[0].Steps[1].Error, "pull request number")
}

func TestSanitizeDirName(t *testing.T) {
	assert.Equal(t, "build_os-linux-python-3.9", sanitizeDirName("build[os=linux,python=3.9]"))
	assert.Equal(t, "plain", sanitizeDirName("plain"))
}
