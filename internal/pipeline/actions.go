package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/docspipe/internal/config"
	"git.home.luguber.info/inful/docspipe/internal/git"
	"git.home.luguber.info/inful/docspipe/internal/preview"
	"git.home.luguber.info/inful/docspipe/internal/sitegen"
)

// runBuiltin executes a `uses:` step. Paths in `with` are relative to the job
// directory, which the checkout step populates.
func (r *Runner) runBuiltin(ctx context.Context, runID string, plan *Plan, st *config.Step, jobDir string, env map[string]string) error {
	switch st.Uses {
	case config.StepCheckout:
		return r.actionCheckout(ctx, plan, st, jobDir, env)
	case config.StepBuildDocs:
		return r.actionBuildDocs(ctx, st, jobDir, env)
	case config.StepUploadArtifact:
		_, err := r.artifacts.Upload(ctx, runID, st.With["name"], joinJobPath(jobDir, st.With["path"]))
		return err
	case config.StepDownloadArtifact:
		_, err := r.artifacts.Download(ctx, runID, st.With["name"], joinJobPath(jobDir, st.With["path"]))
		return err
	case config.StepDeployPages:
		return r.actionDeploy(ctx, plan, st, jobDir, env)
	case config.StepNoIndex:
		_, err := preview.InjectNoIndex(joinJobPath(jobDir, st.With["path"]))
		return err
	case config.StepPreviewBucket:
		return r.actionPreviewBucket(ctx, plan, st, jobDir)
	}
	return fmt.Errorf("unknown builtin step: %s", st.Uses)
}

func (r *Runner) actionCheckout(ctx context.Context, plan *Plan, st *config.Step, jobDir string, env map[string]string) error {
	url := st.With["url"]
	if url == "" {
		url = plan.Event.RepoURL
	}
	branch := st.With["ref"]
	if branch == "" {
		branch = plan.Event.Branch
	}
	depth := 0
	if d := st.With["depth"]; d != "" {
		n, err := strconv.Atoi(d)
		if err != nil {
			return fmt.Errorf("checkout: invalid depth %q: %w", d, err)
		}
		depth = n
	}
	return r.checkoutFn(ctx, jobDir, git.CheckoutOpts{
		URL:    url,
		Branch: branch,
		Commit: plan.Event.Commit,
		Depth:  depth,
		Token:  secretFromEnv(st, env),
	})
}

func (r *Runner) actionBuildDocs(ctx context.Context, st *config.Step, jobDir string, env map[string]string) error {
	builder := &sitegen.Builder{
		Generator: st.With["generator"],
		Args:      strings.Fields(st.With["args"]),
		Env:       envList(env),
	}
	return builder.Build(ctx, joinJobPath(jobDir, st.With["source"]), joinJobPath(jobDir, st.With["output"]))
}

func (r *Runner) actionDeploy(ctx context.Context, plan *Plan, st *config.Step, jobDir string, env map[string]string) error {
	url := st.With["url"]
	if url == "" {
		url = plan.Event.RepoURL
	}
	message := st.With["message"]
	if message == "" && plan.Event.Commit != "" {
		message = fmt.Sprintf("Update documentation for %s", shortSHA(plan.Event.Commit))
	}
	err := r.deployFn(ctx, git.DeployOpts{
		RepoURL:   url,
		Branch:    st.With["branch"],
		SourceDir: joinJobPath(jobDir, st.With["path"]),
		Token:     secretFromEnv(st, env),
		Message:   message,
		Author:    st.With["author"],
	})
	r.recorder.IncDeploy(err == nil)
	return err
}

func (r *Runner) actionPreviewBucket(ctx context.Context, plan *Plan, st *config.Step, jobDir string) error {
	if r.bucket == nil {
		return fmt.Errorf("preview-bucket: no bucket configured")
	}
	if plan.Event.PRNumber <= 0 {
		return fmt.Errorf("preview-bucket: event carries no pull request number")
	}
	key := preview.PreviewKey(st.With["prefix"], plan.Event.PRNumber)
	_, err := r.bucket.PutDir(ctx, key, joinJobPath(jobDir, st.With["path"]))
	r.recorder.IncPreviewPublish(err == nil)
	return err
}

// secretFromEnv resolves the step's token_env reference against the merged
// environment, so secrets flow through .env and declared pipeline secrets.
func secretFromEnv(st *config.Step, env map[string]string) string {
	name := st.With["token_env"]
	if name == "" {
		return ""
	}
	return env[name]
}

// joinJobPath anchors a with-path at the job directory. Absolute paths are
// taken as-is to allow out-of-workspace destinations.
func joinJobPath(jobDir, rel string) string {
	if rel == "" {
		return jobDir
	}
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(jobDir, rel)
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
