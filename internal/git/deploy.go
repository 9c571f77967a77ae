package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/docspipe/internal/logfields"
)

// DeployOpts configures a hosting-branch deploy.
type DeployOpts struct {
	RepoURL   string
	Branch    string // hosting branch, e.g. gh-pages
	SourceDir string // directory whose contents become the branch tree
	Token     string
	Message   string // commit message; a default is used when empty
	Author    string // "Name <email>"; a default is used when empty
	WorkDir   string // scratch directory for the branch clone
}

// DeployPages publishes the contents of SourceDir to the hosting branch: the
// branch tree is replaced wholesale, committed and pushed. When the tree is
// unchanged no commit is created. The hosting branch is created on first use.
func DeployPages(ctx context.Context, opts DeployOpts) error {
	if opts.Branch == "" {
		return fmt.Errorf("deploy: hosting branch not set")
	}
	if st, err := os.Stat(opts.SourceDir); err != nil || !st.IsDir() {
		return fmt.Errorf("deploy: source %s is not a directory", opts.SourceDir)
	}

	workDir := opts.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.MkdirTemp("", "docspipe-deploy-")
		if err != nil {
			return fmt.Errorf("deploy scratch dir: %w", err)
		}
		defer func() { _ = os.RemoveAll(workDir) }()
	}

	repo, err := cloneOrInitBranch(ctx, workDir, opts)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	if err := replaceTree(workDir, opts.SourceDir); err != nil {
		return fmt.Errorf("replace branch tree: %w", err)
	}

	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage deploy tree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if status.IsClean() {
		slog.Info("Hosting branch already up to date", slog.String("branch", opts.Branch))
		return nil
	}

	message := opts.Message
	if message == "" {
		message = "Update documentation"
	}
	name, email := splitAuthor(opts.Author)
	commit, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: name, Email: email, When: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("commit deploy tree: %w", err)
	}

	pushOpts := &gogit.PushOptions{
		RemoteName: "origin",
		RefSpecs: []gitcfg.RefSpec{
			gitcfg.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", opts.Branch, opts.Branch)),
		},
	}
	if auth := tokenAuth(opts.Token); auth != nil {
		pushOpts.Auth = auth
	}
	if err := repo.PushContext(ctx, pushOpts); err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return classifyError("push", opts.RepoURL, err)
	}

	slog.Info("Deployed documentation to hosting branch",
		slog.String("branch", opts.Branch),
		slog.String("commit", commit.String()[:8]),
		logfields.URL(opts.RepoURL))
	return nil
}

// cloneOrInitBranch clones the hosting branch, or initializes it when the
// branch (or the whole remote history) does not exist yet.
func cloneOrInitBranch(ctx context.Context, dir string, opts DeployOpts) (*gogit.Repository, error) {
	cloneOpts := &gogit.CloneOptions{
		URL:           opts.RepoURL,
		ReferenceName: plumbing.ReferenceName("refs/heads/" + opts.Branch),
		SingleBranch:  true,
	}
	if auth := tokenAuth(opts.Token); auth != nil {
		cloneOpts.Auth = auth
	}

	repo, err := gogit.PlainCloneContext(ctx, dir, false, cloneOpts)
	if err == nil {
		return repo, nil
	}
	if !isMissingBranch(err) {
		return nil, classifyError("clone", opts.RepoURL, err)
	}

	// First deploy: start the hosting branch from scratch.
	slog.Info("Hosting branch missing, initializing", slog.String("branch", opts.Branch))
	repo, err = gogit.PlainInit(dir, false)
	if err != nil {
		return nil, fmt.Errorf("init hosting branch: %w", err)
	}
	if _, err := repo.CreateRemote(&gitcfg.RemoteConfig{Name: "origin", URLs: []string{opts.RepoURL}}); err != nil {
		return nil, fmt.Errorf("configure origin: %w", err)
	}
	// Point HEAD at the hosting branch so the first commit lands there.
	headRef := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.ReferenceName("refs/heads/"+opts.Branch))
	if err := repo.Storer.SetReference(headRef); err != nil {
		return nil, fmt.Errorf("set hosting branch head: %w", err)
	}
	return repo, nil
}

// isMissingBranch detects clone failures caused by an absent branch or an
// entirely empty remote.
func isMissingBranch(err error) bool {
	if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return true
	}
	l := strings.ToLower(err.Error())
	return strings.Contains(l, "reference not found") || strings.Contains(l, "couldn't find remote ref")
}

// replaceTree removes everything except .git from dir, then copies src in.
func replaceTree(dir, src string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		return copyDeployFile(path, target, info.Mode())
	})
}

func copyDeployFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src) // #nosec G304 - path derived from walked tree
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	out, err := os.Create(dst) // #nosec G304 - internal destination
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, mode.Perm())
}

// splitAuthor parses "Name <email>"; defaults are used for missing pieces.
func splitAuthor(author string) (string, string) {
	name, email := "docspipe", "docspipe@localhost"
	if author == "" {
		return name, email
	}
	if i := strings.IndexByte(author, '<'); i >= 0 {
		if j := strings.IndexByte(author, '>'); j > i {
			if n := strings.TrimSpace(author[:i]); n != "" {
				name = n
			}
			if e := strings.TrimSpace(author[i+1 : j]); e != "" {
				email = e
			}
			return name, email
		}
	}
	return strings.TrimSpace(author), email
}
