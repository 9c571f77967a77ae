// Package git wraps go-git for repository checkout and hosting-branch deploys.
package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/docspipe/internal/logfields"
)

// CheckoutOpts configures a repository checkout.
type CheckoutOpts struct {
	URL    string
	Branch string // branch to clone; empty means the remote default
	Commit string // optional commit to check out after cloning
	Depth  int    // shallow clone depth; 0 means full history
	Token  string // optional token for HTTP auth
}

// Checkout clones the repository into dir and positions it at the requested
// branch and commit. The directory is replaced when it already exists.
func Checkout(ctx context.Context, dir string, opts CheckoutOpts) error {
	if opts.URL == "" {
		return fmt.Errorf("checkout: repository URL not set")
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear checkout directory: %w", err)
	}

	cloneOpts := &gogit.CloneOptions{URL: opts.URL}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.ReferenceName("refs/heads/" + opts.Branch)
		cloneOpts.SingleBranch = true
	}
	if opts.Depth > 0 {
		cloneOpts.Depth = opts.Depth
	}
	if auth := tokenAuth(opts.Token); auth != nil {
		cloneOpts.Auth = auth
	}

	repo, err := gogit.PlainCloneContext(ctx, dir, false, cloneOpts)
	if err != nil {
		return classifyError("clone", opts.URL, err)
	}

	if opts.Commit != "" {
		wt, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("worktree: %w", err)
		}
		if err := wt.Checkout(&gogit.CheckoutOptions{Hash: plumbing.NewHash(opts.Commit)}); err != nil {
			return classifyError("checkout", opts.URL, err)
		}
	}

	if ref, herr := repo.Head(); herr == nil {
		slog.Info("Repository checked out",
			logfields.URL(opts.URL),
			slog.String("commit", ref.Hash().String()[:8]),
			logfields.Path(dir))
	} else {
		slog.Info("Repository checked out", logfields.URL(opts.URL), logfields.Path(dir))
	}
	return nil
}

// tokenAuth builds HTTP basic auth for token-based access. Most git hosting
// services accept "token" as the username.
func tokenAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "token", Password: token}
}
