package git

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hepwiki/wikibot/internal/vcs"
)

// Clone clones remoteURL into dir and opens it.
// Parent directories of dir are created as needed.
func Clone(ctx context.Context, remoteURL, dir string, opts ...Option) (*Git, error) {
	g := newGit(dir, opts...)

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, err
	}

	args := []string{"clone", "--branch", g.branch, remoteURL, dir}
	if _, err := vcs.ExecContext(ctx, "git", vcs.Command{
		Op:      "clone",
		Dir:     parent,
		Args:    args,
		Env:     g.sshEnv(),
		Timeout: g.timeout,
	}); err != nil {
		return nil, err
	}

	if err := g.detect(); err != nil {
		return nil, err
	}
	return g, nil
}

// OpenOrClone opens dir when it is already a repository, otherwise
// clones remoteURL into it.
func OpenOrClone(ctx context.Context, remoteURL, dir string, opts ...Option) (*Git, bool, error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		g, err := New(dir, opts...)
		return g, false, err
	}
	g, err := Clone(ctx, remoteURL, dir, opts...)
	return g, true, err
}

// Fetch fetches the configured remote
func (g *Git) Fetch(ctx context.Context) error {
	_, err := g.runNetwork(ctx, "fetch", "fetch", g.remote)
	return err
}

// Pull pulls the configured branch from the remote
func (g *Git) Pull(ctx context.Context) error {
	_, err := g.runNetwork(ctx, "pull", "pull", g.remote, g.branch)
	return err
}

// Push pushes the configured branch to the remote
func (g *Git) Push(ctx context.Context) error {
	_, err := g.runNetwork(ctx, "push", "push", g.remote, "HEAD:"+g.branch)
	return err
}
