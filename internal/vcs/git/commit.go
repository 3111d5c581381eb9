package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/hepwiki/wikibot/internal/vcs"
)

// IsClean returns true if there are no uncommitted changes
func (g *Git) IsClean(ctx context.Context) (bool, error) {
	output, err := g.run(ctx, "status", "status", "--porcelain")
	if err != nil {
		return false, err
	}

	return len(strings.TrimSpace(string(output))) == 0, nil
}

// Changes returns the porcelain status lines of the working tree
func (g *Git) Changes(ctx context.Context) ([]string, error) {
	output, err := g.run(ctx, "status", "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return vcs.ParseLines(output), nil
}

// Commit stages every change and records a commit under identity.
// It is a no-op when nothing is staged.
func (g *Git) Commit(ctx context.Context, message string, identity vcs.Author) error {
	if _, err := g.run(ctx, "add", "add", "--all", "."); err != nil {
		return err
	}

	clean, err := g.IsClean(ctx)
	if err != nil {
		return err
	}
	if clean {
		return nil
	}

	args := []string{"commit", "-m", message}
	if !identity.IsZero() {
		args = append(args, fmt.Sprintf("--author=%s", identity))
	}

	_, err = g.run(ctx, "commit", args...)
	return err
}

// CommitAndPush stages, commits and pushes the branch to the remote
func (g *Git) CommitAndPush(ctx context.Context, message string, identity vcs.Author) error {
	if err := g.Commit(ctx, message, identity); err != nil {
		return err
	}
	return g.Push(ctx)
}
