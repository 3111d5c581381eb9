package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hepwiki/wikibot/internal/vcs"
)

// detect resolves the working tree root
func (g *Git) detect() error {
	absPath, err := filepath.Abs(g.repoRoot)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = absPath

	output, err := cmd.Output()
	if err != nil {
		return vcs.ErrNotInVCS
	}

	g.repoRoot = normalizeRepoRoot(strings.TrimSpace(string(output)))
	return nil
}

// normalizeRepoRoot normalizes the repository root path
// Resolves symlinks so that paths compare equal across invocations
func normalizeRepoRoot(path string) string {
	path = filepath.FromSlash(path)

	// Resolve symlinks
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	return path
}

// Head returns the commit currently checked out
func (g *Git) Head(ctx context.Context) (vcs.CommitID, error) {
	commits, err := g.ListCommits(ctx, 1, false)
	if err != nil {
		return "", err
	}
	return commits[0], nil
}

// ListCommits returns up to n commit ids, newest first.
// With remote set the remote is fetched first and the remote-tracking
// branch is listed instead of HEAD.
func (g *Git) ListCommits(ctx context.Context, n int, remote bool) ([]vcs.CommitID, error) {
	if n <= 0 {
		n = 1
	}

	rev := "HEAD"
	if remote {
		if err := g.Fetch(ctx); err != nil {
			return nil, err
		}
		rev = g.remote + "/" + g.branch
	}

	output, err := g.run(ctx, "log", "log", rev, "--format=%H", "-n", strconv.Itoa(n))
	if err != nil {
		return nil, err
	}

	lines := vcs.ParseLines(output)
	if len(lines) == 0 {
		return nil, vcs.ErrEmptyHistory
	}

	commits := make([]vcs.CommitID, len(lines))
	for i, line := range lines {
		commits[i] = vcs.CommitID(line)
	}
	return commits, nil
}

// DiffTree returns the name-status diff over rng with copy detection
func (g *Git) DiffTree(ctx context.Context, rng string) ([]vcs.DiffEntry, error) {
	args := []string{"diff", "--name-status", "-C", rng}
	output, err := g.run(ctx, "diff-tree", args...)
	if err != nil {
		return nil, err
	}

	entries, err := vcs.ParseNameStatus(output)
	if err != nil {
		return nil, vcs.NewError("diff-tree", args, err.Error(), vcs.ErrCommandFailed)
	}
	return entries, nil
}

// Patch returns the diff of one path over rng
func (g *Git) Patch(ctx context.Context, rng string, path string, zeroContext bool) (string, error) {
	args := []string{"diff", rng}
	if zeroContext {
		args = append(args, "-U0")
	}
	args = append(args, "--", path)

	output, err := g.run(ctx, "diff", args...)
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// authorFormat separates name and email with a NUL byte.
const authorFormat = "--format=%an%x00%ae"

// AuthorOf returns the author of a commit
func (g *Git) AuthorOf(ctx context.Context, commit vcs.CommitID) (vcs.Author, error) {
	output, err := g.run(ctx, "show", "show", "-s", authorFormat, string(commit))
	if err != nil {
		return vcs.Author{}, err
	}
	return parseAuthor(output), nil
}

// LastAuthorOfFile returns the author of the last commit touching path.
// An untracked path yields a zero Author.
func (g *Git) LastAuthorOfFile(ctx context.Context, path string) (vcs.Author, error) {
	output, err := g.run(ctx, "log", "log", "-n", "1", authorFormat, "--", path)
	if err != nil {
		return vcs.Author{}, err
	}
	return parseAuthor(output), nil
}

func parseAuthor(output []byte) vcs.Author {
	s := strings.TrimSpace(string(output))
	if s == "" {
		return vcs.Author{}
	}
	name, email, _ := strings.Cut(s, "\x00")
	return vcs.Author{Name: name, Email: email}
}
