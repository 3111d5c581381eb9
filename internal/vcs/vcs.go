// Package vcs provides the version control surface used by the wiki bot.
//
// The bot never links a git library; every operation shells out to the git
// binary with a bounded timeout. This package holds the backend-neutral
// types (commit ids, diff entries, authors), the error taxonomy and the
// command helpers; internal/vcs/git implements Repository on top of them.
//
// # Usage
//
//	repo, err := git.New(cfg.Repo.TestArea, git.WithBranch("master"))
//	if err != nil {
//	    return err
//	}
//
//	head, err := repo.Head(ctx)
//	entries, err := repo.DiffTree(ctx, vcs.Range(watermark, head))
package vcs

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout bounds every git invocation.
const DefaultTimeout = 60 * time.Second

// CommitID is an opaque commit hash.
type CommitID string

// Short returns the first eight characters of the id.
func (c CommitID) Short() string {
	if len(c) <= 8 {
		return string(c)
	}
	return string(c[:8])
}

// String returns the full hash.
func (c CommitID) String() string {
	return string(c)
}

// Range formats a two-dot revision range "from..to".
func Range(from, to CommitID) string {
	return fmt.Sprintf("%s..%s", from, to)
}

// Author identifies who made a commit.
type Author struct {
	Name  string
	Email string
}

// String formats the author as "Name <email>".
func (a Author) String() string {
	if a.Email == "" {
		return a.Name
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// IsZero reports whether no author information is present.
func (a Author) IsZero() bool {
	return strings.TrimSpace(a.Name) == "" && strings.TrimSpace(a.Email) == ""
}

// Repository is the set of repository operations the bot depends on.
//
// All operations act on a single working tree. Implementations must
// return errors wrapping ErrVCS so callers can classify them.
type Repository interface {
	// ===================
	// History
	// ===================

	// Root returns the working tree directory.
	Root() string

	// Head returns the commit currently checked out.
	Head(ctx context.Context) (CommitID, error)

	// ListCommits returns up to n commit ids, newest first. When remote is
	// true the remote is fetched and the remote-tracking branch is listed.
	ListCommits(ctx context.Context, n int, remote bool) ([]CommitID, error)

	// DiffTree returns the per-file changes between two commits with copy
	// and rename detection enabled.
	DiffTree(ctx context.Context, rng string) ([]DiffEntry, error)

	// Patch returns the textual diff of one file over a range. zeroContext
	// requests a diff with no context lines.
	Patch(ctx context.Context, rng string, path string, zeroContext bool) (string, error)

	// AuthorOf returns the author of a commit.
	AuthorOf(ctx context.Context, commit CommitID) (Author, error)

	// LastAuthorOfFile returns the author of the most recent commit that
	// touched path.
	LastAuthorOfFile(ctx context.Context, path string) (Author, error)

	// ===================
	// Working tree
	// ===================

	// IsClean returns true when there are no uncommitted changes.
	IsClean(ctx context.Context) (bool, error)

	// Move renames a tracked file, creating parent directories.
	Move(ctx context.Context, from, to string) error

	// ApplyPatch applies a zero-context unified diff to the working tree.
	// With check set the patch is only validated.
	ApplyPatch(ctx context.Context, patch string, check bool) error

	// ===================
	// Remote
	// ===================

	// Pull fast-forwards the working tree from the remote branch.
	Pull(ctx context.Context) error

	// CommitAndPush stages everything, commits it under identity and
	// pushes the branch.
	CommitAndPush(ctx context.Context, message string, identity Author) error
}
