// Package git provides the git implementation of vcs.Repository.
//
// Every operation runs the git binary in the working tree with the
// package-wide timeout. Network operations optionally use a dedicated SSH
// key through GIT_SSH_COMMAND, so the bot can push with a deploy key that
// differs from the host user's key.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hepwiki/wikibot/internal/vcs"
)

// Git implements vcs.Repository for a single working tree.
type Git struct {
	// repoRoot is the working tree directory path
	repoRoot string

	// remote is the remote name, "origin" unless overridden
	remote string

	// branch is the branch that is pulled and pushed
	branch string

	// sshKey is an optional private key for network operations
	sshKey string

	// timeout bounds every invocation
	timeout time.Duration
}

// Option configures a Git instance.
type Option func(*Git)

// WithBranch sets the branch to pull and push.
func WithBranch(branch string) Option {
	return func(g *Git) {
		if branch != "" {
			g.branch = branch
		}
	}
}

// WithRemote sets the remote name.
func WithRemote(remote string) Option {
	return func(g *Git) {
		if remote != "" {
			g.remote = remote
		}
	}
}

// WithSSHKey makes network operations use the given private key.
func WithSSHKey(path string) Option {
	return func(g *Git) {
		g.sshKey = path
	}
}

// WithTimeout overrides vcs.DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Git) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func newGit(path string, opts ...Option) *Git {
	g := &Git{
		repoRoot: path,
		remote:   "origin",
		branch:   "master",
		timeout:  vcs.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// New opens the git working tree at path.
// The path should be the root of a git repository.
func New(path string, opts ...Option) (*Git, error) {
	g := newGit(path, opts...)

	// Detect repository information
	if err := g.detect(); err != nil {
		return nil, err
	}

	return g, nil
}

// Root returns the working tree directory.
func (g *Git) Root() string {
	return g.repoRoot
}

// Branch returns the branch pulled and pushed by this instance.
func (g *Git) Branch() string {
	return g.branch
}

// Version returns the git version string
func Version() (string, error) {
	cmd := exec.Command("git", "--version")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}

	// Output format: "git version 2.39.0"
	version := strings.TrimSpace(string(output))
	version = strings.TrimPrefix(version, "git version ")

	return version, nil
}

// sshEnv returns the environment for network operations.
func (g *Git) sshEnv() []string {
	if g.sshKey == "" {
		return nil
	}
	return []string{fmt.Sprintf("GIT_SSH_COMMAND=ssh -i %s -o IdentitiesOnly=yes", g.sshKey)}
}

// run executes git in the working tree and returns stdout.
func (g *Git) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	return vcs.ExecContext(ctx, "git", vcs.Command{
		Op:      op,
		Dir:     g.repoRoot,
		Args:    args,
		Timeout: g.timeout,
	})
}

// runNetwork is run with the SSH environment applied.
func (g *Git) runNetwork(ctx context.Context, op string, args ...string) ([]byte, error) {
	return vcs.ExecContext(ctx, "git", vcs.Command{
		Op:      op,
		Dir:     g.repoRoot,
		Args:    args,
		Env:     g.sshEnv(),
		Timeout: g.timeout,
	})
}

var _ vcs.Repository = (*Git)(nil)
