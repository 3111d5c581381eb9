package git

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hepwiki/wikibot/internal/vcs"
)

// Move renames a tracked file with git mv.
// The destination directory is created first since git mv does not.
func (g *Git) Move(ctx context.Context, from, to string) error {
	if err := os.MkdirAll(filepath.Join(g.repoRoot, filepath.Dir(to)), 0755); err != nil {
		return err
	}
	_, err := g.run(ctx, "mv", "mv", "-f", "--", from, to)
	return err
}

// ApplyPatch applies a zero-context unified diff read from stdin.
// With check set, git only validates that the patch applies.
func (g *Git) ApplyPatch(ctx context.Context, patch string, check bool) error {
	args := []string{"apply", "--unidiff-zero", "--whitespace=nowarn"}
	if check {
		args = append(args, "--check")
	}
	args = append(args, "-")

	_, err := vcs.ExecContext(ctx, "git", vcs.Command{
		Op:      "apply",
		Dir:     g.repoRoot,
		Args:    args,
		Stdin:   patch,
		Timeout: g.timeout,
	})
	return err
}
