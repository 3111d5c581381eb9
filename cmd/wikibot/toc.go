package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/hepwiki/wikibot/internal/langtree"
	"github.com/hepwiki/wikibot/internal/toc"
	"github.com/hepwiki/wikibot/internal/translate"
	"github.com/hepwiki/wikibot/internal/ui"
	"github.com/hepwiki/wikibot/internal/vcs"
	"github.com/hepwiki/wikibot/internal/vcs/git"
)

var tocCmd = &cobra.Command{
	Use:     "toc",
	GroupID: "tools",
	Short:   "Work with the two SUMMARY.md tables of contents",
}

var tocCheckCmd = &cobra.Command{
	Use:   "check [wiki-dir]",
	Short: "Check that zh-hans/SUMMARY.md and en/SUMMARY.md have the same layout",
	Long: `Check that both tables of contents list the same documents in the same
order and nesting. Titles may differ; links and structure may not.

With --watch the check re-runs every time either file is saved, which is
handy while fixing an inconsistency by hand.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		watch, _ := cmd.Flags().GetBool("watch")
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		fsys := afero.NewBasePathFs(afero.NewOsFs(), dir)
		p := ui.New(os.Stdout)

		if !watch {
			if !reportConsistency(p, fsys) {
				os.Exit(1)
			}
			return
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		w, err := toc.NewWatcher(dir, 0)
		if err != nil {
			fatal("%v", err)
		}
		reportConsistency(p, fsys)
		p.Muted("watching %s for changes, Ctrl+C to stop", dir)
		if err := w.Run(ctx, func() { reportConsistency(p, fsys) }); err != nil {
			fatal("%v", err)
		}
	},
}

func reportConsistency(p *ui.Printer, fsys afero.Fs) bool {
	detail, err := toc.Check(fsys)
	if err != nil {
		p.Fail("%v", err)
		return false
	}
	if detail != "" {
		p.Fail("tables of contents are inconsistent")
		for _, line := range strings.Split(detail, "\n") {
			p.Muted("  %s", line)
		}
		return false
	}
	p.OK("tables of contents are consistent")
	return true
}

var tocPatchCmd = &cobra.Command{
	Use:   "patch [wiki-dir]",
	Short: "Mirror a SUMMARY.md change onto the other language",
	Long: `Compute the patch that carries the change of one table of contents
between two revisions over to the other language, translating new titles.

The patch is printed; --apply applies it to the working tree instead.

Examples:
  wikibot toc patch --from HEAD~1 --to HEAD
  wikibot toc patch --from origin/master --apply`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		apply, _ := cmd.Flags().GetBool("apply")
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		tr, err := toolTranslator(cmd)
		if err != nil {
			fatal("%v", err)
		}

		ctx := context.Background()
		repo, err := git.New(dir)
		if err != nil {
			fatal("%v", err)
		}
		patch, err := siblingPatch(ctx, repo, tr, vcs.Range(vcs.CommitID(from), vcs.CommitID(to)))
		switch {
		case patch != nil && errors.Is(err, translate.ErrTranslation):
			fmt.Fprintf(os.Stderr, "Warning: titles left untranslated: %v\n", err)
		case err != nil:
			fatal("%v", err)
		}

		if !apply {
			fmt.Print(patch.Text)
			return
		}
		if err := patch.Apply(ctx, repo); err != nil {
			fatal("%v", err)
		}
		ui.New(os.Stdout).OK("applied to %s", patch.Path())
	},
}

// siblingPatch finds the one table edited over rng and mirrors it.
func siblingPatch(ctx context.Context, repo *git.Git, tr translate.Translator, rng string) (*toc.Patch, error) {
	var edited []langtree.Lang
	raw := map[langtree.Lang]string{}
	for _, l := range langtree.Langs {
		text, err := repo.Patch(ctx, rng, l.TOCPath(), true)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) != "" {
			edited = append(edited, l)
			raw[l] = text
		}
	}

	switch len(edited) {
	case 0:
		return nil, fmt.Errorf("no table of contents changed over %s", rng)
	case 1:
		fsys := afero.NewBasePathFs(afero.NewOsFs(), repo.Root())
		return toc.ProduceSiblingPatch(ctx, fsys, edited[0], raw[edited[0]], tr)
	default:
		return nil, fmt.Errorf("both tables of contents changed over %s, nothing to mirror", rng)
	}
}

func init() {
	tocCheckCmd.Flags().BoolP("watch", "w", false, "Re-run the check whenever a SUMMARY.md changes")

	tocPatchCmd.Flags().String("from", "HEAD~1", "Revision before the change")
	tocPatchCmd.Flags().String("to", "HEAD", "Revision after the change")
	tocPatchCmd.Flags().Bool("apply", false, "Apply the patch instead of printing it")

	tocCmd.AddCommand(tocCheckCmd)
	tocCmd.AddCommand(tocPatchCmd)
	rootCmd.AddCommand(tocCmd)
}
