package toc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/afero"

	"github.com/hepwiki/wikibot/internal/langtree"
	"github.com/hepwiki/wikibot/internal/translate"
	"github.com/hepwiki/wikibot/internal/vcs"
)

// Patch is a diff rewritten for the sibling table of contents.
type Patch struct {
	// Text is the unified diff against the sibling SUMMARY.md.
	Text string
	// Target is the language the patch applies to.
	Target langtree.Lang
	// Queued are the source titles that needed translation, in order.
	Queued []string
	// Untranslated is set when Queued titles were kept in the source
	// language because translation failed.
	Untranslated bool
}

// Path is the repository-relative file the patch applies to.
func (p *Patch) Path() string {
	return p.Target.TOCPath()
}

func transPlaceholder(i int) string {
	return fmt.Sprintf("$TRANS%05d", i)
}

// ProduceSiblingPatch rewrites rawPatch, a zero-context diff of edited's
// SUMMARY.md, into a diff of the sibling SUMMARY.md.
//
// Removed and unchanged lines take the title the sibling table already
// uses for the same target. An added line whose title also appears on a
// removed line is a move: it takes the sibling title of the old target.
// Every other added title is translated; all of them go to the backend in
// a single call.
//
// When translation fails the patch is still returned, with the source
// titles left in place, together with the translation error.
func ProduceSiblingPatch(ctx context.Context, fsys afero.Fs, edited langtree.Lang, rawPatch string, tr translate.Translator) (*Patch, error) {
	target := edited.Sibling()
	sibling, _, err := Load(fsys, target)
	if err != nil {
		return nil, err
	}
	titles := sibling.Titles()

	lines := strings.Split(rawPatch, "\n")

	// First pass: collect titles of added and removed entries.
	added := make(map[string]bool)
	removed := make(map[string]string)
	for _, line := range lines {
		mark, entry, ok := parsePatchLine(line)
		if !ok {
			continue
		}
		switch mark {
		case '+':
			added[entry.Title] = true
		case '-':
			if _, seen := removed[entry.Title]; !seen {
				removed[entry.Title] = entry.Target
			}
		}
	}

	patch := &Patch{Target: target}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		// blob ids refer to the edited file
		if strings.HasPrefix(line, "index ") {
			continue
		}
		if isHeader(line) {
			out = append(out, rewriteHeader(line, edited, target))
			continue
		}

		mark, entry, ok := parsePatchLine(line)
		if !ok {
			out = append(out, line)
			continue
		}
		body := line[1:]

		switch {
		case mark == '-' || mark == ' ':
			title, known := titles[entry.Target]
			if !known {
				return nil, &IntegrityError{
					Path:   target.TOCPath(),
					Detail: fmt.Sprintf("no entry for target %q", entry.Target),
				}
			}
			out = append(out, string(mark)+entry.WithTitle(body, title))

		case added[entry.Title] && hasKey(removed, entry.Title):
			oldTarget := removed[entry.Title]
			title, known := titles[oldTarget]
			if !known {
				return nil, &IntegrityError{
					Path:   target.TOCPath(),
					Detail: fmt.Sprintf("moved entry %q has no sibling for %q", entry.Title, oldTarget),
				}
			}
			out = append(out, "+"+entry.WithTitle(body, title))

		default:
			out = append(out, "+"+entry.WithTitle(body, transPlaceholder(len(patch.Queued))))
			patch.Queued = append(patch.Queued, entry.Title)
		}
	}

	text := strings.Join(out, "\n")
	if len(patch.Queued) == 0 {
		patch.Text = text
		return patch, nil
	}

	translated, terr := translate.Lines(ctx, tr, patch.Queued, edited, target)
	if terr != nil {
		translated = patch.Queued
		patch.Untranslated = true
	}
	for i, title := range translated {
		text = strings.Replace(text, transPlaceholder(i), title, 1)
	}
	patch.Text = text

	if terr != nil {
		return patch, terr
	}
	return patch, nil
}

// parsePatchLine splits a diff body line into its marker and entry.
func parsePatchLine(line string) (byte, Entry, bool) {
	if len(line) < 2 || isHeader(line) {
		return 0, Entry{}, false
	}
	mark := line[0]
	if mark != '+' && mark != '-' && mark != ' ' {
		return 0, Entry{}, false
	}
	entry, ok := ParseLine(line[1:])
	return mark, entry, ok
}

func isHeader(line string) bool {
	return strings.HasPrefix(line, "diff --git ") ||
		strings.HasPrefix(line, "--- ") ||
		strings.HasPrefix(line, "+++ ") ||
		strings.HasPrefix(line, "index ")
}

// rewriteHeader points a file header at the sibling language root.
func rewriteHeader(line string, from, to langtree.Lang) string {
	for _, side := range []string{"a/", "b/"} {
		line = strings.ReplaceAll(line, side+from.Prefix(), side+to.Prefix())
	}
	return line
}

func hasKey(m map[string]string, k string) bool {
	_, ok := m[k]
	return ok
}

// Apply validates the patch against the working tree and applies it.
func (p *Patch) Apply(ctx context.Context, repo vcs.Repository) error {
	if err := repo.ApplyPatch(ctx, p.Text, true); err != nil {
		return fmt.Errorf("patch for %s does not apply: %w", p.Path(), err)
	}
	return repo.ApplyPatch(ctx, p.Text, false)
}

// Outcome is the result of synchronizing the tables for one commit range.
type Outcome struct {
	// Edited lists the tables changed by the commits.
	Edited []langtree.Lang
	// AutoTranslated holds the sibling table path when it was patched
	// with machine-translated titles.
	AutoTranslated []string
	// ManualTranslationNeeded holds the sibling table path when the patch
	// failed or kept source-language titles.
	ManualTranslationNeeded []string
}

// Syncer runs the table-of-contents step of a synchronization.
type Syncer struct {
	Fs         afero.Fs
	Repo       vcs.Repository
	Translator translate.Translator
	Logger     *slog.Logger
}

// Sync propagates table-of-contents edits found in entries.
//
// Both tables edited: they must already agree, else *ConsistencyError.
// One table edited: its diff is rewritten and applied to the other.
// Neither edited: they must still agree, else *ConsistencyError.
func (s *Syncer) Sync(ctx context.Context, rng string, entries []vcs.DiffEntry, links ...string) (Outcome, error) {
	var out Outcome
	for _, l := range langtree.Langs {
		for _, e := range entries {
			if e.Path == l.TOCPath() {
				out.Edited = append(out.Edited, l)
				break
			}
		}
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(out.Edited) != 1 {
		return out, RequireConsistent(s.Fs, links...)
	}

	edited := out.Edited[0]
	raw, err := s.Repo.Patch(ctx, rng, edited.TOCPath(), true)
	if err != nil {
		return out, err
	}

	patch, err := ProduceSiblingPatch(ctx, s.Fs, edited, raw, s.Translator)
	var integrity *IntegrityError
	switch {
	case errors.As(err, &integrity):
		logger.Warn("table of contents patch rejected", "path", integrity.Path, "error", integrity.Detail)
		out.ManualTranslationNeeded = append(out.ManualTranslationNeeded, edited.Sibling().TOCPath())
		return out, err
	case err != nil && patch == nil:
		return out, err
	}
	translateErr := err

	if err := patch.Apply(ctx, s.Repo); err != nil {
		logger.Error("failed to patch sibling table of contents", "path", patch.Path(), "error", err)
		out.ManualTranslationNeeded = append(out.ManualTranslationNeeded, patch.Path())
		return out, err
	}

	logger.Info("patched sibling table of contents",
		"path", patch.Path(),
		"translated", describe(patch.Queued),
		"untranslated", patch.Untranslated)

	if translateErr != nil {
		out.ManualTranslationNeeded = append(out.ManualTranslationNeeded, patch.Path())
		return out, nil
	}
	out.AutoTranslated = append(out.AutoTranslated, patch.Path())
	return out, nil
}
