package dualsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/spf13/afero"

	"github.com/hepwiki/wikibot/internal/langtree"
	"github.com/hepwiki/wikibot/internal/translate"
	"github.com/hepwiki/wikibot/internal/vcs"
)

// IntegrityError reports a file whose sibling is not in the state the
// mirrored layout requires.
type IntegrityError struct {
	Path   string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error in %s: %s", e.Path, e.Detail)
}

// Repo is the subset of vcs.Repository the engine needs.
type Repo interface {
	LastAuthorOfFile(ctx context.Context, path string) (vcs.Author, error)
	Move(ctx context.Context, from, to string) error
}

// Decision records what happened to one diff entry.
type Decision struct {
	Entry   vcs.DiffEntry
	Sibling string
	Action  Action
	Err     error
}

// Result accumulates the decisions of one Sync call.
type Result struct {
	// AutoTranslated lists sibling paths written by machine translation.
	AutoTranslated []string
	// ManualTranslationNeeded lists sibling paths a human should translate.
	ManualTranslationNeeded []string
	Decisions               []Decision
	// Errors holds per-file failures. None of them stopped the others.
	Errors []error
}

func (r *Result) record(d Decision) {
	r.Decisions = append(r.Decisions, d)
	if d.Err != nil {
		r.Errors = append(r.Errors, d.Err)
	}
	switch d.Action.Label {
	case AutoTranslated:
		r.AutoTranslated = append(r.AutoTranslated, d.Sibling)
	case ManualTranslationNeeded:
		r.ManualTranslationNeeded = append(r.ManualTranslationNeeded, d.Sibling)
	}
}

// Engine applies the sync policy to a working tree.
type Engine struct {
	// Fs is rooted at the repository working tree.
	Fs         afero.Fs
	Repo       Repo
	Translator translate.Translator
	// BotName is the author name of the bot's own commits.
	BotName string
	// Banner inserts the auto-translation note into translated pages.
	Banner bool
	Logger *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Sync mirrors every content-file entry into the sibling tree. Tables of
// contents and paths outside both language roots are ignored.
func (e *Engine) Sync(ctx context.Context, entries []vcs.DiffEntry) Result {
	var res Result
	moved := vcs.MovedAway(entries)
	touched := vcs.Touched(entries)

	for _, entry := range entries {
		if !langtree.InTree(entry.Path) || langtree.IsTOC(entry.Path) {
			continue
		}
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err)
			return res
		}
		res.record(e.syncOne(ctx, entry, moved, touched))
	}
	return res
}

func (e *Engine) syncOne(ctx context.Context, entry vcs.DiffEntry, moved, touched map[string]bool) Decision {
	// A move in from outside the language roots behaves like an addition.
	if entry.IsMoveOrCopy() && !langtree.InTree(entry.OldPath) {
		entry = vcs.DiffEntry{Kind: vcs.Added, Path: entry.Path}
	}

	sibling, _, err := langtree.Sibling(entry.Path)
	if err != nil {
		return Decision{Entry: entry, Action: Action{OpNone, Skipped}, Err: err}
	}
	d := Decision{Entry: entry, Sibling: sibling}

	// the file whose translation state matters
	reference := sibling
	if entry.IsMoveOrCopy() {
		reference, _, _ = langtree.Sibling(entry.OldPath)
	}

	facts := Facts{
		Kind:           entry.Kind,
		Similarity:     entry.Similarity,
		Document:       langtree.IsDocument(entry.Path),
		MovedAway:      moved[entry.Path],
		SiblingTouched: touched[sibling],
	}
	facts.SiblingExists, err = afero.Exists(e.Fs, reference)
	if err != nil {
		d.Action = Action{OpNone, Skipped}
		d.Err = err
		return d
	}
	if facts.Document && facts.SiblingExists {
		author, err := e.Repo.LastAuthorOfFile(ctx, reference)
		if err != nil {
			d.Action = Action{OpNone, Skipped}
			d.Err = fmt.Errorf("failed to get last author of %s: %w", reference, err)
			return d
		}
		facts.SiblingByBot = e.BotName != "" && author.Name == e.BotName
	}

	d.Action = Decide(facts)
	log := e.logger().With("path", entry.Path, "sibling", sibling, "kind", entry.Kind.String())

	if entry.Kind == vcs.Added && facts.SiblingExists {
		// Reported but not fatal: the sibling still follows the policy.
		d.Err = &IntegrityError{Path: sibling, Detail: fmt.Sprintf("should not exist, since %s is just created", entry.Path)}
		log.Warn("sibling of a new file already exists")
	}

	if err := e.apply(ctx, entry, reference, sibling, d.Action, log); err != nil {
		d.Err = err
		var terr *translate.Error
		if errors.As(err, &terr) {
			d.Action.Label = ManualTranslationNeeded
		} else {
			d.Action.Label = IntegrityFailure
		}
		log.Error("sync action failed", "op", d.Action.Op.String(), "error", err)
		return d
	}

	if d.Action.Op != OpNone {
		log.Info("synced sibling", "op", d.Action.Op.String(), "label", string(d.Action.Label))
	}
	return d
}

func (e *Engine) apply(ctx context.Context, entry vcs.DiffEntry, reference, sibling string, action Action, log *slog.Logger) error {
	switch action.Op {
	case OpNone:
		return nil

	case OpCopy:
		return e.copyFile(entry.Path, sibling)

	case OpTranslate:
		return e.translateTo(ctx, entry.Path, sibling)

	case OpTranslateRelocated:
		err := e.translateTo(ctx, entry.Path, sibling)
		var terr *translate.Error
		if errors.As(err, &terr) {
			// keep the trees mirrored: the old translation moves along and
			// is left for a human to update
			log.Warn("translation failed, relocating old sibling untranslated", "old", reference, "error", err)
			if rerr := e.relocate(ctx, entry, reference, sibling); rerr != nil {
				return fmt.Errorf("failed to relocate %s after %v: %w", reference, err, rerr)
			}
			return err
		}
		if err != nil {
			return err
		}
		if entry.Kind == vcs.Renamed && reference != sibling {
			log.Debug("removing old sibling", "old", reference)
			return e.Fs.Remove(reference)
		}
		return nil

	case OpRelocate:
		return e.relocate(ctx, entry, reference, sibling)

	case OpRemove:
		return e.Fs.Remove(sibling)

	case OpIntegrity:
		return &IntegrityError{Path: sibling, Detail: fmt.Sprintf("should have existed, since %s is %s", entry.Path, entry.Kind)}
	}
	return fmt.Errorf("unknown op %v", action.Op)
}

// relocate moves (rename) or copies (copy) the old sibling to its new path.
func (e *Engine) relocate(ctx context.Context, entry vcs.DiffEntry, from, to string) error {
	if entry.Kind == vcs.Renamed {
		return e.Repo.Move(ctx, from, to)
	}
	return e.copyFile(from, to)
}

func (e *Engine) copyFile(from, to string) error {
	data, err := afero.ReadFile(e.Fs, from)
	if err != nil {
		return err
	}
	mode := os.FileMode(0644)
	if info, err := e.Fs.Stat(from); err == nil {
		mode = info.Mode().Perm()
	}
	if err := e.Fs.MkdirAll(path.Dir(to), 0755); err != nil {
		return err
	}
	return afero.WriteFile(e.Fs, to, data, mode)
}

func (e *Engine) translateTo(ctx context.Context, from, to string) error {
	src, err := langtree.LangOf(from)
	if err != nil {
		return err
	}
	data, err := afero.ReadFile(e.Fs, from)
	if err != nil {
		return err
	}

	out, err := translate.Document(ctx, e.Translator, string(data), src, src.Sibling(), translate.DocumentOptions{Banner: e.Banner})
	if err != nil {
		return err
	}

	if err := e.Fs.MkdirAll(path.Dir(to), 0755); err != nil {
		return err
	}
	return afero.WriteFile(e.Fs, to, []byte(out), 0644)
}
