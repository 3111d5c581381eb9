// Package dualsync mirrors content-file changes from one language tree into
// the other.
//
// Every entry of a diff tree below zh-hans/ or en/ (except the tables of
// contents, handled by package toc) goes through Decide, a pure function of
// the facts gathered about the file and its sibling. Engine gathers the
// facts, runs Decide and carries out the resulting action on the working
// tree.
package dualsync

import (
	"fmt"

	"github.com/hepwiki/wikibot/internal/vcs"
)

// Label is the outcome recorded for one content file.
type Label string

const (
	AutoTranslated          Label = "auto-translated"
	ManualTranslationNeeded Label = "manual-translation-needed"
	DirectCopied            Label = "direct-copied"
	Removed                 Label = "removed"
	Moved                   Label = "moved"
	NoAction                Label = "no-action"
	Skipped                 Label = "skipped"
	IntegrityFailure        Label = "integrity-failure"
)

// Op is the change made to the working tree.
type Op int

const (
	// OpNone leaves the sibling alone.
	OpNone Op = iota
	// OpCopy copies the file verbatim to its sibling path.
	OpCopy
	// OpTranslate writes the translated document to its sibling path.
	OpTranslate
	// OpTranslateRelocated translates to the new sibling path and, for
	// renames, deletes the sibling of the old path.
	OpTranslateRelocated
	// OpRelocate moves (rename) or copies (copy) the sibling of the old path
	// to the new sibling path without touching its content.
	OpRelocate
	// OpRemove deletes the sibling.
	OpRemove
	// OpIntegrity reports that an assumed invariant does not hold.
	OpIntegrity
)

var opNames = map[Op]string{
	OpNone:               "none",
	OpCopy:               "copy",
	OpTranslate:          "translate",
	OpTranslateRelocated: "translate-relocated",
	OpRelocate:           "relocate",
	OpRemove:             "remove",
	OpIntegrity:          "integrity",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Action is what Decide prescribes for one entry.
type Action struct {
	Op    Op
	Label Label
}

// Facts is everything the policy looks at.
//
// For renames and copies the sibling fields describe the sibling of the
// origin path, since that is the file that may carry a translation. For the
// other kinds they describe the sibling of the path itself.
type Facts struct {
	Kind       vcs.ChangeKind
	Similarity int
	// Document is true for markdown files, which need translation.
	Document bool
	// MovedAway is true when the path is the origin of a rename in the
	// same range.
	MovedAway bool
	// SiblingExists reports whether the sibling file is present in the
	// working tree.
	SiblingExists bool
	// SiblingTouched is true when the sibling itself appears in the range.
	SiblingTouched bool
	// SiblingByBot is true when the last commit touching the sibling was
	// made by the bot identity.
	SiblingByBot bool
}

// Decide maps facts to an action. It has no side effects.
func Decide(f Facts) Action {
	switch f.Kind {
	case vcs.Added:
		switch {
		case !f.Document:
			return Action{OpCopy, DirectCopied}
		case f.SiblingExists && f.SiblingByBot:
			return Action{OpTranslate, AutoTranslated}
		default:
			// A new page is left untranslated until it is next modified.
			return Action{OpNone, NoAction}
		}

	case vcs.Modified, vcs.TypeChanged:
		switch {
		case !f.Document:
			return Action{OpCopy, DirectCopied}
		case !f.SiblingExists:
			return Action{OpIntegrity, IntegrityFailure}
		case f.MovedAway:
			return Action{OpNone, Skipped}
		case f.SiblingTouched:
			return Action{OpNone, NoAction}
		case f.SiblingByBot:
			return Action{OpTranslate, AutoTranslated}
		default:
			return Action{OpNone, ManualTranslationNeeded}
		}

	case vcs.Renamed, vcs.Copied:
		exact := f.Similarity == 100
		switch {
		case !f.SiblingExists && (exact || f.Document):
			return Action{OpNone, NoAction}
		case exact:
			return Action{OpRelocate, Moved}
		case !f.Document:
			return Action{OpCopy, DirectCopied}
		case f.SiblingByBot:
			return Action{OpTranslateRelocated, AutoTranslated}
		default:
			return Action{OpRelocate, ManualTranslationNeeded}
		}

	case vcs.Deleted:
		switch {
		case f.MovedAway:
			return Action{OpNone, Skipped}
		case !f.SiblingExists:
			return Action{OpNone, NoAction}
		default:
			return Action{OpRemove, Removed}
		}
	}

	return Action{OpNone, Skipped}
}
