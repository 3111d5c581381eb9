package toc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/hepwiki/wikibot/internal/langtree"
)

// ConsistencyError reports that the two tables of contents diverged and
// could not be reconciled automatically.
type ConsistencyError struct {
	// Detail names the first difference found.
	Detail string
	// Links point at the raw files of the offending commit, when known.
	Links []string
}

func (e *ConsistencyError) Error() string {
	return "tables of contents are inconsistent: " + e.Detail
}

// IntegrityError reports a table-of-contents patch that references a
// target the sibling table does not have.
type IntegrityError struct {
	Path   string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error in %s: %s", e.Path, e.Detail)
}

// ErrMissingTOC is returned when a language root has no SUMMARY.md.
var ErrMissingTOC = errors.New("table of contents not found")

// Load reads and parses the table of contents of one language.
func Load(fsys afero.Fs, lang langtree.Lang) (Document, string, error) {
	data, err := afero.ReadFile(fsys, lang.TOCPath())
	if err != nil {
		if errors.Is(err, afero.ErrFileNotFound) {
			return Document{}, "", fmt.Errorf("%w: %s", ErrMissingTOC, lang.TOCPath())
		}
		return Document{}, "", err
	}
	text := string(data)
	return Parse(text), text, nil
}

// Compare returns "" when the documents have the same structure, or a
// description of the first difference.
func Compare(zh, en Document) string {
	n := len(zh.Entries)
	if len(en.Entries) < n {
		n = len(en.Entries)
	}
	for i := 0; i < n; i++ {
		a, b := zh.Entries[i], en.Entries[i]
		if !a.SameShape(b) {
			return fmt.Sprintf("entry %d differs: %s:%d (%s) vs %s:%d (%s)",
				i+1,
				langtree.Chinese.TOCPath(), a.Line+1, a.Target,
				langtree.English.TOCPath(), b.Line+1, b.Target)
		}
	}
	if len(zh.Entries) != len(en.Entries) {
		return fmt.Sprintf("entry count differs: %d vs %d", len(zh.Entries), len(en.Entries))
	}

	if len(zh.Layout) != len(en.Layout) {
		return fmt.Sprintf("line count differs: %d vs %d", len(zh.Layout)+1, len(en.Layout)+1)
	}
	if zh.Fingerprint() != en.Fingerprint() {
		for i := range zh.Layout {
			if zh.Layout[i] != en.Layout[i] {
				return fmt.Sprintf("indentation differs on line %d: %q vs %q",
					i+2, zh.Layout[i], en.Layout[i])
			}
		}
	}
	return ""
}

// CheckConsistency loads both tables from fsys and compares them.
// It has no side effects.
func CheckConsistency(fsys afero.Fs) (bool, error) {
	detail, err := Check(fsys)
	if err != nil {
		return false, err
	}
	return detail == "", nil
}

// Check is CheckConsistency with the mismatch description.
func Check(fsys afero.Fs) (string, error) {
	zh, _, err := Load(fsys, langtree.Chinese)
	if err != nil {
		return "", err
	}
	en, _, err := Load(fsys, langtree.English)
	if err != nil {
		return "", err
	}
	return Compare(zh, en), nil
}

// RequireConsistent returns a *ConsistencyError when the tables diverge.
func RequireConsistent(fsys afero.Fs, links ...string) error {
	detail, err := Check(fsys)
	if err != nil {
		return err
	}
	if detail != "" {
		return &ConsistencyError{Detail: detail, Links: links}
	}
	return nil
}

// describe is used in log lines.
func describe(entries []string) string {
	if len(entries) == 0 {
		return "none"
	}
	return strings.Join(entries, ", ")
}
