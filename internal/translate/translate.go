// Package translate wraps machine translation backends for wiki pages.
//
// A Translator turns text from one language into the other. Document and
// Lines layer the wiki-specific handling on top of any backend: fenced code
// blocks are shielded from the backend, common markdown damage is repaired,
// an auto-translation banner is inserted and Chinese output gets spacing
// between CJK and Latin runs.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hepwiki/wikibot/internal/langtree"
)

// ErrTranslation is the root of every translation failure.
var ErrTranslation = errors.New("translation failed")

// Error describes a failed translation call.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTranslation, e.Backend, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrTranslation, e.Err}
}

// Translator translates plain text between the two wiki languages.
type Translator interface {
	// Name identifies the backend in logs and banners.
	Name() string

	// Translate returns text rendered in dst. Line structure should be
	// preserved; callers that batch short strings rely on it.
	Translate(ctx context.Context, text string, src, dst langtree.Lang) (string, error)
}

// Credited is implemented by backends that want a credit link in the
// auto-translation banner.
type Credited interface {
	Credit() string
}

// DocumentOptions controls Document.
type DocumentOptions struct {
	// Banner inserts the auto-translation note.
	Banner bool
}

// Document translates a whole markdown page.
func Document(ctx context.Context, t Translator, text string, src, dst langtree.Lang, opts DocumentOptions) (string, error) {
	protected, blocks := ProtectCodeBlocks(text)

	out, err := t.Translate(ctx, protected, src, dst)
	if err != nil {
		return "", wrap(t, err)
	}

	banner := ""
	if opts.Banner {
		banner = BannerFor(t)
	}
	out = PostProcess(out, dst, banner)

	return RestoreCodeBlocks(out, blocks), nil
}

// Lines translates several single-line strings with one backend call.
// The strings are joined by newlines and split back by position, so the
// result has exactly len(lines) entries or an error is returned.
func Lines(ctx context.Context, t Translator, lines []string, src, dst langtree.Lang) ([]string, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	for i, l := range lines {
		if strings.Contains(l, "\n") {
			return nil, wrap(t, fmt.Errorf("line %d contains a newline", i))
		}
	}

	out, err := t.Translate(ctx, strings.Join(lines, "\n"), src, dst)
	if err != nil {
		return nil, wrap(t, err)
	}
	out = PostProcess(strings.TrimRight(out, "\n"), dst, "")

	result := strings.Split(out, "\n")
	if len(result) != len(lines) {
		return nil, wrap(t, fmt.Errorf("sent %d lines, got %d back", len(lines), len(result)))
	}
	for i := range result {
		result[i] = strings.TrimSpace(result[i])
	}
	return result, nil
}

func wrap(t Translator, err error) error {
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Backend: t.Name(), Err: err}
}
