package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/hepwiki/wikibot/internal/langtree"
)

// DefaultTimeout bounds a backend call when the configuration names none.
const DefaultTimeout = 2 * time.Minute

// WithTimeout bounds every Translate call of t by d. A backend that does
// not watch its context is abandoned once d has passed; its late answer
// is discarded.
func WithTimeout(t Translator, d time.Duration) Translator {
	if d <= 0 {
		return t
	}
	return &bounded{backend: t, timeout: d}
}

type bounded struct {
	backend Translator
	timeout time.Duration
}

func (b *bounded) Name() string { return b.backend.Name() }

// Unwrap returns the bounded backend.
func (b *bounded) Unwrap() Translator { return b.backend }

func (b *bounded) Translate(ctx context.Context, text string, src, dst langtree.Lang) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type answer struct {
		text string
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		out, err := b.backend.Translate(ctx, text, src, dst)
		done <- answer{out, err}
	}()

	select {
	case a := <-done:
		if a.err != nil && ctx.Err() != nil {
			return "", fmt.Errorf("no answer within %s: %w", b.timeout, ctx.Err())
		}
		return a.text, a.err
	case <-ctx.Done():
		return "", fmt.Errorf("no answer within %s: %w", b.timeout, ctx.Err())
	}
}

// unwrap strips WithTimeout so type checks see the real backend.
func unwrap(t Translator) Translator {
	for {
		u, ok := t.(interface{ Unwrap() Translator })
		if !ok {
			return t
		}
		t = u.Unwrap()
	}
}
