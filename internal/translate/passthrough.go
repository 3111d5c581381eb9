package translate

import (
	"context"
	"fmt"

	"github.com/hepwiki/wikibot/internal/langtree"
)

// DummyBanner marks pages produced by the passthrough backend.
const DummyBanner = "> Passes a dummy translator\n"

func init() {
	Register("passthrough", func(Options) (Translator, error) {
		return Passthrough{}, nil
	})
}

// Passthrough returns its input unchanged. It keeps the pipeline running
// on hosts without a translation backend and in tests.
type Passthrough struct{}

// Name returns "passthrough".
func (Passthrough) Name() string { return "passthrough" }

// Translate returns text as is.
func (Passthrough) Translate(_ context.Context, text string, _, _ langtree.Lang) (string, error) {
	return text, nil
}

// BannerFor returns the banner to insert for pages produced by t.
func BannerFor(t Translator) string {
	t = unwrap(t)
	if _, ok := t.(Passthrough); ok {
		return DummyBanner
	}
	credit := t.Name()
	if c, ok := t.(Credited); ok {
		credit = c.Credit()
	}
	return fmt.Sprintf(BannerTemplate, credit)
}
