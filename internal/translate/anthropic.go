package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hepwiki/wikibot/internal/langtree"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

const systemPrompt = `You translate pages of a technical physics wiki written in GitBook markdown.
Translate from %s to %s.
Rules:
- Output only the translation, no preamble or commentary.
- Keep the markdown structure, line breaks and blank lines exactly.
- Never translate or alter tokens of the form #B00000#, URLs, file paths, LaTeX or HTML tags.
- When the input is a list of lines, return the same number of lines in the same order.`

var langNames = map[langtree.Lang]string{
	langtree.Chinese: "Simplified Chinese",
	langtree.English: "English",
}

func init() {
	Register("anthropic", func(opts Options) (Translator, error) {
		return NewAnthropic(opts)
	})
}

// Anthropic translates with the Claude Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic builds the backend. Extra request options are appended
// after the API key, which lets tests point the client elsewhere.
func NewAnthropic(opts Options, reqOpts ...option.RequestOption) (*Anthropic, error) {
	if opts.APIKey == "" {
		return nil, errors.New("anthropic backend requires an API key")
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	all := append([]option.RequestOption{option.WithAPIKey(opts.APIKey)}, reqOpts...)
	return &Anthropic{
		client:    anthropic.NewClient(all...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Name returns "anthropic".
func (a *Anthropic) Name() string { return "anthropic" }

// Credit links the model family in the banner.
func (a *Anthropic) Credit() string {
	return "[Claude](https://www.anthropic.com/claude)"
}

// Translate sends text as a single user message.
func (a *Anthropic) Translate(ctx context.Context, text string, src, dst langtree.Lang) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: fmt.Sprintf(systemPrompt, langNames[src], langNames[dst])},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("empty response (stop reason %q)", msg.StopReason)
	}
	if msg.StopReason == anthropic.StopReasonMaxTokens {
		return "", fmt.Errorf("response truncated at %d tokens", a.maxTokens)
	}
	return out.String(), nil
}
