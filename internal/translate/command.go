package translate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hepwiki/wikibot/internal/langtree"
)

func init() {
	Register("command", func(opts Options) (Translator, error) {
		return NewCommand(opts.Command)
	})
}

// Command pipes text through an external program. The argv may contain
// {src} and {dst}, replaced by the language codes. The program reads the
// source on stdin and writes the translation to stdout.
//
// Example configuration:
//
//	translate:
//	  backend: command
//	  command: ["deepl", "text", "--from", "{src}", "--to", "{dst}", "-"]
type Command struct {
	argv []string
}

// NewCommand validates argv.
func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("command backend requires a program")
	}
	return &Command{argv: argv}, nil
}

// Name returns the program name.
func (c *Command) Name() string { return c.argv[0] }

// Translate runs the program once.
func (c *Command) Translate(ctx context.Context, text string, src, dst langtree.Lang) (string, error) {
	args := make([]string, len(c.argv)-1)
	for i, a := range c.argv[1:] {
		a = strings.ReplaceAll(a, "{src}", string(src))
		args[i] = strings.ReplaceAll(a, "{dst}", string(dst))
	}

	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", c.argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
