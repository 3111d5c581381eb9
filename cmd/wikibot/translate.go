package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hepwiki/wikibot/internal/langtree"
	"github.com/hepwiki/wikibot/internal/translate"
	"github.com/hepwiki/wikibot/internal/ui"
)

var translateCmd = &cobra.Command{
	Use:     "translate <file>",
	GroupID: "tools",
	Short:   "Machine translate one wiki page into the other language",
	Long: `Translate a markdown page under zh-hans/ or en/ into its sibling language.
The result goes through the same post-processing as the bot's own
translations. It is printed unless --write is given, which stores it at the
sibling path.

The path is relative to --wiki (default: the current directory).

Backends: ` + strings.Join(translate.Backends(), ", ") + `

Examples:
  wikibot translate en/tools/root.md
  wikibot translate zh-hans/index.md --write --backend anthropic`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wiki, _ := cmd.Flags().GetString("wiki")
		write, _ := cmd.Flags().GetBool("write")
		banner, _ := cmd.Flags().GetBool("banner")

		rel := filepath.ToSlash(args[0])
		dst, src, err := langtree.Sibling(rel)
		if err != nil {
			fatal("%v", err)
		}
		data, err := os.ReadFile(filepath.Join(wiki, rel))
		if err != nil {
			fatal("%v", err)
		}

		tr, err := toolTranslator(cmd)
		if err != nil {
			fatal("%v", err)
		}
		out, err := translate.Document(context.Background(), tr, string(data), src, src.Sibling(),
			translate.DocumentOptions{Banner: banner})
		if err != nil {
			fatal("%v", err)
		}

		if !write {
			fmt.Print(out)
			return
		}
		target := filepath.Join(wiki, filepath.FromSlash(dst))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			fatal("%v", err)
		}
		if err := os.WriteFile(target, []byte(out), 0644); err != nil {
			fatal("%v", err)
		}
		ui.New(os.Stdout).OK("%s translated to %s with %s", rel, dst, tr.Name())
	},
}

// toolTranslator honors --backend and falls back to the configured one.
func toolTranslator(cmd *cobra.Command) (translate.Translator, error) {
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		return translate.New(backend, translate.Options{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			Timeout: translate.DefaultTimeout,
		})
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newTranslator(cfg)
}

func init() {
	translateCmd.Flags().String("wiki", ".", "Wiki checkout the path is relative to")
	translateCmd.Flags().Bool("write", false, "Write the sibling file instead of printing")
	translateCmd.Flags().Bool("banner", true, "Insert the auto-translation note")
	translateCmd.Flags().String("backend", "", "Translation backend, overriding the configuration")

	tocPatchCmd.Flags().String("backend", "", "Translation backend, overriding the configuration")

	rootCmd.AddCommand(translateCmd)
}
