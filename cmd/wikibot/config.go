package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hepwiki/wikibot/internal/config"
	"github.com/hepwiki/wikibot/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "tools",
	Short:   "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Long: `Print the configuration after merging config.yml, the mail credentials
file and WIKIBOT_* environment overrides. Passwords and API keys are masked.

The configuration is validated first; every problem is listed at once.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath, mailConfigPath)
		if err != nil {
			fatal("%v", err)
		}

		p := ui.New(os.Stderr)
		if err := cfg.Validate(); err != nil {
			p.Fail("configuration is invalid:")
			p.Muted("%v", err)
		} else {
			p.OK("configuration is valid")
		}

		data, err := cfg.YAML()
		if err != nil {
			fatal("%v", err)
		}
		fmt.Print(string(data))
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
