// Command wikibot keeps the Chinese and English halves of the wiki in sync.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hepwiki/wikibot/internal/config"
	"github.com/hepwiki/wikibot/internal/logging"
)

var (
	configPath     string
	mailConfigPath string
	logLevel       string
)

var rootCmd = &cobra.Command{
	Use:   "wikibot",
	Short: "Bilingual wiki synchronization bot",
	Long: `wikibot watches a bilingual gitbook wiki and keeps its zh-hans and en
trees in step: tables of contents are mirrored, new and moved documents are
carried over, and pages edited only on one side are machine translated.

Authors are mailed a report for every commit that reaches the wiki.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&mailConfigPath, "mail-config", ".mail_config.yml", "Mail credentials file, merged under \"mail\"")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "bot", Title: "Bot:"},
		&cobra.Group{ID: "tools", Title: "Tools:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, mailConfigPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s:\n%w", configPath, err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Workers pass toFile=false: their
// stderr is already captured by the supervisor.
func newLogger(cfg *config.Config, toFile bool) (*slog.Logger, io.Closer, error) {
	opts := logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON}
	if toFile {
		opts.File = cfg.Log.File
	}
	return logging.New(opts)
}

// areaPath resolves a configured relative path against the working
// directory, so re-executed workers agree with the supervisor.
func areaPath(rel string) string {
	p, err := filepath.Abs(rel)
	if err != nil {
		return rel
	}
	return p
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
