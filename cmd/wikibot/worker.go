package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hepwiki/wikibot/internal/builder"
	"github.com/hepwiki/wikibot/internal/config"
	"github.com/hepwiki/wikibot/internal/history"
	"github.com/hepwiki/wikibot/internal/monitor"
	"github.com/hepwiki/wikibot/internal/notify"
	"github.com/hepwiki/wikibot/internal/site"
	"github.com/hepwiki/wikibot/internal/statusfeed"
	"github.com/hepwiki/wikibot/internal/supervisor"
	"github.com/hepwiki/wikibot/internal/translate"
	"github.com/hepwiki/wikibot/internal/vcs"
	"github.com/hepwiki/wikibot/internal/vcs/git"
	"github.com/hepwiki/wikibot/internal/watermark"
)

var workerCmd = &cobra.Command{
	Use:       "worker <builder|monitor>",
	Short:     "Run one worker in the foreground (started by \"wikibot run\")",
	Hidden:    true,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{builderWorker, monitorWorker},
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("%v", err)
		}
		logger, closer, err := newLogger(cfg, false)
		if err != nil {
			fatal("%v", err)
		}
		defer closer.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var run func(context.Context, *config.Config, *slog.Logger) error
		switch args[0] {
		case builderWorker:
			run = runBuilder
		case monitorWorker:
			run = runMonitor
		default:
			fatal("unknown worker %q", args[0])
		}

		if err := supervisor.Ready(os.Stdout); err != nil {
			fatal("%v", err)
		}
		if err := run(ctx, cfg, logger.With("worker", args[0])); err != nil {
			closer.Close()
			fatal("%v", err)
		}
	},
}

func runBuilder(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	b := builder.New(site.New(cfg.Gitbook.Binary, logger), builder.Config{
		Dir:    areaPath(cfg.WorkArea.RelPath),
		Remote: cfg.WorkArea.GitRemote,
		Branch: cfg.WorkArea.Branch,
		SSHKey: cfg.Bot.SSHKey,
		Port:   cfg.Gitbook.Port,
		Logger: logger,
	})
	return b.Run(ctx)
}

func newTranslator(cfg *config.Config) (translate.Translator, error) {
	return translate.New(cfg.Translation.Backend, translate.Options{
		Model:     cfg.Translation.Model,
		APIKey:    cfg.Translation.APIKey,
		Command:   cfg.Translation.Command,
		MaxTokens: int64(cfg.Translation.MaxTokens),
		Timeout:   cfg.Translation.Timeout,
	})
}

func runMonitor(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	gitOpts := []git.Option{git.WithBranch(cfg.TestArea.Branch), git.WithSSHKey(cfg.Bot.SSHKey)}
	testArea, _, err := git.OpenOrClone(ctx, cfg.TestArea.GitRemote, areaPath(cfg.TestArea.RelPath), gitOpts...)
	if err != nil {
		return fmt.Errorf("failed to open test area: %w", err)
	}

	tr, err := newTranslator(cfg)
	if err != nil {
		return err
	}
	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	db, err := history.Open(areaPath(cfg.History.Path))
	if err != nil {
		return err
	}
	defer db.Close()

	reporter := notify.Reporter{
		Prefix: cfg.Bot.CommitPrefix,
		Links:  notify.NewLinks(cfg.Gitlab.Home, cfg.TestArea.GitRemote),
	}
	m := monitor.New(testArea, site.New(cfg.Gitbook.Binary, logger), tr,
		watermark.New(areaPath(cfg.Monitor.WatermarkFile)), notifier, reporter, monitor.Config{
			PollInterval: cfg.Monitor.PollInterval,
			Bot:          vcs.Author{Name: cfg.Bot.Author, Email: cfg.Bot.Email},
			Banner:       cfg.Translation.Banner,
			Logger:       logger,
		})
	m.History = db

	if workArea, err := git.New(areaPath(cfg.WorkArea.RelPath), git.WithBranch(cfg.WorkArea.Branch), git.WithSSHKey(cfg.Bot.SSHKey)); err == nil {
		m.WorkArea = workArea
	} else {
		logger.Warn("work area unavailable, served site will not follow", "error", err)
	}

	if cfg.StatusFeed.Addr != "" {
		feed := statusfeed.NewServer(&statusfeed.Config{Addr: cfg.StatusFeed.Addr, Logger: logger})
		if err := feed.Start(); err != nil {
			return err
		}
		defer feed.Stop()
		m.Feed = feed
	}

	err = m.Run(ctx)
	var fatalErr *monitor.FatalError
	if errors.As(err, &fatalErr) {
		logger.Error("monitor stopped", "head", fatalErr.Head, "error", fatalErr.Err)
	}
	return err
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
