package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hepwiki/wikibot/internal/config"
	"github.com/hepwiki/wikibot/internal/notify"
	"github.com/hepwiki/wikibot/internal/supervisor"
	"github.com/hepwiki/wikibot/internal/vcs/git"
)

// Worker names, also the argument of "wikibot worker".
const (
	builderWorker = "builder"
	monitorWorker = "monitor"
)

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "bot",
	Short:   "Start the bot: the monitor and builder workers under supervision",
	Long: `Start the bot.

Both areas are cloned when missing, then two worker processes are started:

  builder   serves the work area with gitbook
  monitor   polls the test area, synchronizes the languages and pushes

The supervisor checks the workers periodically. Every halted worker is
reported to the admins once, with the tail of its output; when all workers
have halted the bot exits.

Worker output is kept in <supervisor.log_dir>/<worker>.out.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("%v", err)
		}
		logger, closer, err := newLogger(cfg, true)
		if err != nil {
			fatal("%v", err)
		}
		defer closer.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := prepareAreas(ctx, cfg); err != nil {
			fatal("%v", err)
		}

		notifier, err := newNotifier(cfg, logger)
		if err != nil {
			fatal("%v", err)
		}

		sup := supervisor.New(notifier, supervisor.Config{
			PollInterval: cfg.Supervisor.PollInterval,
			Logger:       logger,
		})

		for _, name := range []string{builderWorker, monitorWorker} {
			w, err := supervisor.NewProcessWorker(name, areaPath(cfg.Supervisor.LogDir), logger)
			if err != nil {
				fatal("%v", err)
			}
			w.Args = append(w.Args,
				"--config", areaPath(configPath),
				"--mail-config", areaPath(mailConfigPath))
			if logLevel != "" {
				w.Args = append(w.Args, "--log-level", logLevel)
			}
			sup.Launch(ctx, w)
		}

		logger.Info("bot started", "workers", 2)
		if err := sup.MonitorAll(ctx); err != nil {
			logger.Error("supervisor stopped", "error", err)
		}
		cancel()
		sup.Wait()

		for _, rec := range sup.Records() {
			logger.Info("worker stopped", "worker", rec.Name, "pid", rec.PID, "state", rec.State)
		}
	},
}

// prepareAreas clones both areas before the workers start, so the two
// processes never race on a clone.
func prepareAreas(ctx context.Context, cfg *config.Config) error {
	for _, area := range []config.Area{cfg.TestArea, cfg.WorkArea} {
		dir := areaPath(area.RelPath)
		if _, _, err := git.OpenOrClone(ctx, area.GitRemote, dir,
			git.WithBranch(area.Branch), git.WithSSHKey(cfg.Bot.SSHKey)); err != nil {
			return fmt.Errorf("failed to prepare %s: %w", dir, err)
		}
	}
	return nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (*notify.SMTP, error) {
	return notify.NewSMTP(notify.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUsername,
		Address:  cfg.Mail.SMTPAddress,
		Password: cfg.Mail.SMTPPassword,
		Admins:   cfg.Mail.ReceiverAdmin,
		DryRun:   cfg.Mail.DryRun,
	}, logger.With("component", "mail"))
}

func init() {
	rootCmd.AddCommand(runCmd)
}
