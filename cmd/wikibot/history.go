package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/hepwiki/wikibot/internal/history"
	"github.com/hepwiki/wikibot/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "tools",
	Short:   "Show recent monitor iterations",
	Long: `Show the iterations recorded by the monitor, newest first.

--since accepts a date (2026-03-01), a duration (48h) or plain English
("yesterday", "last monday", "3 days ago").

Examples:
  wikibot history
  wikibot history --limit 50
  wikibot history --since "2 days ago"
  wikibot history --stats`,
	Run: func(cmd *cobra.Command, args []string) {
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")
		stats, _ := cmd.Flags().GetBool("stats")

		cfg, err := loadConfig()
		if err != nil {
			fatal("%v", err)
		}
		db, err := history.Open(areaPath(cfg.History.Path))
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		ctx := context.Background()
		p := ui.New(os.Stdout)

		if stats {
			counts, err := db.Count(ctx)
			if err != nil {
				fatal("%v", err)
			}
			p.Title("Iterations by outcome")
			p.Counts(counts)
			return
		}

		var runs []history.Run
		if since != "" {
			from, err := parseSince(since, time.Now())
			if err != nil {
				fatal("%v", err)
			}
			runs, err = db.Since(ctx, from)
			if err != nil {
				fatal("%v", err)
			}
			p.Title("Iterations since %s", from.Format("2006-01-02 15:04"))
		} else {
			runs, err = db.Recent(ctx, limit)
			if err != nil {
				fatal("%v", err)
			}
			p.Title("Last %d iterations", limit)
		}
		p.Runs(runs)
	},
}

// parseSince turns a user supplied point in time into a time.Time.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot understand %q as a point in time", s)
	}
	return r.Time, nil
}

func init() {
	historyCmd.Flags().String("since", "", "Only show iterations started after this time")
	historyCmd.Flags().IntP("limit", "n", 20, "Number of iterations to show")
	historyCmd.Flags().Bool("stats", false, "Show counts per outcome instead")
	rootCmd.AddCommand(historyCmd)
}
