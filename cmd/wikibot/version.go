package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hepwiki/wikibot/internal/vcs/git"
)

// Set with -ldflags "-X main.Version=... -X main.Commit=...".
var (
	Version = "dev"
	Commit  = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		v := Version
		if Commit != "" {
			v += " (" + Commit + ")"
		}
		fmt.Printf("wikibot %s %s/%s %s\n", v, runtime.GOOS, runtime.GOARCH, runtime.Version())
		if gv, err := git.Version(); err == nil {
			fmt.Println("git", gv)
		} else {
			fmt.Println("git: not found")
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
