// Package builder runs the work-area worker: a clone of the wiki served by
// gitbook. The monitor pulls the work area after every successful sync,
// and gitbook serve picks the change up by itself.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hepwiki/wikibot/internal/logging"
	"github.com/hepwiki/wikibot/internal/supervisor"
	"github.com/hepwiki/wikibot/internal/vcs/git"
)

// DefaultPort is the port gitbook serves on.
const DefaultPort = 3001

// Server is the part of *site.Site the builder needs.
type Server interface {
	EnsureInitialized(ctx context.Context, dir string) error
	Serve(ctx context.Context, dir string, port int, out io.Writer) error
}

// Config holds builder settings.
type Config struct {
	// Dir is the work area checkout.
	Dir string

	// Remote is cloned into Dir when it is missing.
	Remote string
	Branch string
	SSHKey string

	// Port for gitbook serve (default: DefaultPort)
	Port int

	// LogFile receives the serve output, rotated by lumberjack.
	LogFile string

	// TailLines of serve output become the error when serve stops.
	TailLines int

	Logger *slog.Logger
}

// Builder keeps the served site running.
type Builder struct {
	site   Server
	config Config
}

// New creates a builder.
func New(site Server, config Config) *Builder {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.TailLines <= 0 {
		config.TailLines = supervisor.DefaultTailLines
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.Logger = config.Logger.With("component", "builder")
	return &Builder{site: site, config: config}
}

// Run prepares the work area and serves it. It only returns on failure
// or when ctx is done; a serve that exits on its own is an error carrying
// the tail of its output.
func (b *Builder) Run(ctx context.Context) error {
	if _, cloned, err := git.OpenOrClone(ctx, b.config.Remote, b.config.Dir,
		git.WithBranch(b.config.Branch), git.WithSSHKey(b.config.SSHKey)); err != nil {
		return fmt.Errorf("failed to prepare work area %s: %w", b.config.Dir, err)
	} else if cloned {
		b.config.Logger.Info("work area cloned", "dir", b.config.Dir)
	}

	if err := b.site.EnsureInitialized(ctx, b.config.Dir); err != nil {
		return err
	}

	tail := supervisor.NewTail(b.config.TailLines)
	var out io.Writer = tail
	if b.config.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(b.config.LogFile), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		file := logging.RotatingFile(b.config.LogFile, 0, 0, 0)
		defer file.Close()
		out = io.MultiWriter(file, tail)
	}

	err := b.site.Serve(ctx, b.config.Dir, b.config.Port, out)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = errors.New("gitbook serve exited")
	}
	return fmt.Errorf("%w\n%s", err, tail.String())
}
