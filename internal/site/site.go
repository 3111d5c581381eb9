// Package site drives the GitBook command line tool.
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBinary is looked up in PATH.
const DefaultBinary = "gitbook"

// ExcerptLines caps the build log carried by a BuildError.
const ExcerptLines = 200

// ErrInit is returned when gitbook init or install fails. The site cannot
// be built at all until a human intervenes.
var ErrInit = errors.New("gitbook init failed")

// BuildError reports a failed gitbook build.
type BuildError struct {
	Dir string
	// Log is the tail of the build output.
	Log string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("gitbook build failed in %s", e.Dir)
}

// Site runs gitbook commands.
type Site struct {
	Binary string
	Logger *slog.Logger
}

// New returns a Site using binary, or DefaultBinary when empty.
func New(binary string, logger *slog.Logger) *Site {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Site{Binary: binary, Logger: logger}
}

func (s *Site) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, s.Binary, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// Initialized reports whether gitbook plugins were installed in dir.
func Initialized(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "node_modules"))
	return err == nil
}

// EnsureInitialized runs gitbook init and install unless dir already has
// node_modules.
func (s *Site) EnsureInitialized(ctx context.Context, dir string) error {
	if Initialized(dir) {
		return nil
	}
	s.Logger.Info("initiating gitbook", "dir", dir)
	for _, step := range []string{"init", "install"} {
		out, err := s.run(ctx, dir, step)
		if err != nil {
			s.Logger.Error("gitbook step failed", "step", step, "dir", dir, "output", out)
			return fmt.Errorf("%w: %s in %s: %v\n%s", ErrInit, step, dir, err, out)
		}
	}
	return nil
}

// Build runs gitbook build in dir. ok is false with the log excerpt when
// the build itself fails; err is only set when the site could not be
// initialized or the binary could not be started.
func (s *Site) Build(ctx context.Context, dir string) (ok bool, log string, err error) {
	if err := s.EnsureInitialized(ctx, dir); err != nil {
		return false, "", err
	}

	out, err := s.run(ctx, dir, "build")
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return false, "", fmt.Errorf("failed to run %s: %w", s.Binary, err)
		}
		s.Logger.Warn("gitbook build failed", "dir", dir, "exit", exitErr.ExitCode())
		return false, Tail(out, ExcerptLines), nil
	}
	return true, "", nil
}

// Verify is Build returning a *BuildError on failure.
func (s *Site) Verify(ctx context.Context, dir string) error {
	ok, log, err := s.Build(ctx, dir)
	if err != nil {
		return err
	}
	if !ok {
		return &BuildError{Dir: dir, Log: log}
	}
	return nil
}

// Serve runs gitbook serve in the foreground until it exits or ctx is done.
func (s *Site) Serve(ctx context.Context, dir string, port int, out io.Writer) error {
	cmd := exec.CommandContext(ctx, s.Binary, "serve", "--port", strconv.Itoa(port))
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	s.Logger.Info("serving gitbook", "dir", dir, "port", port)
	return cmd.Run()
}

// Tail returns the last n lines of text.
func Tail(text string, n int) string {
	text = strings.TrimRight(text, "\n")
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
