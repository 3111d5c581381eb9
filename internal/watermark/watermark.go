// Package watermark persists the last commit known to build cleanly with
// consistent tables of contents.
package watermark

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/hepwiki/wikibot/internal/vcs"
)

// DefaultFile is the watermark file name, relative to the bot's state dir.
const DefaultFile = ".commit_success"

// ErrNoWatermark is returned when nothing was persisted yet.
var ErrNoWatermark = errors.New("no success watermark recorded")

// Store reads and writes the watermark file. The file holds the commit id
// on its first line and nothing else is interpreted.
type Store struct {
	Fs   afero.Fs
	Path string
}

// New returns a store backed by the OS filesystem.
func New(path string) *Store {
	if path == "" {
		path = DefaultFile
	}
	return &Store{Fs: afero.NewOsFs(), Path: path}
}

// Read returns the persisted commit.
func (s *Store) Read() (vcs.CommitID, error) {
	data, err := afero.ReadFile(s.Fs, s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoWatermark
		}
		return "", fmt.Errorf("failed to read watermark: %w", err)
	}

	first, _, _ := strings.Cut(string(data), "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return "", ErrNoWatermark
	}
	return vcs.CommitID(first), nil
}

// Write replaces the persisted commit. The file is written next to its
// final location and renamed over it so a crash never leaves it empty.
func (s *Store) Write(id vcs.CommitID) error {
	if id == "" {
		return errors.New("refusing to persist an empty watermark")
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := s.Fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create watermark dir: %w", err)
		}
	}

	tmp := s.Path + ".tmp"
	if err := afero.WriteFile(s.Fs, tmp, []byte(id.String()), 0644); err != nil {
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	if err := s.Fs.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("failed to replace watermark: %w", err)
	}
	return nil
}
