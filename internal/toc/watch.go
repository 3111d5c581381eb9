package toc

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hepwiki/wikibot/internal/langtree"
)

// DefaultDebounce batches the burst of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher calls back whenever either SUMMARY.md under root changes.
// Directories are watched instead of the files so that editors which
// save by rename are still seen.
type Watcher struct {
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for the language roots below root.
func NewWatcher(root string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	for _, l := range langtree.Langs {
		dir := filepath.Join(root, l.Dir())
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	return &Watcher{root: root, debounce: debounce, watcher: watcher}, nil
}

// Run blocks until ctx is cancelled, calling fn after every quiet period
// that follows a change to a table of contents. fn runs on the caller's
// goroutine, never concurrently with itself.
func (w *Watcher) Run(ctx context.Context, fn func()) error {
	defer w.watcher.Close()

	// fire is nil while no change is pending
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != langtree.TOCFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			fire = time.After(w.debounce)

		case <-fire:
			fire = nil
			fn()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}
