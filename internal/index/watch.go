package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDebounce is how long CURRENT must be quiet before a reload
var WatchDebounce = 200 * time.Millisecond

// Reload loads the store's current snapshot and publishes it when its
// version differs from the served one. It reports whether a swap happened.
func Reload(store *Store, idx *Index) (bool, error) {
	version, err := store.CurrentVersion()
	if err != nil {
		return false, err
	}
	if version == idx.Snapshot().Version() {
		return false, nil
	}
	snap, err := store.Load(version)
	if err != nil {
		return false, err
	}
	idx.Publish(snap)
	return true, nil
}

// Watch reloads the index whenever the store's CURRENT pointer changes.
// It blocks until ctx is done.
func Watch(ctx context.Context, store *Store, idx *Index, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// CURRENT is replaced by rename, so watch the directory
	if err := w.Add(store.Root()); err != nil {
		return fmt.Errorf("watch %s: %w", store.Root(), err)
	}
	logger.Info("Watching snapshot directory", "dir", store.Root())

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != currentFile {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(WatchDebounce)
			} else {
				timer.Reset(WatchDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			swapped, err := Reload(store, idx)
			switch {
			case errors.Is(err, ErrNoSnapshot):
				logger.Warn("Snapshot pointer removed, keeping current snapshot")
			case err != nil:
				logger.Error("Failed to reload snapshot", "error", err)
			case swapped:
				snap := idx.Snapshot()
				logger.Info("Snapshot swapped", "version", snap.Version(), "chunks", snap.Len())
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("Snapshot watcher error", "error", err)
		}
	}
}
