package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ParamsEvent reports that the watched params file changed on disk.
type ParamsEvent struct {
	Path  string
	Error error
}

// ParamsWatcher monitors one params file for outside edits so the launcher
// can offer to reload it. The containing directory is watched because many
// editors replace the file on save.
type ParamsWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	events   chan ParamsEvent
	debounce time.Duration
}

// NewParamsWatcher creates a watcher for the given file.
func NewParamsWatcher(path string) (*ParamsWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("resolve params path %q: %w", path, err)
	}
	return &ParamsWatcher{
		path:     abs,
		watcher:  fsWatcher,
		events:   make(chan ParamsEvent, 10),
		debounce: 100 * time.Millisecond,
	}, nil
}

// Events returns the channel receiving change notifications.
func (w *ParamsWatcher) Events() <-chan ParamsEvent {
	return w.events
}

// Start begins watching. Cancel ctx or call Stop to end it.
func (w *ParamsWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	go w.run(ctx)
	return nil
}

// Stop closes the underlying watcher. That ends the run loop, which in
// turn closes the event channel; only the run loop ever sends on it.
func (w *ParamsWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *ParamsWatcher) run(ctx context.Context) {
	defer close(w.events)

	var pending time.Time
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.Now()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.events <- ParamsEvent{Path: w.path, Error: err}:
			default:
			}

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < w.debounce {
				continue
			}
			pending = time.Time{}
			select {
			case w.events <- ParamsEvent{Path: w.path}:
			default:
				// Drop when the UI is behind; the next edit re-notifies.
			}
		}
	}
}
