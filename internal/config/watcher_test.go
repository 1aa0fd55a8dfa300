package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParamsWatcherReportsWrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "params.json")
	w, err := NewParamsWatcher(path)
	if err != nil {
		t.Fatalf("NewParamsWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{"threads": 4}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-w.Events():
		if ev.Error != nil {
			t.Fatalf("unexpected watcher error: %v", ev.Error)
		}
		if ev.Path != w.path {
			t.Fatalf("unexpected event path: %q", ev.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no event after write")
	}
}

func TestParamsWatcherStopClosesEvents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "params.json")
	w, err := NewParamsWatcher(path)
	if err != nil {
		t.Fatalf("NewParamsWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// The run loop owns the channel: it closes once the loop drains,
	// never while a send could still be in flight.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-w.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("events channel not closed after Stop")
		}
	}
}
