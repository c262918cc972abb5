package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prequery/prequery-preprocess/internal/logger"
)

// defaultDebounce batches the burst of events an editor save produces.
const defaultDebounce = 300 * time.Millisecond

// watchAndRun calls run once, then again whenever one of paths or any .typ
// file next to them changes. It returns when ctx is cancelled.
func watchAndRun(ctx context.Context, paths []string, debounce time.Duration, run func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	files := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		// editors often replace files, so watch the directory rather than the file
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		dirs[dir] = true
		logger.Debug("watching %s", dir)
	}

	run(ctx)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, files) {
				continue
			}
			logger.Debug("%s: %s", event.Op, event.Name)
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher: %v", err)

		case <-timer.C:
			logger.Progress("watch", "change detected, running again")
			run(ctx)
		}
	}
}

// relevant reports whether an event should trigger a new run.
func relevant(event fsnotify.Event, files map[string]bool) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return files[name] || filepath.Ext(name) == ".typ"
}
