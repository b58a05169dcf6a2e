package settings

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay gives editors time to finish writing before the file is read.
var settleDelay = 100 * time.Millisecond

// Watch re-applies path to st every time the file is written or replaced,
// until ctx is cancelled. Only options whose value changed are assigned, so
// untouched before-start options keep working after start. Reload failures
// are passed to onErr (which may be nil) and do not stop the watcher.
func Watch(ctx context.Context, st *Store, path string, onErr func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", path, err)
	}

	report := func(err error) {
		slog.Warn("config reload failed", "path", path, "error", err)
		if onErr != nil {
			onErr(err)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
					continue
				}

				time.Sleep(settleDelay)

				// Atomic saves replace the file; the watch has to be re-added.
				if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					if _, err := os.Stat(path); os.IsNotExist(err) {
						slog.Info("config file removed, keeping current settings", "path", path)
						continue
					}
					if err := watcher.Add(path); err != nil {
						report(err)
						continue
					}
				}

				if err := LoadFile(st, path); err != nil {
					report(err)
					continue
				}
				slog.Info("config reloaded", "path", path, "event", event.Op.String())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				report(err)
			}
		}
	}()

	return nil
}
