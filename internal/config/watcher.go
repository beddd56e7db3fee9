package config

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloadable receives the merged config on every successful reload.
type Reloadable func(Config)

// WatchFile watches cfg.ConfigFile for changes and invokes onReload with a
// freshly-loaded Config on every write. A missing or unwatchable file is
// not fatal: the gateway keeps running on its last-loaded configuration.
func WatchFile(ctx context.Context, path string, onReload Reloadable) {
	if path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("config: fsnotify unavailable, hot-reload disabled: %v", err)
		return
	}
	if err := watcher.Add(path); err != nil {
		log.Printf("config: cannot watch %s, hot-reload disabled: %v", path, err)
		watcher.Close()
		return
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
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					time.Sleep(50 * time.Millisecond) // debounce partial writes
					onReload(Load())
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config: watcher error: %v", err)
			}
		}
	}()
}
