package analysiscache

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/romdo/go-debounce"
)

// WatchInvalidator watches a workflows directory and invalidates the
// corresponding cache entry whenever a workflow file is rewritten — an
// optional companion to the mtime/hash fallback in Get, for long-running
// processes (a daemon, a watch-mode CLI loop) that want invalidation
// pushed to them instead of discovered lazily on the next Get.
type WatchInvalidator struct {
	cache       *Cache
	environment string
	fsw         *fsnotify.Watcher
	debounced   func(func())
	debCancel   func()
	done        chan struct{}
}

// WatchDebounce is the default coalescing window for rapid successive
// writes a host makes while re-saving a workflow (matches pkg/config's
// hot-reload default).
const WatchDebounce = 100 * time.Millisecond

// NewWatchInvalidator starts watching dir for workflow file writes,
// invalidating entries for environment as they occur.
func NewWatchInvalidator(cache *Cache, environment, dir string) (*WatchInvalidator, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	debounced, debCancel := debounce.New(WatchDebounce)
	w := &WatchInvalidator{
		cache: cache, environment: environment,
		fsw: fsw, debounced: debounced, debCancel: debCancel,
		done: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *WatchInvalidator) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				name := event.Name
				w.debounced(func() {
					_ = w.cache.Invalidate(context.Background(), w.environment, workflowNameFromPath(name))
				})
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close stops the watch loop and releases the underlying fsnotify handle.
func (w *WatchInvalidator) Close() error {
	w.debCancel()
	close(w.done)
	return w.fsw.Close()
}

func workflowNameFromPath(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	name := path[i+1:]
	if j := len(name) - len(".json"); j > 0 && name[j:] == ".json" {
		return name[:j]
	}
	return name
}
