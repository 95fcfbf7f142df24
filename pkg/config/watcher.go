package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher wraps fsnotify to invoke registered callbacks whenever a watched
// file changes, and to stop cleanly when its context is canceled or Close is
// called.
type Watcher struct {
	fsw       *fsnotify.Watcher
	mu        sync.Mutex
	callbacks []func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher creates an fsnotify-backed Watcher with no files registered yet.
func NewWatcher() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{fsw: fsw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

// OnChange registers a callback invoked (possibly more than once per write,
// per fsnotify's own delivery semantics) whenever a watched file changes.
func (w *Watcher) OnChange(callback func()) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	w.mu.Unlock()
}

// Watch adds path to the set of files observed for writes. The supplied
// context governs how long the watch subscription for this call remains
// live; canceling it stops delivering events for that Watch call but does
// not close the underlying fsnotify watcher.
func (w *Watcher) Watch(ctx context.Context, path string) error {
	if err := w.fsw.Add(path); err != nil {
		return fmt.Errorf("failed to watch %q: %w", path, err)
	}
	go func() {
		<-ctx.Done()
		_ = w.fsw.Remove(path)
	}()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.fire()
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

func (w *Watcher) fire() {
	w.mu.Lock()
	callbacks := append([]func(){}, w.callbacks...)
	w.mu.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

// Close stops the watcher's event loop and releases the underlying
// fsnotify handle. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}
