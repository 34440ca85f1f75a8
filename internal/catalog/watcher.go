package catalog

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchlistChangeCallback is called with the reloaded watchlist after the
// file changes settle
type WatchlistChangeCallback func(wl *Watchlist)

// WatchlistWatcher monitors the watchlist file and hot-reloads it. Editors
// tend to emit bursts of writes (or rename-replace), so events are debounced
// before reloading.
type WatchlistWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback WatchlistChangeCallback
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
}

// NewWatchlistWatcher creates a watcher for the given watchlist file
func NewWatchlistWatcher(path string, callback WatchlistChangeCallback) (*WatchlistWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: rename-replace saves would
	// otherwise drop the watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &WatchlistWatcher{
		watcher:  watcher,
		path:     path,
		callback: callback,
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start begins watching for file changes
func (w *WatchlistWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("watchlist watcher: %v", err)
			}
		}
	}()
}

// Stop stops watching for file changes
func (w *WatchlistWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *WatchlistWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *WatchlistWatcher) reload() {
	wl, err := LoadWatchlist(w.path)
	if err != nil {
		log.Printf("reloading watchlist: %v", err)
		return
	}
	w.callback(wl)
}
