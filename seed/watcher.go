package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Store when files in its overlay directory change.
// Bursts of events are coalesced into one reload per debounce window.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration

	pendingMu sync.Mutex
	pending   bool

	reloads chan error
}

// NewWatcher creates a watcher for store's directory.
func NewWatcher(store *Store, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{
		store:    store,
		watcher:  fsw,
		debounce: debounce,
		reloads:  make(chan error, 8),
	}, nil
}

// Reloads reports the outcome of every reload. Slow readers miss results.
func (w *Watcher) Reloads() <-chan error {
	return w.reloads
}

// Start adds watches under the directory and processes events until ctx
// is done.
func (w *Watcher) Start(ctx context.Context) error {
	root := w.store.Dir()
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
	if err != nil {
		return err
	}

	go w.run(ctx)
	w.store.logger.Info("Seed watcher started", "dir", root, "debounce", w.debounce)
	return nil
}

// Stop releases the underlying watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
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
			if isSeedFile(event.Name) {
				w.pendingMu.Lock()
				w.pending = true
				w.pendingMu.Unlock()
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.store.logger.Error("Seed watcher error", "error", err)

		case <-ticker.C:
			w.pendingMu.Lock()
			due := w.pending
			w.pending = false
			w.pendingMu.Unlock()
			if !due {
				continue
			}

			err := w.store.Reload()
			if err != nil {
				w.store.logger.Warn("Seed reload failed, keeping previous data", "error", err)
			} else {
				w.store.logger.Info("Seed data reloaded", "dir", w.store.Dir())
			}
			select {
			case w.reloads <- err:
			default:
			}
		}
	}
}

func isSeedFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
