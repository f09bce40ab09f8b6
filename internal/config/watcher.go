package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// SettingsWatcher reloads a SettingsStore when its file is edited outside
// the daemon.
type SettingsWatcher struct {
	store    *SettingsStore
	watcher  *fsnotify.Watcher
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}

	mu           sync.Mutex
	pendingTimer *time.Timer
}

// WatchSettings watches the directory holding the store's file, since
// editors and Update replace the file by rename.
func WatchSettings(store *SettingsStore, debounce time.Duration) (*SettingsWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	dir := filepath.Dir(store.Path())
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	w := &SettingsWatcher{
		store:    store,
		watcher:  fsWatcher,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.run()
	slog.Debug("settings watcher started", "dir", dir)
	return w, nil
}

func (w *SettingsWatcher) run() {
	defer close(w.doneCh)
	target := filepath.Clean(w.store.Path())
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.triggerReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("settings watcher error", "error", err)
		}
	}
}

func (w *SettingsWatcher) triggerReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.pendingTimer = nil
		w.mu.Unlock()

		if _, err := w.store.Reload(); err != nil {
			slog.Warn("settings reload failed", "path", w.store.Path(), "error", err)
		}
	})
}

// Stop ends the watch and cancels a pending reload.
func (w *SettingsWatcher) Stop() error {
	close(w.stopCh)
	w.mu.Lock()
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.mu.Unlock()
	err := w.watcher.Close()
	<-w.doneCh
	return err
}
