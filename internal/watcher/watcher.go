// Package watcher reloads the configuration file when it changes on disk
// and applies the reloadable settings to the running process.
package watcher

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/config"
)

const debounceInterval = 500 * time.Millisecond

// ReloadCallback is called with every successfully reloaded configuration.
type ReloadCallback func(cfg *config.Config)

// Watcher monitors configuration files for changes.
type Watcher struct {
	mu       sync.Mutex
	watchers map[string]*fileWatcher // absolute path → watcher
	debounce time.Duration
	callback ReloadCallback
	logger   *zap.Logger
}

type fileWatcher struct {
	path        string
	fsWatcher   *fsnotify.Watcher
	cancel      chan struct{}
	lastContent []byte
	reloadMu    sync.Mutex
}

// New creates a new configuration watcher.
func New(logger *zap.Logger, callback ReloadCallback) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watchers: make(map[string]*fileWatcher),
		debounce: debounceInterval,
		callback: callback,
		logger:   logger,
	}
}

// Watch starts watching path. The parent directory is watched so that
// editors replacing the file by rename are noticed.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("reading %s: %w", abs, err)
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsW.Add(filepath.Dir(abs)); err != nil {
		fsW.Close()
		return err
	}

	fw := &fileWatcher{
		path:        abs,
		fsWatcher:   fsW,
		cancel:      make(chan struct{}),
		lastContent: content,
	}

	w.mu.Lock()
	if old, ok := w.watchers[abs]; ok {
		close(old.cancel)
		old.fsWatcher.Close()
	}
	w.watchers[abs] = fw
	w.mu.Unlock()

	go w.watchLoop(fw)
	w.logger.Info("Watching configuration", zap.String("path", abs))
	return nil
}

// Unwatch stops watching path.
func (w *Watcher) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	fw, ok := w.watchers[abs]
	if ok {
		delete(w.watchers, abs)
	}
	w.mu.Unlock()

	if ok {
		close(fw.cancel)
		fw.fsWatcher.Close()
	}
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop(fw *fileWatcher) {
	var timer *time.Timer

	for {
		select {
		case <-fw.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fw.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.reload(fw)
			})

		case err, ok := <-fw.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.String("path", fw.path), zap.Error(err))
		}
	}
}

// reload re-reads the file and notifies if its content changed. An invalid
// file is logged and the previous configuration stays in effect.
func (w *Watcher) reload(fw *fileWatcher) {
	fw.reloadMu.Lock()
	defer fw.reloadMu.Unlock()

	content, err := os.ReadFile(fw.path)
	if err != nil {
		w.logger.Warn("Config file unreadable", zap.String("path", fw.path), zap.Error(err))
		return
	}
	if bytes.Equal(content, fw.lastContent) {
		return
	}

	cfg, err := config.Reload(fw.path)
	if err != nil {
		w.logger.Error("Config reload rejected", zap.String("path", fw.path), zap.Error(err))
		return
	}
	fw.lastContent = content

	w.logger.Info("Configuration reloaded", zap.String("path", fw.path))
	if w.callback != nil {
		w.callback(cfg)
	}
}

// Shutdown stops all watchers.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.watchers))
	for p := range w.watchers {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	for _, p := range paths {
		w.Unwatch(p)
	}
}
