// Package watch reloads the workspace config when it changes on disk.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"plantguard/internal/config"
	"plantguard/internal/logging"
)

// ReloadFunc receives each successfully loaded and validated config.
type ReloadFunc func(cfg *config.Config)

// ConfigWatcher watches a config file's directory and reloads the file after
// writes settle. Invalid configs are logged and skipped.
type ConfigWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	path        string
	onReload    ReloadFunc
	pending     time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// Stats counts watcher activity.
type Stats struct {
	Events     int
	Reloads    int
	Errors     int
	LastReload time.Time
}

// NewConfigWatcher creates a watcher for the config file at path.
func NewConfigWatcher(path string, onReload ReloadFunc) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	return &ConfigWatcher{
		watcher:     w,
		path:        abs,
		onReload:    onReload,
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. It does not block.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return nil
	}
	cw.running = true
	cw.mu.Unlock()

	// Editors replace files on save, so watch the directory rather than the file.
	dir := filepath.Dir(cw.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.WatchWarn("failed to create config dir %s: %v", dir, err)
	}
	if err := cw.watcher.Add(dir); err != nil {
		cw.mu.Lock()
		cw.running = false
		cw.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Watch("watching %s", cw.path)

	go cw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (cw *ConfigWatcher) Stop() {
	cw.mu.Lock()
	wasRunning := cw.running
	cw.running = false
	cw.mu.Unlock()

	if wasRunning {
		close(cw.stopCh)
		<-cw.doneCh
	}
	if err := cw.watcher.Close(); err != nil {
		logging.WatchWarn("error closing watcher: %v", err)
	}
	logging.WatchDebug("stopped")
}

// Stats returns a snapshot of watcher activity.
func (cw *ConfigWatcher) Stats() Stats {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.stats
}

func (cw *ConfigWatcher) run(ctx context.Context) {
	defer close(cw.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchWarn("watcher error: %v", err)
			cw.mu.Lock()
			cw.stats.Errors++
			cw.mu.Unlock()

		case <-ticker.C:
			cw.flush()
		}
	}
}

func (cw *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != cw.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	logging.WatchDebug("%s on %s", event.Op, event.Name)

	cw.mu.Lock()
	cw.stats.Events++
	cw.pending = time.Now()
	cw.mu.Unlock()
}

// flush reloads once the last event is older than the debounce window.
func (cw *ConfigWatcher) flush() {
	cw.mu.Lock()
	if cw.pending.IsZero() || time.Since(cw.pending) < cw.debounceDur {
		cw.mu.Unlock()
		return
	}
	cw.pending = time.Time{}
	cw.mu.Unlock()

	cfg, err := config.Load(cw.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logging.WatchWarn("ignoring config change: %v", err)
		cw.mu.Lock()
		cw.stats.Errors++
		cw.mu.Unlock()
		return
	}

	cw.mu.Lock()
	cw.stats.Reloads++
	cw.stats.LastReload = time.Now()
	cw.mu.Unlock()

	logging.Watch("config reloaded from %s", cw.path)
	if cw.onReload != nil {
		cw.onReload(cfg)
	}
}
