// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-shiftsync.
//
// go-shiftsync is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
)

// ErrWatcherStopped is returned when the watcher has already been stopped.
var ErrWatcherStopped = errors.New("config watcher stopped")

// WatcherConfig contains configuration options for Watcher.
type WatcherConfig struct {
	// Path is the config file to watch.
	Path          string
	Logger        adapters.Logger
	DebounceDelay time.Duration // Default: 200ms
	// OnChange receives the reloaded configuration. Invalid files are
	// logged and skipped.
	OnChange func(*Config)
}

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	watcher       *fsnotify.Watcher
	path          string
	logger        adapters.Logger
	debounceDelay time.Duration
	onChange      func(*Config)

	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWatcher starts watching config.Path. The parent directory is watched
// so editors that replace the file by rename are still seen.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Path == "" {
		return nil, errors.New("config watcher: path is required")
	}
	if config.Logger == nil {
		config.Logger = adapters.NewNoOpLogger()
	}
	if config.DebounceDelay <= 0 {
		config.DebounceDelay = 200 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	path := filepath.Clean(config.Path)
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:       fw,
		path:          path,
		logger:        config.Logger,
		debounceDelay: config.DebounceDelay,
		onChange:      config.OnChange,
		stopChan:      make(chan struct{}),
	}
	w.wg.Add(1)
	go w.processEvents()

	w.logger.Info(context.Background(), "Watching config file",
		adapters.Field{Key: "path", Value: path})
	return w, nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error(context.Background(), "Config watcher error", adapters.ErrField(err))

		case <-w.stopChan:
			return
		}
	}
}

// schedule debounces bursts of events into a single reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	ctx := context.Background()
	v := New()
	v.SetConfigFile(w.path)
	if err := v.ReadInConfig(); err != nil {
		w.logger.Warn(ctx, "Config reload failed", adapters.ErrField(err))
		return
	}
	cfg, err := Load(v)
	if err != nil {
		w.logger.Warn(ctx, "Reloaded config is invalid", adapters.ErrField(err))
		return
	}

	w.logger.Info(ctx, "Config reloaded",
		adapters.Field{Key: "conflict_strategy", Value: string(cfg.Conflict.Strategy)},
		adapters.Field{Key: "heartbeat", Value: cfg.Clients.Heartbeat.String()})
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrWatcherStopped
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.stopChan)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
