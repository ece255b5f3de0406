// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ErrNoConfigFile is returned by Watcher.Start when the manager was loaded
// without a config file.
var ErrNoConfigFile = errors.New("no config file to watch")

// Watcher reloads the manager's config file when it changes on disk and
// hands the new configuration to a callback.
//
// Rapid successive writes are coalesced into a single reload.
type Watcher struct {
	manager  *Manager
	onReload func(Config)

	watcher       *fsnotify.Watcher
	debounceDelay time.Duration
	logger        zerolog.Logger

	mu            sync.Mutex // protects debounceTimer
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for manager's config file.
func NewWatcher(manager *Manager, logger zerolog.Logger, onReload func(Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		manager:       manager,
		onReload:      onReload,
		watcher:       watcher,
		debounceDelay: 100 * time.Millisecond,
		logger:        logger.With().Str("component", "config.watcher").Logger(),
	}, nil
}

// WithDebounce overrides the delay between the last change and the reload.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounceDelay = d
	return w
}

// Start watches the config file until ctx is done. Run it in its own
// goroutine:
//
//	go watcher.Start(ctx)
func (w *Watcher) Start(ctx context.Context) error {
	path := w.manager.FilePath()
	if path == "" {
		_ = w.watcher.Close()
		return ErrNoConfigFile
	}

	// fsnotify loses single-file watches across editor renames, so watch the
	// directory and filter by name.
	dir := filepath.Dir(path)
	name := filepath.Base(path)

	if err := w.watcher.Add(dir); err != nil {
		w.logger.Error().Err(err).Str("dir", dir).Msg("Failed to watch config directory")
		_ = w.watcher.Close()
		return err
	}

	w.logger.Debug().Str("file", path).Dur("debounce", w.debounceDelay).Msg("Watching config file")

	defer func() {
		w.stopTimer()
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Error closing watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Debug().Str("op", event.Op.String()).Msg("Config file changed")
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := w.manager.Reload()
	if err != nil {
		// The previous configuration stays in effect.
		w.logger.Error().Err(err).Msg("Failed to reload config")
		return
	}
	w.logger.Info().
		Dur("cancel_timeout", cfg.Jobs.CancelTimeout).
		Dur("progress_interval", cfg.Jobs.ProgressInterval).
		Msg("Config reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
}
