// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xlog "github.com/ManuGH/angus/internal/log"
)

const reloadDebounce = 200 * time.Millisecond

// Holder keeps the current configuration and reloads it when its file changes.
type Holder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	logger  zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	listenMu  sync.RWMutex
	listeners []chan<- AppConfig
}

// NewHolder creates a holder seeded with initial.
func NewHolder(initial AppConfig, loader *Loader) *Holder {
	return &Holder{
		current: initial,
		loader:  loader,
		logger:  xlog.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads the configuration again. On failure the previous
// configuration stays in place.
func (h *Holder) Reload(_ context.Context) error {
	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("configuration reload failed")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.mu.Unlock()

	h.logChanges(prev, next)
	h.notify(next)
	h.logger.Info().Str("event", "config.reload_success").Msg("configuration reloaded")
	return nil
}

// Start watches the configuration file until ctx ends or Stop is called.
// Without a file it does nothing.
func (h *Holder) Start(ctx context.Context) error {
	path := h.Get().Path
	if path == "" {
		h.logger.Debug().Str("event", "config.watcher_disabled").Msg("no configuration file to watch")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched so atomic replacements are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.watcher = watcher
	h.done = make(chan struct{})
	h.wg.Add(1)
	go h.watchLoop(ctx, filepath.Clean(path))

	h.logger.Info().Str("event", "config.watcher_started").Str("path", path).Msg("watching configuration file")
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, path string) {
	defer h.wg.Done()
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().Str("op", event.Op.String()).Msg("configuration file changed")
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			_ = h.Reload(ctx)

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str("event", "config.watcher_error").Msg("configuration watcher error")
		}
	}
}

// Stop ends the watcher started by Start and waits for it.
func (h *Holder) Stop() {
	if h.watcher == nil {
		return
	}
	close(h.done)
	h.wg.Wait()
	_ = h.watcher.Close()
	h.watcher = nil
}

// RegisterListener makes ch receive every reloaded configuration. Sends do
// not block: a full channel misses the update.
func (h *Holder) RegisterListener(ch chan<- AppConfig) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notify(cfg AppConfig) {
	h.listenMu.RLock()
	defer h.listenMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Str("event", "config.listener_skip").Msg("listener channel full, update skipped")
		}
	}
}

func (h *Holder) logChanges(prev, next AppConfig) {
	if prev.ClientID != next.ClientID || prev.AccessToken != next.AccessToken {
		h.logger.Info().
			Str("old_client_id", prev.ClientID).
			Str("new_client_id", next.ClientID).
			Msg("config changed: credential")
	}
	if prev.DefaultRoot != next.DefaultRoot {
		h.logger.Info().
			Str("old", prev.DefaultRoot).
			Str("new", next.DefaultRoot).
			Msg("config changed: default_root")
	}
	if prev.Timeout != next.Timeout {
		h.logger.Info().
			Dur("old", prev.Timeout).
			Dur("new", next.Timeout).
			Msg("config changed: timeout")
	}
}
