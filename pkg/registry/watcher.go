package registry

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the registry when its file changes on disk. Reloads go
// through Registry.Reload, so a broken edit never replaces the active table.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger

	stabilityThreshold time.Duration
	done               chan struct{}
	debounceMu         sync.Mutex
	debounceTimer      *time.Timer
	stopOnce           sync.Once
}

// WatcherConfig holds configuration for the registry watcher
type WatcherConfig struct {
	// StabilityThreshold debounces rapid successive writes (editors, atomic
	// rename dances). Defaults to 200ms.
	StabilityThreshold time.Duration
}

// NewWatcher creates a watcher for the registry's backing file.
func NewWatcher(reg *Registry, cfg WatcherConfig, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if cfg.StabilityThreshold == 0 {
		cfg.StabilityThreshold = 200 * time.Millisecond
	}

	return &Watcher{
		registry:           reg,
		watcher:            fsw,
		logger:             logger.With().Str("component", "registry-watcher").Logger(),
		stabilityThreshold: cfg.StabilityThreshold,
		done:               make(chan struct{}),
	}, nil
}

// Start begins watching. The containing directory is watched rather than the
// file itself so rename-based atomic replaces are still observed.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.registry.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.registry.path).Msg("Registry watcher started")
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Info().Msg("Registry watcher stopped")
	return nil
}

func (w *Watcher) eventLoop() {
	target := filepath.Clean(w.registry.path)

	for {
		select {
		case <-w.done:
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
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
		}
		if err := w.registry.Reload(); err != nil {
			w.logger.Warn().Err(err).Msg("Registry reload failed after file change")
		}
	})
}
