package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// SeedWatcher reloads the seed file when it changes on disk
type SeedWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	current  map[string][]string
	mu       sync.RWMutex
	onChange []func(map[string][]string)
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	debounce time.Duration
}

// NewSeedWatcher loads the seed file and prepares a watcher for it
func NewSeedWatcher(path string, logger *zap.Logger) (*SeedWatcher, error) {
	seeds, err := LoadSeeds(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial seeds: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory so editors that save by rename are still seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch seed directory: %w", err)
	}

	return &SeedWatcher{
		path:     path,
		watcher:  watcher,
		current:  seeds,
		logger:   logger,
		stopCh:   make(chan struct{}),
		debounce: 100 * time.Millisecond,
	}, nil
}

// Start begins watching for seed file changes
func (w *SeedWatcher) Start() {
	go w.watchLoop()
	w.logger.Info("Seed watcher started", zap.String("path", w.path))
}

// Stop stops watching. It is safe to call more than once.
func (w *SeedWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		w.logger.Info("Seed watcher stopped")
	})
}

// OnChange registers a callback that receives the reloaded seed set
func (w *SeedWatcher) OnChange(handler func(map[string][]string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

// Current returns the last successfully loaded seed set
func (w *SeedWatcher) Current() map[string][]string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *SeedWatcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Seed watcher error", zap.Error(err))
		}
	}
}

func (w *SeedWatcher) reload() {
	seeds, err := LoadSeeds(w.path)
	if err != nil {
		w.logger.Error("Failed to reload seeds, keeping current set", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = seeds
	handlers := make([]func(map[string][]string), len(w.onChange))
	copy(handlers, w.onChange)
	w.mu.Unlock()

	w.logger.Info("Seed file reloaded", zap.Int("topics", len(seeds)))
	for _, handler := range handlers {
		handler(seeds)
	}
}
