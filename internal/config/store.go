package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current configuration snapshot behind an atomic pointer.
// Readers always observe a complete snapshot; updates swap the whole value so
// no reader can see a half-applied configuration.
type Store struct {
	current atomic.Pointer[Config]

	mu   sync.Mutex
	subs []func(*Config)
}

// NewStore creates a Store seeded with the given snapshot.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Current returns the live snapshot. The returned value must be treated as
// read-only.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Swap validates and publishes a new snapshot, notifying subscribers. An
// invalid snapshot is rejected and the previous one stays in place.
func (s *Store) Swap(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.current.Store(cfg)

	s.mu.Lock()
	subs := make([]func(*Config), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
	return nil
}

// OnChange registers a callback invoked after every successful Swap.
func (s *Store) OnChange(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Watcher re-loads the configuration file whenever it changes on disk and
// swaps the result into the Store. Files that fail to load or validate are
// rejected; the previous snapshot stays live.
type Watcher struct {
	path   string
	store  *Store
	logger *slog.Logger
}

// NewWatcher creates a Watcher for the given config file path.
func NewWatcher(path string, store *Store, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:   path,
		store:  store,
		logger: logger.With(slog.String("component", "config_watcher")),
	}
}

// Run blocks until the context is cancelled, reloading the config on every
// write to the watched file. The parent directory is watched rather than the
// file itself so atomic save-by-rename editors still trigger reloads.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	w.logger.Info("watching configuration file", slog.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.ErrorContext(ctx, "config reload failed, keeping previous snapshot",
			slog.String("error", err.Error()),
		)
		return
	}
	if err := w.store.Swap(cfg); err != nil {
		w.logger.ErrorContext(ctx, "config reload rejected, keeping previous snapshot",
			slog.String("error", err.Error()),
		)
		return
	}
	w.logger.InfoContext(ctx, "configuration reloaded")
}
