package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the live settings. The UI or the file watcher may replace them
// at any time; readers take a Snapshot and never observe later mutations.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a Store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg.Clone())
	return s
}

// Snapshot returns a private copy of the current settings.
func (s *Store) Snapshot() *Config {
	return s.current.Load().Clone()
}

// Set replaces the current settings.
func (s *Store) Set(cfg *Config) {
	s.current.Store(cfg.Clone())
}

// Watcher polls a config file and pushes valid changes into a Store.
// Invalid edits are logged and ignored; the previous settings stay active.
type Watcher struct {
	path     string
	interval time.Duration
	store    *Store
	onChange func(old, new *Config)
	log      *slog.Logger

	done     chan struct{}
	stopOnce sync.Once

	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 2 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOnChange registers a callback invoked after each accepted reload.
func WithOnChange(fn func(old, new *Config)) WatcherOption {
	return func(w *Watcher) { w.onChange = fn }
}

// NewWatcher records the file's current state and starts polling in a
// background goroutine. The store is not modified by the initial read.
func NewWatcher(path string, store *Store, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 2 * time.Second,
		store:    store,
		log:      slog.With("component", "config"),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.lastMtime = info.ModTime()
	w.lastHash = sha256.Sum256(data)

	go w.poll()
	return w, nil
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file when its mtime and content hash changed.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("cannot stat config file", "path", w.path, "err", err)
		return
	}
	if info.ModTime().Equal(w.lastMtime) {
		return
	}
	w.lastMtime = info.ModTime()

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Warn("cannot read config file", "path", w.path, "err", err)
		return
	}
	hash := sha256.Sum256(data)
	if hash == w.lastHash {
		return
	}

	cfg, err := Parse(data)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		w.log.Warn("ignoring invalid config change", "path", w.path, "err", err)
		return
	}
	w.lastHash = hash

	old := w.store.Snapshot()
	w.store.Set(cfg)
	w.log.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg.Clone())
	}
}
