package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for more writes before reloading.
const DefaultDebounce = 500 * time.Millisecond

// Reload is the result of re-reading a watched config file.
type Reload struct {
	Path   string
	Config *Config
	Err    error
}

// Watcher reloads a config file when its content changes.
type Watcher struct {
	path     string
	debounce time.Duration
	load     func(path string) (*Config, error)
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   bool

	lastHash [sha256.Size]byte
	reloads  chan Reload
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce delay.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLoadFunc replaces how the file is turned into a Config. The default is
// LoadFromFile followed by Validate.
func WithLoadFunc(load func(path string) (*Config, error)) WatcherOption {
	return func(w *Watcher) {
		if load != nil {
			w.load = load
		}
	}
}

// NewWatcher creates a watcher for a single config file.
func NewWatcher(path string, logger *slog.Logger, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		path:     abs,
		debounce: DefaultDebounce,
		load:     loadAndValidate,
		watcher:  fsw,
		logger:   logger,
		reloads:  make(chan Reload, 1),
	}
	for _, opt := range opts {
		opt(w)
	}

	if data, err := os.ReadFile(abs); err == nil {
		w.lastHash = sha256.Sum256(data)
	}

	return w, nil
}

func loadAndValidate(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Reloads returns the channel of reload results. It is closed when the watcher stops.
func (w *Watcher) Reloads() <-chan Reload {
	return w.reloads
}

// Start begins watching. The parent directory is watched so that editors that
// replace the file on save are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Config watcher started",
		"path", w.path,
		"debounce", w.debounce)

	return nil
}

// Stop stops the watcher.
// The reloads channel is closed by processEvents when it exits.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// processEvents handles fsnotify events with debouncing.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.reloads)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Config watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	w.pendingMu.Lock()
	w.pending = true
	w.pendingMu.Unlock()

	w.logger.Debug("Config change detected", "path", w.path, "op", event.Op.String())
}

// flushPending reloads the file once per debounce window, skipping writes that
// leave the content unchanged.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if !w.pending {
		w.pendingMu.Unlock()
		return
	}
	w.pending = false
	w.pendingMu.Unlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("Failed to read config for change check", "path", w.path, "error", err)
		return
	}
	hash := sha256.Sum256(data)
	if bytes.Equal(hash[:], w.lastHash[:]) {
		return
	}
	w.lastHash = hash

	cfg, err := w.load(w.path)
	reload := Reload{Path: w.path, Config: cfg, Err: err}

	select {
	case w.reloads <- reload:
	case <-ctx.Done():
	}
}
