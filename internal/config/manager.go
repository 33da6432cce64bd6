package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Manager serves settings snapshots and hot-reloads the backing file.
// Reloads swap the whole configuration atomically; in-flight turns keep
// the snapshot they acquired at turn entry.
type Manager struct {
	mu     sync.RWMutex
	cfg    *Config
	path   string
	logger *slog.Logger

	onReload []func(*Config)
}

// NewManager creates a manager around an already-loaded configuration.
func NewManager(cfg *Config, path string, logger *slog.Logger) *Manager {
	if cfg == nil {
		cfg = Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		path:   path,
		logger: logger.With("component", "config"),
	}
}

// Snapshot returns the current settings view for a turn.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return NewSnapshot(m.cfg)
}

// Replace installs a new configuration, typically from an admin PUT.
func (m *Manager) Replace(cfg *Config) {
	if cfg == nil {
		return
	}
	m.mu.Lock()
	m.cfg = cfg
	callbacks := append([]func(*Config){}, m.onReload...)
	m.mu.Unlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
}

// OnReload registers a callback invoked after each successful reload.
func (m *Manager) OnReload(cb func(*Config)) {
	if cb == nil {
		return
	}
	m.mu.Lock()
	m.onReload = append(m.onReload, cb)
	m.mu.Unlock()
}

// Watch hot-reloads the settings file until ctx is cancelled. Invalid
// updates are logged and skipped; the previous configuration stays
// active.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory; editors replace files rather than write
	// in place, which drops the watch on the file itself.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(m.path)
			if err != nil {
				m.logger.Warn("config reload rejected", "error", err)
				continue
			}
			m.Replace(cfg)
			m.logger.Info("config reloaded", "path", m.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("config watcher error", "error", err)
		}
	}
}
