package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/romdo/go-debounce"
)

// Manager is the stateful wrapper around Service: it holds the last loaded
// *EngineConfig, supports a hot-reload watch loop debounced against bursts
// of filesystem events, and notifies registered callbacks when a reload
// produces a materially different configuration.
type Manager struct {
	Service Service

	mu        sync.RWMutex
	current   *EngineConfig
	debounce  time.Duration
	sources   []Source
	callbacks []func(*EngineConfig)
	closed    bool
	cancel    context.CancelFunc
	debounced func(func())
	debCancel func()
}

// NewManager wraps svc (or a fresh NewService() if svc is nil) in a Manager
// with the default 100ms debounce window.
func NewManager(svc Service) *Manager {
	if svc == nil {
		svc = NewService()
	}
	return &Manager{Service: svc, debounce: 100 * time.Millisecond}
}

// SetDebounce overrides the debounce window used for hot-reload.
func (m *Manager) SetDebounce(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debounce = d
}

// Load composes sources through the wrapped Service, stores the result, and
// arranges to watch every source that supports Watch so future changes
// trigger a debounced Reload.
func (m *Manager) Load(ctx context.Context, sources ...Source) (*EngineConfig, error) {
	cfg, err := m.Service.Load(ctx, sources...)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.current = cfg
	m.sources = sources
	m.mu.Unlock()
	m.notify(cfg)
	m.startWatch(ctx)
	return cfg, nil
}

func (m *Manager) startWatch(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	watchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	debounced, debCancel := debounce.New(m.debounce)
	m.debounced = debounced
	m.debCancel = debCancel
	sources := m.sources
	m.mu.Unlock()

	for _, src := range sources {
		if src == nil {
			continue
		}
		_ = src.Watch(watchCtx, func() {
			m.debounced(func() {
				_ = m.Reload(watchCtx)
			})
		})
	}
}

// Get returns the currently loaded configuration, or nil if Load has not
// been called yet.
func (m *Manager) Get() *EngineConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reload re-runs Load against the sources from the last Load call,
// replacing the stored configuration only if it validates successfully and
// notifying callbacks only if the result differs from the prior value.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.RLock()
	sources := m.sources
	prev := m.current
	m.mu.RUnlock()

	cfg, err := m.Service.Load(ctx, sources...)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()

	if !configEqual(prev, cfg) {
		m.notify(cfg)
	}
	return nil
}

// OnChange registers a callback invoked every time Load or a successful
// Reload produces a new configuration.
func (m *Manager) OnChange(callback func(*EngineConfig)) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, callback)
	m.mu.Unlock()
}

func (m *Manager) notify(cfg *EngineConfig) {
	m.mu.RLock()
	callbacks := append([]func(*EngineConfig){}, m.callbacks...)
	m.mu.RUnlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
}

// Close stops the hot-reload watch loop. Safe to call more than once and
// safe to call before Load.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	if m.debCancel != nil {
		m.debCancel()
	}
	for _, src := range m.sources {
		if src != nil {
			_ = src.Close()
		}
	}
	return nil
}
