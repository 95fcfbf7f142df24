package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	globalMu      sync.Mutex
	globalManager *Manager
	initialized   atomic.Bool
)

// Initialize loads the process-wide configuration exactly once. Subsequent
// calls are ignored (they return nil, not an error) so that multiple
// components can each call Initialize defensively during startup without
// clobbering an already-loaded configuration.
func Initialize(ctx context.Context, svc Service, sources ...Source) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if initialized.Load() {
		return nil
	}
	m := NewManager(svc)
	if _, err := m.Load(ctx, sources...); err != nil {
		return fmt.Errorf("failed to initialize global config: %w", err)
	}
	globalManager = m
	initialized.Store(true)
	return nil
}

// Get returns the global configuration. Panics if Initialize has not been
// called, since every component that reaches for the global config assumes
// startup has already wired it.
func Get() *EngineConfig {
	globalMu.Lock()
	m := globalManager
	globalMu.Unlock()
	if m == nil {
		panic("config: Get called before Initialize")
	}
	return m.Get()
}

// OnChange registers a callback against the global configuration. Panics if
// Initialize has not been called.
func OnChange(callback func(*EngineConfig)) {
	globalMu.Lock()
	m := globalManager
	globalMu.Unlock()
	if m == nil {
		panic("config: OnChange called before Initialize")
	}
	m.OnChange(callback)
}

// Reload re-runs the global configuration's sources. Panics if Initialize
// has not been called.
func Reload(ctx context.Context) error {
	globalMu.Lock()
	m := globalManager
	globalMu.Unlock()
	if m == nil {
		panic("config: Reload called before Initialize")
	}
	return m.Reload(ctx)
}

// Close tears down the global configuration's watch loop. Idempotent, and a
// no-op if Initialize was never called.
func Close(ctx context.Context) error {
	globalMu.Lock()
	m := globalManager
	globalMu.Unlock()
	if m == nil {
		return nil
	}
	return m.Close(ctx)
}

// resetForTest clears global state so tests can exercise Initialize from a
// clean slate. Not exported; only this package's own tests call it.
func resetForTest() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalManager = nil
	initialized.Store(false)
}
