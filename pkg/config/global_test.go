package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalConfig(t *testing.T) {
	t.Run("Should panic when accessing uninitialized config", func(t *testing.T) {
		resetForTest()

		assert.Panics(t, func() { Get() })
		assert.Panics(t, func() { OnChange(func(*EngineConfig) {}) })
		assert.Panics(t, func() { _ = Reload(context.Background()) })
	})

	t.Run("Should initialize global config successfully", func(t *testing.T) {
		resetForTest()

		err := Initialize(context.Background(), nil, NewDefaultProvider())
		require.NoError(t, err)

		cfg := Get()
		assert.NotNil(t, cfg)
		assert.Equal(t, "development", cfg.Environment)
	})

	t.Run("Should handle initialization errors", func(t *testing.T) {
		resetForTest()

		err := Initialize(context.Background(), nil, &mockFailingSource{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize global config")
	})

	t.Run("Should only initialize once", func(t *testing.T) {
		resetForTest()

		err1 := Initialize(context.Background(), nil, NewDefaultProvider())
		require.NoError(t, err1)
		cfg1 := Get()

		err2 := Initialize(context.Background(), nil, NewOverlayProvider(map[string]any{"environment": "production"}))
		require.NoError(t, err2)
		cfg2 := Get()

		assert.Equal(t, cfg1.Environment, cfg2.Environment)
		assert.Equal(t, "development", cfg2.Environment)
	})

	t.Run("Should support callbacks for config changes", func(t *testing.T) {
		resetForTest()

		err := Initialize(context.Background(), nil, NewDefaultProvider())
		require.NoError(t, err)

		var callbackCalled bool
		OnChange(func(cfg *EngineConfig) {
			callbackCalled = true
			assert.NotNil(t, cfg)
		})

		require.NoError(t, Reload(context.Background()))
		assert.False(t, callbackCalled, "callback should not fire if config hasn't changed")
	})

	t.Run("Should close global config cleanly", func(t *testing.T) {
		resetForTest()

		require.NoError(t, Initialize(context.Background(), nil, NewDefaultProvider()))
		assert.NoError(t, Close(context.Background()))
		assert.NoError(t, Close(context.Background()))
	})

	t.Run("Should allow re-initialization after close", func(t *testing.T) {
		resetForTest()

		require.NoError(t, Initialize(context.Background(), nil, NewDefaultProvider()))
		require.NoError(t, Close(context.Background()))

		resetForTest()
		require.NoError(t, Initialize(context.Background(), nil, NewDefaultProvider()))
		assert.NotNil(t, Get())
	})
}

type mockFailingSource struct{}

func (m *mockFailingSource) Load() (map[string]any, error) { return nil, assert.AnError }
func (m *mockFailingSource) Watch(_ context.Context, _ func()) error { return nil }
func (m *mockFailingSource) Type() SourceType                        { return "mock" }
func (m *mockFailingSource) Close() error                            { return nil }
