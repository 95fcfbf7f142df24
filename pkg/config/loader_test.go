package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Load(t *testing.T) {
	t.Run("Should load default configuration when no sources provided", func(t *testing.T) {
		svc := NewService()
		cfg, err := svc.Load(context.Background())
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, "development", cfg.Environment)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("Should apply sources in precedence order", func(t *testing.T) {
		svc := NewService()
		source1 := &mockSource{
			data:       map[string]any{"environment": "production"},
			sourceType: SourceFile,
		}
		source2 := &mockSource{
			data:       map[string]any{"log_level": "debug"},
			sourceType: SourceOverlay,
		}

		cfg, err := svc.Load(context.Background(), source1, source2)
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.Environment)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("Should validate configuration after loading", func(t *testing.T) {
		svc := NewService()
		source := &mockSource{
			data:       map[string]any{"environment": "not-a-real-env"},
			sourceType: SourceFile,
		}
		cfg, err := svc.Load(context.Background(), source)
		require.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("Should handle nil sources gracefully", func(t *testing.T) {
		svc := NewService()
		validSource := &mockSource{
			data:       map[string]any{"environment": "production"},
			sourceType: SourceOverlay,
		}
		cfg, err := svc.Load(context.Background(), nil, validSource, nil)
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.Environment)
	})

	t.Run("Should handle source loading errors", func(t *testing.T) {
		svc := NewService()
		source := &mockSource{loadErr: assert.AnError, sourceType: SourceOverlay}
		cfg, err := svc.Load(context.Background(), source)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load from source")
		assert.Nil(t, cfg)
	})
}

func TestService_Validate(t *testing.T) {
	t.Run("Should accept a valid configuration", func(t *testing.T) {
		assert.NoError(t, NewService().Validate(Default()))
	})

	t.Run("Should reject a nil configuration", func(t *testing.T) {
		err := NewService().Validate(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration cannot be nil")
	})

	t.Run("Should reject invalid struct tag validation", func(t *testing.T) {
		cfg := Default()
		cfg.Environment = ""
		err := NewService().Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")
	})
}

func TestService_GetSource(t *testing.T) {
	t.Run("Should track which source last contributed a key", func(t *testing.T) {
		svc := NewService()
		source := &mockSource{
			data:       map[string]any{"environment": "production"},
			sourceType: SourceOverlay,
		}
		_, err := svc.Load(context.Background(), source)
		require.NoError(t, err)
		assert.Equal(t, SourceOverlay, svc.GetSource("environment"))
		assert.Equal(t, SourceDefault, svc.GetSource("nonexistent"))
	})
}

func TestService_Watch(t *testing.T) {
	t.Run("Should accept watch callbacks", func(t *testing.T) {
		svc := NewService()
		called := false
		err := svc.Watch(context.Background(), func(*EngineConfig) { called = true })
		assert.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("Should reject a nil callback", func(t *testing.T) {
		svc := NewService()
		err := svc.Watch(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "callback cannot be nil")
	})
}

// mockSource is a test implementation of the Source interface.
type mockSource struct {
	data       map[string]any
	sourceType SourceType
	loadErr    error
}

func (m *mockSource) Load() (map[string]any, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data, nil
}

func (m *mockSource) Watch(_ context.Context, _ func()) error { return nil }
func (m *mockSource) Type() SourceType                         { return m.sourceType }
func (m *mockSource) Close() error                             { return nil }

func TestTransformEnvKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard nested key", "RESOLVER_SEARCH_LIMIT", "resolver.search_limit"},
		{"two part key", "CACHE_ROOT", "cache.root"},
		{"empty string", "", ""},
		{"double underscore", "FOO__BAR", "foo.bar"},
		{"leading underscore", "_FOO_BAR", "foo.bar"},
		{"trailing underscore", "FOO_BAR_", "foo.bar"},
		{"multiple consecutive underscores", "FOO___BAR", "foo.bar"},
		{"only underscores", "___", ""},
		{"preserves underscores in nested parts", "RESOLVER_FUZZY_MATCH_THRESHOLD", "resolver.fuzzy_match_threshold"},
		{"mixed case", "MiXeD_CaSe_VaR", "mixed.case_var"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, transformEnvKey(tt.input))
		})
	}
}
