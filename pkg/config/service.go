package config

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Service composes Source layers into a validated *EngineConfig. Apart from
// the per-key source record that GetSource reads, it holds no state across
// calls to Load; Manager is the stateful, hot-reloading wrapper built on top
// of it.
type Service interface {
	Load(ctx context.Context, sources ...Source) (*EngineConfig, error)
	Validate(cfg *EngineConfig) error
	Watch(ctx context.Context, callback func(*EngineConfig)) error
	GetSource(key string) SourceType
}

type service struct {
	validate *validator.Validate
	sources  map[string]SourceType
}

// NewService returns the default koanf-backed Service.
func NewService() Service {
	return &service{validate: validator.New(), sources: map[string]SourceType{}}
}

func structToMap(cfg *EngineConfig) map[string]any {
	k := koanf.New(".")
	_ = k.Load(structs.Provider(cfg, "koanf"), nil)
	return k.All()
}

// Load composes sources in order (later sources override earlier ones),
// layers in process environment variables under the COMFYGIT_ prefix, then
// unmarshals and validates the result.
func (s *service) Load(ctx context.Context, sources ...Source) (*EngineConfig, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load built-in defaults: %w", err)
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		data, err := src.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load from source %q: %w", src.Type(), err)
		}
		if len(data) == 0 {
			continue
		}
		if err := k.Load(confmap.Provider(data, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to merge source %q: %w", src.Type(), err)
		}
		contributed := koanf.New(".")
		if err := contributed.Load(confmap.Provider(data, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to merge source %q: %w", src.Type(), err)
		}
		for key := range contributed.All() {
			s.sources[key] = src.Type()
		}
	}
	envProvider := env.Provider("COMFYGIT_", ".", func(s string) string {
		return transformEnvKey(trimPrefix(s, "COMFYGIT_"))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if v := os.Getenv("COMFYGIT_CACHE_DIR"); v != "" {
		if err := k.Set("cache_root", v); err != nil {
			return nil, fmt.Errorf("failed to load environment overrides: %w", err)
		}
	}
	_ = ctx
	cfg := &EngineConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := s.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against its `validate` struct tags plus cross-field
// invariants that validator alone cannot express.
func (s *service) Validate(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := s.validate.Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Cache.SessionCacheSize <= 0 {
		return fmt.Errorf("validation failed: cache.session_cache_size must be positive")
	}
	return nil
}

// Watch is a no-op at the Service level; hot-reload is implemented by
// Manager, which pairs a Service with a file Watcher and a debounce timer.
func (s *service) Watch(_ context.Context, callback func(*EngineConfig)) error {
	if callback == nil {
		return fmt.Errorf("callback cannot be nil")
	}
	return nil
}

// GetSource reports which source last contributed the value at key, or
// SourceDefault if no source overrode it.
func (s *service) GetSource(key string) SourceType {
	if t, ok := s.sources[key]; ok {
		return t
	}
	return SourceDefault
}

// transformEnvKey converts COMFYGIT_CACHE_ROOT-style environment variable
// suffixes (with the COMFYGIT_ prefix already stripped) into koanf's dotted
// key form: the first underscore-delimited part becomes the group, the rest
// join back with underscores as the leaf key, e.g.
// "RESOLVER_SEARCH_LIMIT" -> "resolver.search_limit".
func transformEnvKey(key string) string {
	var parts []string
	var cur []byte
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, string(cur))
			cur = nil
		}
	}
	for i := 0; i < len(key); i++ {
		if key[i] == '_' {
			flush()
			continue
		}
		cur = append(cur, lower(key[i]))
	}
	flush()
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		leaf := parts[1]
		for _, p := range parts[2:] {
			leaf += "_" + p
		}
		return parts[0] + "." + leaf
	}
}

func trimPrefix(s, prefix string) string {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b - 'A' + 'a'
	}
	return b
}
