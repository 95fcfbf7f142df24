package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// SourceType identifies where a configuration value came from, surfaced
// through Service.GetSource for diagnostics.
type SourceType string

const (
	SourceDefault SourceType = "default"
	SourceDotEnv  SourceType = "dotenv"
	SourceEnv     SourceType = "env"
	SourceFile    SourceType = "file"
	SourceOverlay SourceType = "overlay"
)

// Source is one layer in the configuration chain. Load returns the raw
// key/value tree this source contributes; Watch arranges for callback to
// fire whenever the underlying source changes, for sources that support it.
type Source interface {
	Load() (map[string]any, error)
	Watch(ctx context.Context, callback func()) error
	Type() SourceType
	Close() error
}

type noopSource struct {
	sourceType SourceType
	load       func() (map[string]any, error)
}

func (s *noopSource) Load() (map[string]any, error) { return s.load() }
func (s *noopSource) Watch(_ context.Context, _ func()) error { return nil }
func (s *noopSource) Type() SourceType               { return s.sourceType }
func (s *noopSource) Close() error                   { return nil }

// NewDefaultProvider returns a source that contributes Default()'s values.
func NewDefaultProvider() Source {
	return &noopSource{
		sourceType: SourceDefault,
		load: func() (map[string]any, error) {
			return structToMap(Default()), nil
		},
	}
}

// NewDotEnvProvider loads COMFYGIT_CACHE_DIR (and any other recognized key)
// from an optional .env file via joho/godotenv. A missing file contributes
// no values rather than failing, since .env overrides are always optional.
func NewDotEnvProvider(path string) Source {
	return &noopSource{
		sourceType: SourceDotEnv,
		load: func() (map[string]any, error) {
			envMap, err := godotenv.Read(path)
			if err != nil {
				if os.IsNotExist(err) {
					return map[string]any{}, nil
				}
				return nil, fmt.Errorf("failed to parse .env file %q: %w", path, err)
			}
			out := map[string]any{}
			if v, ok := envMap["COMFYGIT_CACHE_DIR"]; ok && v != "" {
				if err := setNested(out, "cache_root", v); err != nil {
					return nil, err
				}
			}
			return out, nil
		},
	}
}

// NewEnvProvider reports SourceEnv for diagnostics; the actual environment
// scan is performed by koanf's providers/env provider inside Service.Load.
func NewEnvProvider() Source {
	return &noopSource{
		sourceType: SourceEnv,
		load:       func() (map[string]any, error) { return map[string]any{}, nil },
	}
}

// NewFileProvider loads overrides from a TOML file, optionally watching it
// for changes when the caller arranges hot-reload through Manager.
func NewFileProvider(path string) Source {
	return &fileProvider{path: path}
}

type fileProvider struct {
	path    string
	watcher *Watcher
}

func (p *fileProvider) Load() (map[string]any, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read config file %q: %w", p.path, err)
	}
	var out map[string]any
	if err := toml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse TOML file %q: %w", p.path, err)
	}
	return out, nil
}

func (p *fileProvider) Watch(ctx context.Context, callback func()) error {
	if p.watcher != nil {
		p.watcher.OnChange(callback)
		return nil
	}
	w, err := NewWatcher()
	if err != nil {
		return err
	}
	p.watcher = w
	w.OnChange(callback)
	return w.Watch(ctx, p.path)
}

func (p *fileProvider) Type() SourceType { return SourceFile }

func (p *fileProvider) Close() error {
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

// NewOverlayProvider contributes a caller-supplied key/value tree, used for
// explicit overrides (e.g. from a thin CLI flag layer) applied last.
func NewOverlayProvider(values map[string]any) Source {
	return &noopSource{
		sourceType: SourceOverlay,
		load: func() (map[string]any, error) {
			if values == nil {
				return map[string]any{}, nil
			}
			return values, nil
		},
	}
}

// setNested sets value at the dotted path in m, creating intermediate maps
// as needed. Returns an error if an existing non-map value sits on the path.
func setNested(m map[string]any, path string, value any) error {
	if path == "" {
		return nil
	}
	parts := splitDotted(path)
	cur := m
	for i, part := range parts {
		if i == len(parts)-1 {
			cur[part] = value
			return nil
		}
		next, ok := cur[part]
		if !ok {
			nm := map[string]any{}
			cur[part] = nm
			cur = nm
			continue
		}
		nm, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("configuration conflict: key %q is not a map", part)
		}
		cur = nm
	}
	return nil
}

func splitDotted(path string) []string {
	return filepathSplit(path, '.')
}

func filepathSplit(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func defaultCacheRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "comfygit")
	}
	return filepath.Join(os.TempDir(), "comfygit")
}
