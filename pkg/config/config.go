// Package config loads and hot-reloads the engine-level configuration that
// drives node/model resolution, path normalization and cache placement.
package config

import "time"

// LoaderSpec describes where a custom node type stores the model files it
// exposes to workflows: the candidate base directories relative to a node
// pack, and the widget indices within a node's widget array that carry a
// model filename rather than an ordinary parameter.
type LoaderSpec struct {
	BaseDirs      []string `koanf:"base_dirs"`
	WidgetIndices []int    `koanf:"widget_indices"`
}

// EngineConfig carries everything the Resolver, Path Normalizer and Workflow
// Parser need as configuration rather than as hard-coded constants.
type EngineConfig struct {
	Environment string `koanf:"environment" validate:"oneof=development production"`
	LogLevel    string `koanf:"log_level"   validate:"oneof=debug info warn error disabled"`

	// CacheRoot is the directory under which the content store, manifest
	// store and analysis cache live. Resolved from COMFYGIT_CACHE_DIR,
	// an optional .env file, or an OS-appropriate user cache directory.
	CacheRoot string `koanf:"cache_root" validate:"required"`

	BuiltinNodeTypes []string              `koanf:"builtin_node_types"`
	ModelLoaderNodes map[string]LoaderSpec `koanf:"model_loader_nodes"`
	ModelExtensions  []string              `koanf:"model_extensions" validate:"min=1"`

	Resolver ResolverConfig `koanf:"resolver"`
	Cache    CacheConfig    `koanf:"cache"`
}

// ResolverConfig tunes node/model resolution.
type ResolverConfig struct {
	FuzzyMatchThreshold float64 `koanf:"fuzzy_match_threshold" validate:"gte=0,lte=1"`
	SearchResultLimit   int     `koanf:"search_result_limit"   validate:"gt=0"`
}

// CacheConfig tunes the Analysis Cache's in-process and persisted layers.
type CacheConfig struct {
	SessionCacheSize int           `koanf:"session_cache_size"`
	StaleAfter       time.Duration `koanf:"stale_after"`
}

var defaultModelExtensions = []string{
	".safetensors", ".ckpt", ".pt", ".pth", ".bin", ".onnx", ".gguf", ".sft",
}

var defaultBuiltinNodeTypes = []string{
	"CheckpointLoaderSimple", "LoraLoader", "VAELoader", "CLIPLoader",
	"ControlNetLoader", "UpscaleModelLoader", "UNETLoader", "DualCLIPLoader",
}

var defaultModelLoaderNodes = map[string]LoaderSpec{
	"CheckpointLoaderSimple": {BaseDirs: []string{"checkpoints"}, WidgetIndices: []int{0}},
	"LoraLoader":             {BaseDirs: []string{"loras"}, WidgetIndices: []int{0}},
	"VAELoader":              {BaseDirs: []string{"vae"}, WidgetIndices: []int{0}},
	"CLIPLoader":             {BaseDirs: []string{"clip"}, WidgetIndices: []int{0}},
	"ControlNetLoader":       {BaseDirs: []string{"controlnet"}, WidgetIndices: []int{0}},
	"UpscaleModelLoader":     {BaseDirs: []string{"upscale_models"}, WidgetIndices: []int{0}},
}

// Default returns the configuration used when no provider overrides a field.
func Default() *EngineConfig {
	return &EngineConfig{
		Environment:      "development",
		LogLevel:         "info",
		CacheRoot:        defaultCacheRoot(),
		BuiltinNodeTypes: append([]string(nil), defaultBuiltinNodeTypes...),
		ModelLoaderNodes: cloneLoaderSpecs(defaultModelLoaderNodes),
		ModelExtensions:  append([]string(nil), defaultModelExtensions...),
		Resolver: ResolverConfig{
			FuzzyMatchThreshold: 0.6,
			SearchResultLimit:   20,
		},
		Cache: CacheConfig{
			SessionCacheSize: 2048,
			StaleAfter:       24 * time.Hour,
		},
	}
}

func cloneLoaderSpecs(src map[string]LoaderSpec) map[string]LoaderSpec {
	dst := make(map[string]LoaderSpec, len(src))
	for k, v := range src {
		dst[k] = LoaderSpec{
			BaseDirs:      append([]string(nil), v.BaseDirs...),
			WidgetIndices: append([]int(nil), v.WidgetIndices...),
		}
	}
	return dst
}

// configEqual reports whether two configurations carry identical values,
// used by Manager to decide whether a reload should fire OnChange callbacks.
func configEqual(a, b *EngineConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Environment != b.Environment || a.LogLevel != b.LogLevel || a.CacheRoot != b.CacheRoot {
		return false
	}
	if a.Resolver != b.Resolver || a.Cache != b.Cache {
		return false
	}
	if !stringSliceEqual(a.BuiltinNodeTypes, b.BuiltinNodeTypes) {
		return false
	}
	if !stringSliceEqual(a.ModelExtensions, b.ModelExtensions) {
		return false
	}
	if len(a.ModelLoaderNodes) != len(b.ModelLoaderNodes) {
		return false
	}
	for name, spec := range a.ModelLoaderNodes {
		other, ok := b.ModelLoaderNodes[name]
		if !ok {
			return false
		}
		if !stringSliceEqual(spec.BaseDirs, other.BaseDirs) || !intSliceEqual(spec.WidgetIndices, other.WidgetIndices) {
			return false
		}
	}
	return true
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
