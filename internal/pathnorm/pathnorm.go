// Package pathnorm normalizes model widget paths against a node type's
// configured loader base directories: stripping the host's implicit base
// directory for builtin loaders before it reaches the manifest, and
// reconstructing candidate on-disk paths for the Resolver's
// reconstructed-path tier.
package pathnorm

import (
	"path"
	"strings"

	"github.com/comfygit-ai/comfygit-core/pkg/config"
)

// IsModelLoaderNode reports whether t is configured as a builtin loader
// node type — one whose widget value never carries the base directory.
func IsModelLoaderNode(cfg *config.EngineConfig, t string) bool {
	_, ok := cfg.ModelLoaderNodes[t]
	return ok
}

// StripBaseDirectory removes the first configured base directory p starts
// with (as a "b/" prefix), normalizing backslashes to slashes first. If no
// configured base dir matches, p is returned with only that slash
// normalization applied.
func StripBaseDirectory(cfg *config.EngineConfig, t, p string) string {
	normalized := strings.ReplaceAll(p, "\\", "/")
	spec, ok := cfg.ModelLoaderNodes[t]
	if !ok {
		return normalized
	}
	for _, base := range spec.BaseDirs {
		prefix := base + "/"
		if strings.HasPrefix(normalized, prefix) {
			return strings.TrimPrefix(normalized, prefix)
		}
	}
	return normalized
}

// ReconstructModelPath returns one candidate full path per base directory
// configured for t — "<base>/<widgetValue>" — in configured order. An
// unconfigured node type yields no candidates.
func ReconstructModelPath(cfg *config.EngineConfig, t, widgetValue string) []string {
	spec, ok := cfg.ModelLoaderNodes[t]
	if !ok {
		return nil
	}
	candidates := make([]string, 0, len(spec.BaseDirs))
	for _, base := range spec.BaseDirs {
		candidates = append(candidates, base+"/"+widgetValue)
	}
	return candidates
}

// Normalize applies the batch workflow-JSON update rule: strip the base
// directory for builtin loader node types, leave custom-node widget
// values exactly as authored. Returns the value to write back and
// whether stripping occurred (for the caller's stripped-vs-preserved
// tally).
func Normalize(cfg *config.EngineConfig, nodeType, widgetValue string) (value string, stripped bool) {
	if !IsModelLoaderNode(cfg, nodeType) {
		return widgetValue, false
	}
	out := StripBaseDirectory(cfg, nodeType, widgetValue)
	return out, out != strings.ReplaceAll(widgetValue, "\\", "/")
}

// HasCategoryMismatch reports whether a resolved model's primary location
// falls outside every base directory the loader node type allows, and no
// alternate location is inside one — an informational flag, never
// auto-fixed.
func HasCategoryMismatch(cfg *config.EngineConfig, nodeType string, primaryPath string, alternatePaths []string) bool {
	spec, ok := cfg.ModelLoaderNodes[nodeType]
	if !ok {
		return false
	}
	if inAllowedCategory(spec.BaseDirs, primaryPath) {
		return false
	}
	for _, alt := range alternatePaths {
		if inAllowedCategory(spec.BaseDirs, alt) {
			return false
		}
	}
	return true
}

func inAllowedCategory(baseDirs []string, p string) bool {
	normalized := strings.ReplaceAll(p, "\\", "/")
	category := firstPathComponent(normalized)
	for _, base := range baseDirs {
		if category == base {
			return true
		}
	}
	return false
}

func firstPathComponent(p string) string {
	clean := path.Clean(p)
	if idx := strings.IndexByte(clean, '/'); idx >= 0 {
		return clean[:idx]
	}
	return clean
}
