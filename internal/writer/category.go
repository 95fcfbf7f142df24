package writer

import (
	"path"
	"strings"

	"github.com/comfygit-ai/comfygit-core/internal/manifest"
	"github.com/comfygit-ai/comfygit-core/pkg/config"
)

// categoryCriticalityDefaults mirrors the host's smart per-category
// criticality defaults: a missing checkpoint or lora rarely breaks a
// workflow's intent, a missing controlnet or clip-vision model usually
// does.
var categoryCriticalityDefaults = map[string]manifest.Criticality{
	"checkpoints":    manifest.CriticalityFlexible,
	"vae":            manifest.CriticalityFlexible,
	"text_encoders":  manifest.CriticalityFlexible,
	"loras":          manifest.CriticalityFlexible,
	"controlnet":     manifest.CriticalityRequired,
	"clip_vision":    manifest.CriticalityRequired,
	"style_models":   manifest.CriticalityFlexible,
	"embeddings":     manifest.CriticalityFlexible,
	"upscale_models": manifest.CriticalityFlexible,
}

// categoryForNodeType returns the model category a dedup group's node
// type belongs to: the node type's configured loader base directory when
// one is known, otherwise the filename's first path component, otherwise
// "uncategorized".
func categoryForNodeType(cfg *config.EngineConfig, nodeType, filename string) string {
	if spec, ok := cfg.ModelLoaderNodes[nodeType]; ok && len(spec.BaseDirs) > 0 {
		return spec.BaseDirs[0]
	}
	normalized := strings.ReplaceAll(filename, "\\", "/")
	if idx := strings.IndexByte(path.Clean(normalized), '/'); idx > 0 {
		return path.Clean(normalized)[:idx]
	}
	return "uncategorized"
}

// defaultCriticalityFor returns the category's default criticality,
// "required" for any category with no explicit default.
func defaultCriticalityFor(category string) manifest.Criticality {
	if c, ok := categoryCriticalityDefaults[category]; ok {
		return c
	}
	return manifest.CriticalityRequired
}
