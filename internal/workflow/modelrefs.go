package workflow

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/comfygit-ai/comfygit-core/pkg/config"
)

// ExtractModelRefs returns the WorkflowNodeWidgetRef for every widget whose
// value looks like a model file path (matches a configured extension) OR
// whose parent node type is a known model-loader type (in which case the
// loader's configured widget indices are always treated as model refs,
// regardless of the value's apparent shape). Extraction is deterministic
// and order-preserving: nodes in parse order, widgets in list order.
func ExtractModelRefs(w *Workflow, cfg *config.EngineConfig) []WorkflowNodeWidgetRef {
	var refs []WorkflowNodeWidgetRef
	for _, node := range w.Nodes {
		loaderSpec, isLoader := cfg.ModelLoaderNodes[node.Type]
		for idx, wv := range node.WidgetsValues {
			text, isText := wv.AsText()
			if !isText {
				continue
			}
			if isLoader && containsInt(loaderSpec.WidgetIndices, idx) {
				refs = append(refs, ref(node, idx, text))
				continue
			}
			if matchesModelExtension(text, cfg.ModelExtensions) {
				refs = append(refs, ref(node, idx, text))
			}
		}
	}
	return refs
}

func ref(n Node, idx int, value string) WorkflowNodeWidgetRef {
	return WorkflowNodeWidgetRef{NodeID: n.ID, NodeType: n.Type, WidgetIndex: idx, WidgetValue: value}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// matchesModelExtension reports whether value's extension matches any of
// the configured model extensions (".safetensors", ".ckpt", ...),
// case-insensitively, using doublestar glob matching so a configured
// entry may also be a full glob pattern (e.g. "*.safetensors") rather
// than a bare extension.
func matchesModelExtension(value string, extensions []string) bool {
	lower := strings.ToLower(strings.ReplaceAll(value, "\\", "/"))
	for _, ext := range extensions {
		pattern := strings.ToLower(ext)
		if !strings.Contains(pattern, "*") {
			// "**/*" so the pattern matches at any directory depth — a
			// model reference is usually "category/name.ext".
			pattern = "**/*" + pattern
		}
		if ok, _ := doublestar.Match(pattern, lower); ok {
			return true
		}
	}
	return false
}
