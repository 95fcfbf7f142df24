package writer

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/comfygit-ai/comfygit-core/engine/core"
	"github.com/comfygit-ai/comfygit-core/internal/pathnorm"
	"github.com/comfygit-ai/comfygit-core/pkg/config"
)

// splice is one byte-range replacement located against a single parse of
// the original document.
type splice struct {
	start, end int
	text       []byte
}

// ApplyBatchPathUpdates rewrites every queued widget value in one
// workflow document in a single pass: node ids are resolved against one
// gjson parse, builtin loader widget values are stripped of their base
// directory per pathnorm.Normalize, and every other byte of the document
// is left exactly as authored. Returns the rewritten document and the
// count of widgets actually updated.
func ApplyBatchPathUpdates(cfg *config.EngineConfig, data []byte, updates []PendingPathUpdate) ([]byte, int, error) {
	if len(updates) == 0 {
		return data, 0, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, 0, core.NewError(nil, core.ErrWorkflowPatch, map[string]any{"reason": "invalid JSON"})
	}
	root := gjson.ParseBytes(data)
	nodes, err := locateNodesByID(root)
	if err != nil {
		return nil, 0, err
	}

	splices := make([]splice, 0, len(updates))
	for _, u := range updates {
		node, ok := nodes[u.Ref.NodeID]
		if !ok {
			return nil, 0, core.NewError(nil, core.ErrWorkflowPatch, map[string]any{
				"reason": "node id not found", "node_id": u.Ref.NodeID,
			})
		}
		widgets := node.Get("widgets_values")
		arr := widgets.Array()
		if u.Ref.WidgetIndex < 0 || u.Ref.WidgetIndex >= len(arr) {
			return nil, 0, core.NewError(nil, core.ErrWorkflowPatch, map[string]any{
				"reason": "widget index out of range", "node_id": u.Ref.NodeID, "widget_index": u.Ref.WidgetIndex,
			})
		}
		target := arr[u.Ref.WidgetIndex]
		if target.Index == 0 {
			return nil, 0, core.NewError(nil, core.ErrWorkflowPatch, map[string]any{
				"reason": "widget value position could not be located", "node_id": u.Ref.NodeID,
			})
		}
		value, _ := pathnorm.Normalize(cfg, u.Ref.NodeType, u.NewValue)
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, 0, core.NewError(err, core.ErrWorkflowPatch, nil)
		}
		splices = append(splices, splice{start: target.Index, end: target.Index + len(target.Raw), text: encoded})
	}

	// Apply from the highest offset down so earlier, not-yet-applied
	// splices keep the byte offsets computed against the single parse
	// above valid throughout.
	sort.Slice(splices, func(i, j int) bool { return splices[i].start > splices[j].start })
	out := append([]byte(nil), data...)
	for _, s := range splices {
		rebuilt := make([]byte, 0, len(out)-(s.end-s.start)+len(s.text))
		rebuilt = append(rebuilt, out[:s.start]...)
		rebuilt = append(rebuilt, s.text...)
		rebuilt = append(rebuilt, out[s.end:]...)
		out = rebuilt
	}
	return out, len(splices), nil
}

// locateNodesByID walks the "nodes" container (array or object form, the
// same tolerance internal/workflow.Parse applies) and indexes each node
// by its "id" field so every queued update can be resolved by one lookup.
func locateNodesByID(root gjson.Result) (map[string]gjson.Result, error) {
	nodesResult := root.Get("nodes")
	out := map[string]gjson.Result{}
	switch {
	case nodesResult.IsArray():
		for _, n := range nodesResult.Array() {
			out[n.Get("id").String()] = n
		}
	case nodesResult.IsObject():
		nodesResult.ForEach(func(_, n gjson.Result) bool {
			out[n.Get("id").String()] = n
			return true
		})
	default:
		return nil, core.NewError(nil, core.ErrWorkflowPatch, map[string]any{
			"reason": "\"nodes\" is neither an array nor an object",
		})
	}
	return out, nil
}

// Reindent reformats data with a uniform indent, sniffed from the
// document's own first indented line when tab is empty. It is never
// applied by ApplyBatchPathUpdates itself — that function preserves the
// original byte layout exactly — but is available to a caller that wants
// a normalized preview of the post-patch document (e.g. a diff shown to
// the user before the manifest save is confirmed).
func Reindent(data []byte, tab string) []byte {
	if tab == "" {
		tab = sniffIndent(data)
	}
	return pretty.PrettyOptions(data, &pretty.Options{Indent: tab, SortKeys: false})
}

func sniffIndent(data []byte) string {
	lines := strings.SplitN(string(data), "\n", 3)
	for _, line := range lines[1:] {
		trimmed := strings.TrimLeft(line, " \t")
		if len(trimmed) == len(line) || trimmed == line {
			continue
		}
		return line[:len(line)-len(trimmed)]
	}
	return "  "
}
