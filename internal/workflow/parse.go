package workflow

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/comfygit-ai/comfygit-core/engine/core"
)

// Parse loads a workflow document's bytes into a Workflow, tolerating both
// a JSON array and a JSON object for the top-level "nodes" container (the
// latter is keyed by node id in some host export formats).
func Parse(data []byte) (*Workflow, error) {
	if !gjson.ValidBytes(data) {
		return nil, core.NewError(nil, core.ErrWorkflowParse, map[string]any{
			"reason": "invalid JSON",
		})
	}
	root := gjson.ParseBytes(data)
	nodesResult := root.Get("nodes")

	var nodes []Node
	switch {
	case nodesResult.IsArray():
		for _, n := range nodesResult.Array() {
			nodes = append(nodes, decodeNode(n))
		}
	case nodesResult.IsObject():
		keys := make([]string, 0)
		m := nodesResult.Map()
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			nodes = append(nodes, decodeNode(m[k]))
		}
	default:
		return nil, core.NewError(nil, core.ErrWorkflowParse, map[string]any{
			"reason": "\"nodes\" is neither an array nor an object",
		})
	}

	return &Workflow{Nodes: nodes}, nil
}

func decodeNode(n gjson.Result) Node {
	node := Node{
		ID:   n.Get("id").String(),
		Type: n.Get("type").String(),
	}
	if inputs := n.Get("inputs"); inputs.IsObject() {
		if m, ok := inputs.Value().(map[string]any); ok {
			node.Inputs = m
		}
	}
	if props := n.Get("properties"); props.IsObject() {
		if m, ok := props.Value().(map[string]any); ok {
			node.Properties = m
		}
	}
	for _, wv := range n.Get("widgets_values").Array() {
		node.WidgetsValues = append(node.WidgetsValues, decodeWidgetValue(wv))
	}
	return node
}

func decodeWidgetValue(v gjson.Result) WidgetValue {
	switch v.Type {
	case gjson.String:
		return WidgetValue{Kind: WidgetText, Text: v.String()}
	case gjson.Number:
		if !strings.ContainsAny(v.Raw, ".eE") && v.Num == float64(int64(v.Num)) {
			return WidgetValue{Kind: WidgetInt, Int: int64(v.Num), Float: v.Num}
		}
		return WidgetValue{Kind: WidgetFloat, Float: v.Num}
	case gjson.True, gjson.False:
		return WidgetValue{Kind: WidgetBool, Bool: v.Bool()}
	default:
		return WidgetValue{Kind: WidgetOther, Other: []byte(v.Raw)}
	}
}
