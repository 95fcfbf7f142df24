// Package workflow loads a host application's workflow JSON, classifies
// its nodes as builtin or custom, and extracts every widget value that
// looks like a reference to an on-disk model file.
package workflow

import "encoding/json"

// WidgetKind tags the runtime type a widgets_values entry decoded as.
// The source format is dynamically typed; Other carries anything that
// isn't a plain string/number/bool so no information is lost on
// round-trip.
type WidgetKind int

const (
	WidgetText WidgetKind = iota
	WidgetInt
	WidgetFloat
	WidgetBool
	WidgetOther
)

// WidgetValue is one entry of a node's widgets_values list.
type WidgetValue struct {
	Kind  WidgetKind
	Text  string
	Int   int64
	Float float64
	Bool  bool
	Other json.RawMessage
}

// AsText returns (value, true) only for WidgetText entries — only a text
// widget value can ever look like a model path.
func (w WidgetValue) AsText() (string, bool) {
	if w.Kind != WidgetText {
		return "", false
	}
	return w.Text, true
}

// Node is one WorkflowNode: an id, a type name, an inputs map, an ordered
// widgets_values list, and a properties map that may carry cnr_id/ver
// provenance hints.
type Node struct {
	ID            string
	Type          string
	Inputs        map[string]any
	WidgetsValues []WidgetValue
	Properties    map[string]any
}

// CNRID returns the node's properties.cnr_id provenance hint, if present.
func (n Node) CNRID() (string, bool) {
	v, ok := n.Properties["cnr_id"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Ver returns the node's properties.ver provenance hint, if present.
func (n Node) Ver() (string, bool) {
	v, ok := n.Properties["ver"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Workflow is an ordered set of Nodes as loaded from a workflow JSON file.
// Node order is the order nodes were encountered during parsing: array
// order for a list container, sorted-key order for a map container (the
// only deterministic choice for an unordered JSON object).
type Workflow struct {
	Nodes []Node
}

// WorkflowNodeWidgetRef is the stable address of one model slot inside a
// workflow: the node it lives on, that node's type, the widget's index,
// and its current (string) value.
type WorkflowNodeWidgetRef struct {
	NodeID      string
	NodeType    string
	WidgetIndex int
	WidgetValue string
}

// GroupKey is the (widget_value, node_type) dedup key the Resolver groups
// model references by before prompting a strategy.
type GroupKey struct {
	WidgetValue string
	NodeType    string
}
