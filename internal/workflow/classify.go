package workflow

// ClassifyNodes partitions a workflow's nodes into builtin and non-builtin,
// preserving encounter order within each partition. builtinTypes is the
// configured set of node types the host application ships natively.
func ClassifyNodes(w *Workflow, builtinTypes map[string]bool) (builtin, nonBuiltin []Node) {
	for _, n := range w.Nodes {
		if builtinTypes[n.Type] {
			builtin = append(builtin, n)
		} else {
			nonBuiltin = append(nonBuiltin, n)
		}
	}
	return builtin, nonBuiltin
}
