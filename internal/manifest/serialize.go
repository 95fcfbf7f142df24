package manifest

import (
	"fmt"
	"sort"
	"strings"
)

// Serialize renders a Manifest as the canonical pyproject.toml-shaped
// document. go-toml/v2 has no tomlkit-style mutable document tree, so this
// writer is hand-rolled directly against the manifest's stable formatting
// rules: keys sorted for determinism, inline tables for model sources, the
// per-workflow-model "nodes" address list broken one ref per line, and
// empty tables omitted entirely rather than written as "{}" or a bare
// header with nothing under it.
func Serialize(m *Manifest) []byte {
	var b strings.Builder

	writeProject(&b, m.Project)

	for _, id := range sortedKeys(m.Nodes) {
		writeNodeInstall(&b, id, m.Nodes[id])
	}

	for _, hash := range sortedKeys(m.GlobalModels) {
		writeGlobalModel(&b, hash, m.GlobalModels[hash])
	}

	for _, name := range sortedKeys(m.Workflows) {
		writeWorkflowEntry(&b, name, m.Workflows[name])
	}

	return []byte(b.String())
}

func writeProject(b *strings.Builder, p Project) {
	if p.PythonVersion == "" && len(p.Dependencies) == 0 && len(p.DependencyGroups) == 0 && len(p.IndexURLs) == 0 {
		return
	}
	b.WriteString("[project]\n")
	if p.PythonVersion != "" {
		fmt.Fprintf(b, "python_version = %s\n", quote(p.PythonVersion))
	}
	if len(p.Dependencies) > 0 {
		writeStringArray(b, "dependencies", p.Dependencies)
	}
	if len(p.IndexURLs) > 0 {
		writeStringArray(b, "index_urls", p.IndexURLs)
	}
	if len(p.DependencyGroups) > 0 {
		b.WriteString("\n[project.dependency_groups]\n")
		for _, k := range sortedStringMapKeys(p.DependencyGroups) {
			writeStringArray(b, quote(k), p.DependencyGroups[k])
		}
	}
	b.WriteString("\n")
}

func writeNodeInstall(b *strings.Builder, id string, n NodeInstall) {
	fmt.Fprintf(b, "[nodes.%s]\n", quote(id))
	fmt.Fprintf(b, "version = %s\n", quote(n.Version))
	fmt.Fprintf(b, "source = %s\n", quote(string(n.Source)))
	if n.Branch != "" {
		fmt.Fprintf(b, "branch = %s\n", quote(n.Branch))
	}
	if n.PinnedCommit != "" {
		fmt.Fprintf(b, "pinned_commit = %s\n", quote(n.PinnedCommit))
	}
	if len(n.DependencySources) > 0 {
		writeStringArray(b, "dependency_sources", n.DependencySources)
	}
	b.WriteString("\n")
}

func writeGlobalModel(b *strings.Builder, hash string, gm GlobalModel) {
	fmt.Fprintf(b, "[models.%s]\n", quote(hash))
	fmt.Fprintf(b, "filename = %s\n", quote(gm.Filename))
	fmt.Fprintf(b, "size = %d\n", gm.SizeBytes)
	fmt.Fprintf(b, "relative_path = %s\n", quote(gm.RelativePath))
	fmt.Fprintf(b, "category = %s\n", quote(gm.Category))
	if len(gm.Sources) > 0 {
		b.WriteString("sources = [\n")
		for _, s := range gm.Sources {
			fmt.Fprintf(b, "  %s,\n", inlineModelSource(s))
		}
		b.WriteString("]\n")
	}
	b.WriteString("\n")
}

func writeWorkflowEntry(b *strings.Builder, name string, we WorkflowEntry) {
	fmt.Fprintf(b, "[workflows.%s]\n", quote(name))
	fmt.Fprintf(b, "path = %s\n", quote(we.Path))
	if len(we.Nodes) > 0 {
		writeStringArray(b, "nodes", we.Nodes)
	}
	b.WriteString("\n")

	for _, wm := range we.Models {
		fmt.Fprintf(b, "[[workflows.%s.models]]\n", quote(name))
		fmt.Fprintf(b, "filename = %s\n", quote(wm.Filename))
		fmt.Fprintf(b, "category = %s\n", quote(wm.Category))
		fmt.Fprintf(b, "criticality = %s\n", quote(string(wm.Criticality)))
		fmt.Fprintf(b, "status = %s\n", quote(string(wm.Status)))
		if wm.Hash != "" {
			fmt.Fprintf(b, "hash = %s\n", quote(wm.Hash))
		}
		if wm.RelativePath != "" {
			fmt.Fprintf(b, "relative_path = %s\n", quote(wm.RelativePath))
		}
		if len(wm.Sources) > 0 {
			b.WriteString("sources = [\n")
			for _, s := range wm.Sources {
				fmt.Fprintf(b, "  %s,\n", inlineModelSource(s))
			}
			b.WriteString("]\n")
		}
		if len(wm.Nodes) > 0 {
			b.WriteString("nodes = [\n")
			for _, ref := range wm.Nodes {
				fmt.Fprintf(b, "  { node_id = %s, node_type = %s, widget_index = %d },\n",
					quote(ref.NodeID), quote(ref.NodeType), ref.WidgetIndex)
			}
			b.WriteString("]\n")
		}
		b.WriteString("\n")
	}

	if len(we.CustomNodeMap) > 0 {
		fmt.Fprintf(b, "[workflows.%s.custom_node_map]\n", quote(name))
		for _, nodeType := range sortedStringMapKeys(we.CustomNodeMap) {
			entry := we.CustomNodeMap[nodeType]
			if entry.Skip {
				fmt.Fprintf(b, "%s = \"skip\"\n", quote(nodeType))
			} else {
				fmt.Fprintf(b, "%s = %s\n", quote(nodeType), quote(entry.PackageID))
			}
		}
		b.WriteString("\n")
	}
}

func inlineModelSource(s ModelSource) string {
	return fmt.Sprintf("{ url = %s, kind = %s }", quote(s.URL), quote(s.Kind))
}

func writeStringArray(b *strings.Builder, key string, values []string) {
	if len(values) == 0 {
		return
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	fmt.Fprintf(b, "%s = [%s]\n", key, strings.Join(quoted, ", "))
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringMapKeys[V any](m map[string]V) []string {
	return sortedKeys(m)
}
