package manifest

import (
	"github.com/pelletier/go-toml/v2"

	"github.com/comfygit-ai/comfygit-core/engine/core"
)

// rawDoc mirrors the on-disk TOML structure directly so go-toml/v2's
// standard struct decode can do the heavy lifting; Parse then reshapes it
// into the typed, hash/id-keyed Manifest.
type rawDoc struct {
	Project struct {
		PythonVersion    string              `toml:"python_version"`
		Dependencies     []string            `toml:"dependencies"`
		DependencyGroups map[string][]string `toml:"dependency_groups"`
		IndexURLs        []string            `toml:"index_urls"`
	} `toml:"project"`

	Nodes map[string]rawNodeInstall `toml:"nodes"`

	Models map[string]rawGlobalModel `toml:"models"`

	Workflows map[string]rawWorkflowEntry `toml:"workflows"`
}

type rawNodeInstall struct {
	Version           string   `toml:"version"`
	Source            string   `toml:"source"`
	Branch            string   `toml:"branch"`
	PinnedCommit      string   `toml:"pinned_commit"`
	DependencySources []string `toml:"dependency_sources"`
}

type rawGlobalModel struct {
	Filename     string        `toml:"filename"`
	SizeBytes    int64         `toml:"size"`
	RelativePath string        `toml:"relative_path"`
	Category     string        `toml:"category"`
	Sources      []ModelSource `toml:"sources"`
}

type rawWorkflowModel struct {
	Filename     string                  `toml:"filename"`
	Category     string                  `toml:"category"`
	Criticality  string                  `toml:"criticality"`
	Status       string                  `toml:"status"`
	Hash         string                  `toml:"hash"`
	RelativePath string                  `toml:"relative_path"`
	Sources      []ModelSource           `toml:"sources"`
	Nodes        []WorkflowNodeWidgetRef `toml:"nodes"`
}

type rawWorkflowEntry struct {
	Path          string             `toml:"path"`
	Models        []rawWorkflowModel `toml:"models"`
	Nodes         []string           `toml:"nodes"`
	CustomNodeMap map[string]any     `toml:"custom_node_map"`
}

// Parse decodes a manifest document's TOML bytes into a *Manifest. It does
// not validate cross-table invariants (hash references, custom_node_map
// targets, path existence) — callers that need those run CheckInvariants.
func Parse(data []byte) (*Manifest, error) {
	var raw rawDoc
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, core.NewError(err, core.ErrManifestParse, nil)
	}

	m := New()
	m.Project = Project{
		PythonVersion:    raw.Project.PythonVersion,
		Dependencies:     raw.Project.Dependencies,
		DependencyGroups: raw.Project.DependencyGroups,
		IndexURLs:        raw.Project.IndexURLs,
	}

	for id, n := range raw.Nodes {
		m.Nodes[id] = NodeInstall{
			PackageID:         id,
			Version:           n.Version,
			Source:            SourceKind(n.Source),
			Branch:            n.Branch,
			PinnedCommit:      n.PinnedCommit,
			DependencySources: n.DependencySources,
		}
	}

	for hash, gm := range raw.Models {
		m.GlobalModels[hash] = GlobalModel{
			Hash:         hash,
			Filename:     gm.Filename,
			SizeBytes:    gm.SizeBytes,
			RelativePath: gm.RelativePath,
			Category:     gm.Category,
			Sources:      gm.Sources,
		}
	}

	for name, we := range raw.Workflows {
		entry := WorkflowEntry{
			Name:          name,
			Path:          we.Path,
			Nodes:         we.Nodes,
			CustomNodeMap: map[string]CustomNodeMapEntry{},
		}
		for nodeType, v := range we.CustomNodeMap {
			entry.CustomNodeMap[nodeType] = decodeCustomNodeMapValue(v)
		}
		for _, rm := range we.Models {
			entry.Models = append(entry.Models, WorkflowModel{
				Filename:     rm.Filename,
				Category:     rm.Category,
				Criticality:  Criticality(rm.Criticality),
				Status:       Status(rm.Status),
				Nodes:        rm.Nodes,
				Hash:         rm.Hash,
				Sources:      rm.Sources,
				RelativePath: rm.RelativePath,
			})
		}
		m.Workflows[name] = entry
	}

	return m, nil
}

// decodeCustomNodeMapValue decodes one custom_node_map value: a TOML
// string other than "skip" is a package id; the TOML string "skip" and
// the TOML boolean false both mean "deliberately left unresolved" per
// spec §3.4.
func decodeCustomNodeMapValue(v any) CustomNodeMapEntry {
	switch t := v.(type) {
	case bool:
		return CustomNodeMapEntry{Skip: !t}
	case string:
		if t == "skip" {
			return CustomNodeMapEntry{Skip: true}
		}
		return CustomNodeMapEntry{PackageID: t}
	default:
		return CustomNodeMapEntry{Skip: true}
	}
}
