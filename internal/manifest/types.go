// Package manifest parses, mutates and serializes the canonical
// pyproject.toml-shaped manifest: the hash-indexed, reference-counted,
// on-disk record of what a reproducible environment must contain.
package manifest

// Criticality classifies how essential a WorkflowModel entry is to a
// workflow's completeness.
type Criticality string

const (
	CriticalityRequired Criticality = "required"
	CriticalityFlexible Criticality = "flexible"
	CriticalityOptional Criticality = "optional"
)

// Status is whether a WorkflowModel entry currently resolves to an
// on-disk file.
type Status string

const (
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
)

// SourceKind is how a NodeInstall's registry_id was sourced.
type SourceKind string

const (
	SourceRegistry    SourceKind = "registry"
	SourceGit         SourceKind = "git"
	SourceDevelopment SourceKind = "development"
)

// WorkflowNodeWidgetRef mirrors internal/workflow's type of the same name
// (duplicated here, not imported, to keep the manifest's on-disk shape
// decoupled from the in-memory workflow-parsing representation — the
// manifest only ever needs the address triple, never a live WidgetValue).
type WorkflowNodeWidgetRef struct {
	NodeID      string `toml:"node_id"`
	NodeType    string `toml:"node_type"`
	WidgetIndex int    `toml:"widget_index"`
}

// ModelSource is a typed download origin for a model hash.
type ModelSource struct {
	URL  string `toml:"url"`
	Kind string `toml:"kind"`
}

// GlobalModel is one row of the manifest's global models table: hash →
// {filename, size, relative_path, category, sources[]}.
type GlobalModel struct {
	Hash         string        `toml:"-" validate:"required"` // the table key; not serialized as a field
	Filename     string        `toml:"filename" validate:"required"`
	SizeBytes    int64         `toml:"size" validate:"min=0"`
	RelativePath string        `toml:"relative_path" validate:"required"`
	Category     string        `toml:"category"`
	Sources      []ModelSource `toml:"sources,omitempty"`
}

// WorkflowModel is one entry in a workflow's models list.
type WorkflowModel struct {
	Filename     string                  `toml:"filename"`
	Category     string                  `toml:"category"`
	Criticality  Criticality             `toml:"criticality"`
	Status       Status                  `toml:"status"`
	Nodes        []WorkflowNodeWidgetRef `toml:"nodes"`
	Hash         string                  `toml:"hash,omitempty"`          // present iff resolved
	Sources      []ModelSource           `toml:"sources,omitempty"`       // present iff a download intent
	RelativePath string                  `toml:"relative_path,omitempty"` // target path for an intended download
}

// GroupKey returns the (filename, node_type) dedup key this entry groups
// under — the key invariant 6 forbids duplicating within one workflow.
// node_type is taken from the first ref, since every ref in a dedup group
// shares one node_type by construction.
func (wm WorkflowModel) GroupKey() (filename, nodeType string) {
	nt := ""
	if len(wm.Nodes) > 0 {
		nt = wm.Nodes[0].NodeType
	}
	return wm.Filename, nt
}

// NodeInstall is what the manifest records for a package the environment
// depends on: registry id or git URL, resolved version, source kind, and
// the dependency-source names it introduced into the Python config.
type NodeInstall struct {
	PackageID        string     `toml:"-" validate:"required"` // the table key
	Version          string     `toml:"version" validate:"required"`
	Source           SourceKind `toml:"source" validate:"required,oneof=registry git development"`
	Branch           string     `toml:"branch,omitempty"`
	PinnedCommit     string     `toml:"pinned_commit,omitempty"`
	DependencySources []string  `toml:"dependency_sources,omitempty"`
}

// IsDev reports whether this install is a local, possibly-modified
// directory the user is actively editing.
func (n NodeInstall) IsDev() bool { return n.Source == SourceDevelopment }

// CustomNodeMapEntry is one value of a workflow's custom_node_map: either
// a package id (string), or the sentinel "deliberately unresolvable"
// (represented here as Skip=true — both the TOML string "skip" and the
// TOML boolean false decode to this, per spec §3.4).
type CustomNodeMapEntry struct {
	PackageID string
	Skip      bool
}

// WorkflowEntry is one entry of the manifest's workflows table.
type WorkflowEntry struct {
	Name          string                         `toml:"-" validate:"required"` // the table key
	Path          string                         `toml:"path" validate:"required"`
	Models        []WorkflowModel                `toml:"models,omitempty"`
	Nodes         []string                       `toml:"nodes,omitempty"`
	CustomNodeMap map[string]CustomNodeMapEntry   `toml:"-"` // serialized manually: mixed string/bool values
}

// Project carries the Python-side configuration: version, dependencies,
// per-node dependency groups, and index-URL pins.
type Project struct {
	PythonVersion    string              `toml:"python_version,omitempty"`
	Dependencies     []string            `toml:"dependencies,omitempty"`
	DependencyGroups map[string][]string `toml:"dependency_groups,omitempty"`
	IndexURLs        []string            `toml:"index_urls,omitempty"`
}

// Manifest is the full in-memory, typed representation of the canonical
// on-disk record for one environment.
type Manifest struct {
	Project      Project
	Nodes        map[string]NodeInstall
	GlobalModels map[string]GlobalModel
	Workflows    map[string]WorkflowEntry
}

// New returns an empty manifest with initialized maps.
func New() *Manifest {
	return &Manifest{
		Nodes:        map[string]NodeInstall{},
		GlobalModels: map[string]GlobalModel{},
		Workflows:    map[string]WorkflowEntry{},
	}
}
