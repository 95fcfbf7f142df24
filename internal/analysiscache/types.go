// Package analysiscache stores the parsed dependency graph and last
// resolution outcome for a workflow file, both within one process lifetime
// and across processes, so re-running a fix pass on an unchanged file
// never re-walks the Node Registry Mirror or Model Repository from
// scratch.
package analysiscache

import (
	"time"

	"github.com/comfygit-ai/comfygit-core/engine/core"
	"github.com/comfygit-ai/comfygit-core/internal/manifest"
	"github.com/comfygit-ai/comfygit-core/internal/workflow"
)

// Dependencies is the parsed shape of one workflow file: its builtin and
// non-builtin node sets, and the model references extracted from its
// widgets — the two Workflow Parser outputs the Resolver consumes.
type Dependencies struct {
	BuiltinNodes    []workflow.Node                  `json:"builtin_nodes"`
	NonBuiltinNodes []workflow.Node                  `json:"non_builtin_nodes"`
	ModelRefs       []workflow.WorkflowNodeWidgetRef `json:"model_refs"`
}

// NodeResolution is one resolved node type: which package satisfies it,
// which resolution tier matched, and the version list that tier surfaced.
type NodeResolution struct {
	NodeType  string   `json:"node_type"`
	PackageID string   `json:"package_id"`
	MatchType string   `json:"match_type"`
	Versions  []string `json:"versions,omitempty"`
}

// NodeAmbiguity is a node type for which more than one package matched.
type NodeAmbiguity struct {
	NodeType   string   `json:"node_type"`
	Candidates []string `json:"candidates"`
}

// ModelGroup is a (widget_value, node_type) dedup group along with every
// ref in that group — the unit the Resolver decides and the Progressive
// Writer applies.
type ModelGroup struct {
	Filename string                            `json:"filename"`
	NodeType string                            `json:"node_type"`
	Refs     []workflow.WorkflowNodeWidgetRef `json:"refs"`
}

// ModelResolution is one resolved dedup group, including the
// download-intent shape (Hash empty, MatchType "download_intent",
// TargetPath/Source populated) the Progressive Writer persists verbatim.
type ModelResolution struct {
	ModelGroup
	Hash       string               `json:"hash,omitempty"`
	MatchType  string               `json:"match_type"`
	Confidence float64              `json:"confidence"`
	TargetPath string               `json:"target_path,omitempty"`
	Source     *manifest.ModelSource `json:"source,omitempty"`
}

// ModelAmbiguity is a dedup group for which more than one repository
// location matched.
type ModelAmbiguity struct {
	ModelGroup
	Candidates []string `json:"candidates"`
}

// ResolutionResult is the Resolver's full output for one workflow.
type ResolutionResult struct {
	WorkflowName     string            `json:"workflow_name"`
	NodesResolved    []NodeResolution  `json:"nodes_resolved"`
	NodesUnresolved  []string          `json:"nodes_unresolved"`
	NodesAmbiguous   []NodeAmbiguity   `json:"nodes_ambiguous"`
	ModelsResolved   []ModelResolution `json:"models_resolved"`
	ModelsUnresolved []ModelGroup      `json:"models_unresolved"`
	ModelsAmbiguous  []ModelAmbiguity  `json:"models_ambiguous"`
}

// Key identifies one cache entry. It carries no mtime: the in-process
// session map records the observed mtime and size in each entry and
// compares them on lookup, so a write-during-read forces a miss even
// inside one process lifetime, per §4.5.
type Key struct {
	Environment         string
	WorkflowName         string
	WorkflowContentHash  string
	ManifestContentHash  string
}

// ManifestHash fingerprints the parts of a manifest that a resolution
// pass actually depends on: installed node packages and the global
// models table. Get/Set callers pass the result as manifestContentHash
// so a manifest edit invisible to the workflow file's own mtime (a
// sibling workflow's decision adding a node or model) still forces a
// partial cache miss.
func ManifestHash(m *manifest.Manifest) string {
	return core.ETagFromAny(map[string]any{
		"nodes":         m.Nodes,
		"global_models": m.GlobalModels,
	})
}

// Entry is what Get returns. Dependencies is nil on a full miss.
// Resolution is nil when the workflow is unchanged but the manifest hash
// no longer matches — a partial hit calling for re-resolution only.
type Entry struct {
	Dependencies *Dependencies
	Resolution   *ResolutionResult
}

// sessionEntry is what the in-process map stores, keyed by (environment,
// workflow). It records the observed mtime and size; a lookup whose mtime
// or size differs does not use the entry and falls through to the
// persisted row.
type sessionEntry struct {
	size                int64
	mtime               time.Time
	manifestContentHash string
	workflowContentHash string
	deps                *Dependencies
	resolution          *ResolutionResult
}
