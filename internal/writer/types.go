// Package writer applies user-confirmed resolutions one decision at a
// time: each node or model decision mutates the manifest and is saved
// atomically before the next question is asked, so an interrupted
// fix-resolution pass always leaves a well-formed, resumable manifest.
// Workflow JSON path updates are batched separately and applied once at
// the end of the pass.
package writer

import (
	"github.com/comfygit-ai/comfygit-core/internal/analysiscache"
	"github.com/comfygit-ai/comfygit-core/internal/manifest"
	"github.com/comfygit-ai/comfygit-core/internal/workflow"
)

// NodeDecision is one user answer to an unresolved or ambiguous node
// type: either a package id to bind it to, or Skip to record it as
// deliberately unresolvable.
type NodeDecision struct {
	WorkflowName string
	NodeType     string
	PackageID    string
	Skip         bool
}

// ModelDecision is one user answer for a dedup group: a resolution
// (possibly a download intent) or an explicit skip that leaves the
// group unresolved with no sources.
type ModelDecision struct {
	WorkflowName string
	Group        analysiscache.ModelGroup
	Resolution   *analysiscache.ModelResolution // nil means leave unresolved, no sources
	Optional     bool                            // overrides the category's default criticality
}

// SourceLookup resolves a hash's download origins for the global models
// table. Writer does not take one: it reads sources from its
// modelrepo.Repository (Repo.GetSources).
type SourceLookup func(hash string) []manifest.ModelSource

// PendingPathUpdate is one queued workflow-JSON widget rewrite, recorded
// as model decisions are applied and drained in one pass by
// ApplyBatchPathUpdates at the end of a fix-resolution run.
type PendingPathUpdate struct {
	WorkflowName string
	Ref          workflow.WorkflowNodeWidgetRef
	NewValue     string
}
