// Package reconciler walks a loaded manifest against an environment's
// filesystem state and produces a SyncResult: custom node packages to
// install, disable or remove, and whether the host's model path
// configuration needs rewriting. It never touches workflow JSON — that
// remains the Progressive Writer's concern — and it never runs pip/uv or
// clones a git repository itself; those are external-collaborator steps
// the caller performs once SyncResult says they're needed.
package reconciler

import "github.com/comfygit-ai/comfygit-core/internal/manifest"

// Policy carries the host-specific choices reconciliation needs that
// aren't recorded in the manifest itself.
type Policy struct {
	// RemoveExtra, when true, deletes an on-disk registry/git custom node
	// directory that has no manifest entry. When false, the directory is
	// left alone and reported via SyncResult.NodesWarned.
	RemoveExtra bool

	// SystemNodeAllowlist names custom node directories that reconcile
	// never reports or touches — infrastructure nodes like the host's own
	// management node, symlinked into every environment outside the
	// manifest's tracking.
	SystemNodeAllowlist []string
}

func (p Policy) isSystemNode(name string) bool {
	for _, n := range p.SystemNodeAllowlist {
		if n == name {
			return true
		}
	}
	return false
}

// Layout locates the on-disk directories and files a reconcile pass
// reads and writes.
type Layout struct {
	CustomNodesDir      string // ComfyUI's custom_nodes directory
	ModelsRoot          string // the shared models root, organized by category
	ExtraModelPathsFile string // the host's extra-model-paths configuration file
}

// PlannedNodeInstall is a custom node the manifest names that isn't
// present on disk; installing it is delegated to an external
// collaborator (source checkout, registry download, or git clone).
type PlannedNodeInstall struct {
	PackageID string
	Source    manifest.SourceKind
	Version   string
}

// SyncResult is the outcome of one reconcile pass across all three axes:
// python dependencies (recorded only), custom nodes, and model path
// configuration.
type SyncResult struct {
	PythonDepsSynced bool

	NodesToInstall  []PlannedNodeInstall
	NodesDisabled   []string
	NodesRemoved    []string
	NodesWarned     []string // extra registry/git node kept because Policy.RemoveExtra is false
	DevNodesMissing []string // manifest dev nodes whose directory no longer exists

	ModelPathsConfigured bool
	ModelPathAdditions   []string
	ModelPathRemovals    []string

	Errors  []string
	Success bool
}

// HasChanges reports whether this pass found anything to install,
// disable, remove, or reconfigure.
func (r SyncResult) HasChanges() bool {
	return len(r.NodesToInstall) > 0 || len(r.NodesDisabled) > 0 ||
		len(r.NodesRemoved) > 0 || r.ModelPathsConfigured
}
