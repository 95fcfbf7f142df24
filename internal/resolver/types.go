// Package resolver is the Resolver: node resolution, model resolution and
// search-ranking over a parsed workflow's dependencies. It never touches
// disk itself — it reads through the Model Repository and Node Registry
// Mirror handles it is given and returns decisions for the Progressive
// Writer to apply.
package resolver

import (
	"fmt"

	"github.com/comfygit-ai/comfygit-core/engine/core"
	"github.com/comfygit-ai/comfygit-core/internal/manifest"
	"github.com/comfygit-ai/comfygit-core/internal/modelrepo"
	"github.com/comfygit-ai/comfygit-core/internal/noderegistry"
	"github.com/comfygit-ai/comfygit-core/pkg/config"
)

// Context carries everything one resolution pass over a workflow needs:
// what the manifest already says is installed, per-workflow overrides,
// the dedup-scoped session cache, and read-only handles into the
// persistent indexes.
type Context struct {
	InstalledPackages map[string]manifest.NodeInstall
	CustomNodeMap     map[string]manifest.CustomNodeMapEntry
	PreviousModels    map[string]manifest.WorkflowModel // keyed by filename, for tier-0 reuse

	Session *Session
	Repo    *modelrepo.Repository
	Mirror  *noderegistry.Mirror
	Config  *config.EngineConfig
}

// NewContext builds a Context from manifest state for one workflow. The
// manifest-derived maps are cloned rather than aliased: a resolution pass
// runs concurrently with other workflows' passes over the same manifest
// snapshot (each gets its own Context), so mutating CustomNodeMap/
// InstalledPackages inside one pass must never be visible to another
// pass or to the caller's own manifest.Manifest.
//
// previousModels is deep-copied, not just reassigned into a fresh map:
// PreviousModels entries are handed out by pointer to their Sources slice
// (see model resolution's tier-0 reuse), and a plain map-literal copy only
// duplicates the WorkflowModel struct, not the backing arrays its Nodes
// and Sources slices point into — a mutation through that pointer would
// otherwise corrupt the caller's own manifest.Manifest.
func NewContext(
	installed map[string]manifest.NodeInstall,
	customNodeMap map[string]manifest.CustomNodeMapEntry,
	previousModels []manifest.WorkflowModel,
	repo *modelrepo.Repository,
	mirror *noderegistry.Mirror,
	cfg *config.EngineConfig,
) (*Context, error) {
	prev := make(map[string]manifest.WorkflowModel, len(previousModels))
	for _, m := range previousModels {
		isolated, err := core.DeepCopy(m)
		if err != nil {
			return nil, fmt.Errorf("isolating previous model %q: %w", m.Filename, err)
		}
		prev[isolated.Filename] = isolated
	}
	return &Context{
		InstalledPackages: core.CloneMap(installed),
		CustomNodeMap:     core.CloneMap(customNodeMap),
		PreviousModels:    prev,
		Session:           NewSession(),
		Repo:              repo,
		Mirror:            mirror,
		Config:            cfg,
	}, nil
}

// SearchResult is one ranked candidate from SearchPackages, with the
// confidence label §4.6 defines over the numeric score.
type SearchResult struct {
	Package    noderegistry.Package
	Score      float64
	Confidence string
}

// Node match-type constants, written into analysiscache.NodeResolution.
const (
	MatchSession    = "session"
	MatchOverride   = "override"
	MatchProperties = "properties"
	MatchRegistry   = "registry"
)

// Model match-type constants, written into analysiscache.ModelResolution.
const (
	MatchManifestReuse   = "manifest_reuse"
	MatchExactPath       = "exact_path"
	MatchReconstructed   = "reconstructed_path"
	MatchCaseInsensitive = "case_insensitive"
	MatchFilenameOnly    = "filename_only"
	MatchDownloadIntent  = "download_intent"
)
