package resolver

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/comfygit-ai/comfygit-core/internal/analysiscache"
	"github.com/comfygit-ai/comfygit-core/internal/manifest"
	"github.com/comfygit-ai/comfygit-core/internal/modelrepo"
	"github.com/comfygit-ai/comfygit-core/internal/workflow"
)

// GroupModelRefs partitions a workflow's model widget refs into dedup
// groups keyed by (widget_value, node_type), preserving first-seen order
// — invariant 6 forbids a workflow from carrying two WorkflowModel
// entries for the same group.
func GroupModelRefs(refs []workflow.WorkflowNodeWidgetRef) []analysiscache.ModelGroup {
	var order []workflow.GroupKey
	groups := map[workflow.GroupKey]*analysiscache.ModelGroup{}
	for _, ref := range refs {
		key := workflow.GroupKey{WidgetValue: ref.WidgetValue, NodeType: ref.NodeType}
		g, ok := groups[key]
		if !ok {
			g = &analysiscache.ModelGroup{Filename: ref.WidgetValue, NodeType: ref.NodeType}
			groups[key] = g
			order = append(order, key)
		}
		g.Refs = append(g.Refs, ref)
	}
	out := make([]analysiscache.ModelGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out
}

// ResolveModel resolves one dedup group through the tiers §4.6 defines:
// manifest reuse, exact path, reconstructed path, case-insensitive path,
// filename-only, unresolved.
func (c *Context) ResolveModel(ctx context.Context, group analysiscache.ModelGroup) (*analysiscache.ModelResolution, *analysiscache.ModelAmbiguity, error) {
	if res, err := c.reuseFromManifest(ctx, group); err != nil {
		return nil, nil, err
	} else if res != nil {
		return res, nil, nil
	}

	if loc, ok, err := c.Repo.FindLocationByPath(ctx, group.Filename); err != nil {
		return nil, nil, err
	} else if ok {
		return modelResolutionFromLocationValue(group, *loc, MatchExactPath, 1.0), nil, nil
	}

	if res, amb, err := c.resolveReconstructedPath(ctx, group); err != nil {
		return nil, nil, err
	} else if res != nil || amb != nil {
		return res, amb, nil
	}

	if locs, err := c.Repo.FindLocationsByPathCaseInsensitive(ctx, group.Filename); err != nil {
		return nil, nil, err
	} else if res, amb := ambiguateLocations(group, locs, MatchCaseInsensitive, 0.8); res != nil || amb != nil {
		return res, amb, nil
	}

	filename := path.Base(strings.ReplaceAll(group.Filename, "\\", "/"))
	if locs, err := c.Repo.FindLocationsByFilename(ctx, filename); err != nil {
		return nil, nil, err
	} else if res, amb := ambiguateLocations(group, locs, MatchFilenameOnly, 0.7); res != nil || amb != nil {
		return res, amb, nil
	}

	return nil, nil, nil
}

// reuseFromManifest looks for a previous WorkflowModel entry under the
// same filename whose hash still resolves in the repository, or a
// preserved download intent (an unresolved entry that already carries a
// target path and source) — both carry forward untouched rather than
// re-walking the repository. A stale hash (the model file was since
// removed from the repository) falls through to the path-based tiers
// instead of being trusted blindly.
func (c *Context) reuseFromManifest(ctx context.Context, group analysiscache.ModelGroup) (*analysiscache.ModelResolution, error) {
	prev, ok := c.PreviousModels[group.Filename]
	if !ok {
		return nil, nil
	}
	if prev.Status == manifest.StatusUnresolved && prev.RelativePath != "" {
		var source *manifest.ModelSource
		if len(prev.Sources) > 0 {
			source = &prev.Sources[0]
		}
		return &analysiscache.ModelResolution{
			ModelGroup: group,
			MatchType:  MatchDownloadIntent,
			TargetPath: prev.RelativePath,
			Source:     source,
		}, nil
	}
	if prev.Hash == "" {
		return nil, nil
	}
	if _, ok, err := c.Repo.FindByHash(ctx, prev.Hash); err != nil {
		return nil, err
	} else if !ok {
		return nil, nil
	}
	return &analysiscache.ModelResolution{
		ModelGroup: group,
		Hash:       prev.Hash,
		MatchType:  MatchManifestReuse,
		Confidence: 1.0,
	}, nil
}

// resolveReconstructedPath tries "<base>/<widget_value>" for every base
// directory the group's node type's loader spec configures.
func (c *Context) resolveReconstructedPath(ctx context.Context, group analysiscache.ModelGroup) (*analysiscache.ModelResolution, *analysiscache.ModelAmbiguity, error) {
	spec, ok := c.Config.ModelLoaderNodes[group.NodeType]
	if !ok || len(spec.BaseDirs) == 0 {
		return nil, nil, nil
	}
	var locs []modelrepo.Location
	for _, base := range spec.BaseDirs {
		candidate := base + "/" + group.Filename
		loc, ok, err := c.Repo.FindLocationByPath(ctx, candidate)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			locs = append(locs, *loc)
		}
	}
	res, amb := ambiguateLocations(group, locs, MatchReconstructed, 0.9)
	return res, amb, nil
}

func ambiguateLocations(group analysiscache.ModelGroup, locs []modelrepo.Location, matchType string, confidence float64) (*analysiscache.ModelResolution, *analysiscache.ModelAmbiguity) {
	switch len(locs) {
	case 0:
		return nil, nil
	case 1:
		loc := locs[0]
		return modelResolutionFromLocationValue(group, loc, matchType, confidence), nil
	default:
		hashes := make([]string, len(locs))
		for i, loc := range locs {
			hashes[i] = loc.Hash
		}
		sort.Strings(hashes)
		return nil, &analysiscache.ModelAmbiguity{ModelGroup: group, Candidates: dedupStrings(hashes)}
	}
}

func modelResolutionFromLocationValue(group analysiscache.ModelGroup, loc modelrepo.Location, matchType string, confidence float64) *analysiscache.ModelResolution {
	return &analysiscache.ModelResolution{
		ModelGroup: group,
		Hash:       loc.Hash,
		MatchType:  matchType,
		Confidence: confidence,
	}
}
