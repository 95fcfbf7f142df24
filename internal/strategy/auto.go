package strategy

import (
	"context"

	"github.com/comfygit-ai/comfygit-core/internal/analysiscache"
)

// AutoResolver picks the first candidate for every ambiguous node type
// or model group, matching comfydock_core's AutoResolver ("Automatically
// resolve to first candidate for each ambiguous model"). It never
// invents a candidate: with none offered, it leaves the entry
// unresolved exactly like NoOpResolver would.
type AutoResolver struct{}

func (AutoResolver) ResolveUnknownNode(ctx context.Context, nodeType string, candidates []string) (*ResolvedNodePackage, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	return &ResolvedNodePackage{PackageID: candidates[0], MatchType: "auto"}, nil
}

func (AutoResolver) ResolveModel(ctx context.Context, group analysiscache.ModelGroup, candidates []string) (*ResolvedModel, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	return &ResolvedModel{
		Resolution: &analysiscache.ModelResolution{
			ModelGroup: group,
			Hash:       candidates[0],
			MatchType:  "auto",
			Confidence: 1.0,
		},
	}, nil
}

var _ NodeResolutionStrategy = AutoResolver{}
var _ ModelResolutionStrategy = AutoResolver{}
