package strategy

import (
	"context"

	"github.com/comfygit-ai/comfygit-core/internal/analysiscache"
)

// NoOpResolver leaves every ambiguous or unresolved node and model
// unresolved, matching comfydock_core's NoOpResolver ("Return empty
// dict - leave all unresolved").
type NoOpResolver struct{}

func (NoOpResolver) ResolveUnknownNode(ctx context.Context, nodeType string, candidates []string) (*ResolvedNodePackage, error) {
	return nil, nil
}

func (NoOpResolver) ResolveModel(ctx context.Context, group analysiscache.ModelGroup, candidates []string) (*ResolvedModel, error) {
	return nil, nil
}

var _ NodeResolutionStrategy = NoOpResolver{}
var _ ModelResolutionStrategy = NoOpResolver{}
