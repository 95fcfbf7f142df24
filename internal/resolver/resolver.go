package resolver

import (
	"context"

	"github.com/comfygit-ai/comfygit-core/internal/analysiscache"
	"github.com/comfygit-ai/comfygit-core/internal/workflow"
)

// Resolve runs both node and model resolution over one parsed workflow's
// non-builtin nodes and extracted model references, producing the full
// result the Progressive Writer applies and the Analysis Cache persists.
// Node types and model groups are each resolved once, deduplicated, even
// though a type or a (filename, node_type) pair may occur on many nodes.
func (c *Context) Resolve(ctx context.Context, workflowName string, nonBuiltin []workflow.Node, modelRefs []workflow.WorkflowNodeWidgetRef) (*analysiscache.ResolutionResult, error) {
	result := &analysiscache.ResolutionResult{WorkflowName: workflowName}

	seen := map[string]bool{}
	for _, node := range nonBuiltin {
		if seen[node.Type] {
			continue
		}
		seen[node.Type] = true

		res, amb := c.ResolveNode(node)
		switch {
		case res != nil:
			result.NodesResolved = append(result.NodesResolved, *res)
		case amb != nil:
			result.NodesAmbiguous = append(result.NodesAmbiguous, *amb)
		default:
			result.NodesUnresolved = append(result.NodesUnresolved, node.Type)
		}
	}

	for _, group := range GroupModelRefs(modelRefs) {
		res, amb, err := c.ResolveModel(ctx, group)
		if err != nil {
			return nil, err
		}
		switch {
		case res != nil:
			result.ModelsResolved = append(result.ModelsResolved, *res)
		case amb != nil:
			result.ModelsAmbiguous = append(result.ModelsAmbiguous, *amb)
		default:
			result.ModelsUnresolved = append(result.ModelsUnresolved, group)
		}
	}

	return result, nil
}
