package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfygit-ai/comfygit-core/internal/workflow"
	"github.com/comfygit-ai/comfygit-core/pkg/config"
)

const sampleWorkflowJSON = `{"nodes":[{"id":"1","type":"CheckpointLoaderSimple","widgets_values":["old.safetensors",1.0]},{"id":"2","type":"CustomLoader","widgets_values":["models/custom/a.safetensors"]}]}`

func TestApplyBatchPathUpdates(t *testing.T) {
	cfg := config.Default()

	t.Run("Should strip the base directory for a builtin loader widget", func(t *testing.T) {
		updates := []PendingPathUpdate{
			{Ref: workflow.WorkflowNodeWidgetRef{NodeID: "1", NodeType: "CheckpointLoaderSimple", WidgetIndex: 0}, NewValue: "checkpoints/new.safetensors"},
		}
		out, n, err := ApplyBatchPathUpdates(cfg, []byte(sampleWorkflowJSON), updates)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Contains(t, string(out), `"new.safetensors"`)
		assert.NotContains(t, string(out), "old.safetensors")
	})

	t.Run("Should preserve a custom node's full path unchanged", func(t *testing.T) {
		updates := []PendingPathUpdate{
			{Ref: workflow.WorkflowNodeWidgetRef{NodeID: "2", NodeType: "CustomLoader", WidgetIndex: 0}, NewValue: "models/custom/b.safetensors"},
		}
		out, n, err := ApplyBatchPathUpdates(cfg, []byte(sampleWorkflowJSON), updates)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Contains(t, string(out), `"models/custom/b.safetensors"`)
	})

	t.Run("Should leave every other byte of the document untouched", func(t *testing.T) {
		updates := []PendingPathUpdate{
			{Ref: workflow.WorkflowNodeWidgetRef{NodeID: "1", NodeType: "CheckpointLoaderSimple", WidgetIndex: 0}, NewValue: "checkpoints/new.safetensors"},
		}
		out, _, err := ApplyBatchPathUpdates(cfg, []byte(sampleWorkflowJSON), updates)
		require.NoError(t, err)
		assert.Contains(t, string(out), `"type":"CustomLoader"`)
		assert.Contains(t, string(out), `,1.0]`)
	})

	t.Run("Should resolve node ids when the nodes container is a JSON object", func(t *testing.T) {
		doc := `{"nodes":{"n1":{"id":"1","type":"CheckpointLoaderSimple","widgets_values":["old.safetensors"]}}}`
		updates := []PendingPathUpdate{
			{Ref: workflow.WorkflowNodeWidgetRef{NodeID: "1", NodeType: "CheckpointLoaderSimple", WidgetIndex: 0}, NewValue: "checkpoints/new.safetensors"},
		}
		out, n, err := ApplyBatchPathUpdates(cfg, []byte(doc), updates)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Contains(t, string(out), `"new.safetensors"`)
	})

	t.Run("Should apply multiple updates across nodes in one pass", func(t *testing.T) {
		updates := []PendingPathUpdate{
			{Ref: workflow.WorkflowNodeWidgetRef{NodeID: "1", NodeType: "CheckpointLoaderSimple", WidgetIndex: 0}, NewValue: "checkpoints/new.safetensors"},
			{Ref: workflow.WorkflowNodeWidgetRef{NodeID: "2", NodeType: "CustomLoader", WidgetIndex: 0}, NewValue: "models/custom/b.safetensors"},
		}
		out, n, err := ApplyBatchPathUpdates(cfg, []byte(sampleWorkflowJSON), updates)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Contains(t, string(out), `"new.safetensors"`)
		assert.Contains(t, string(out), `"models/custom/b.safetensors"`)
	})

	t.Run("Should error on an unknown node id", func(t *testing.T) {
		updates := []PendingPathUpdate{
			{Ref: workflow.WorkflowNodeWidgetRef{NodeID: "999", NodeType: "CheckpointLoaderSimple", WidgetIndex: 0}, NewValue: "x"},
		}
		_, _, err := ApplyBatchPathUpdates(cfg, []byte(sampleWorkflowJSON), updates)
		assert.Error(t, err)
	})

	t.Run("Should error on a widget index out of range", func(t *testing.T) {
		updates := []PendingPathUpdate{
			{Ref: workflow.WorkflowNodeWidgetRef{NodeID: "1", NodeType: "CheckpointLoaderSimple", WidgetIndex: 5}, NewValue: "x"},
		}
		_, _, err := ApplyBatchPathUpdates(cfg, []byte(sampleWorkflowJSON), updates)
		assert.Error(t, err)
	})

	t.Run("Should be a no-op for an empty update list", func(t *testing.T) {
		out, n, err := ApplyBatchPathUpdates(cfg, []byte(sampleWorkflowJSON), nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, sampleWorkflowJSON, string(out))
	})
}

func TestReindent(t *testing.T) {
	t.Run("Should pretty-print with an explicit indent", func(t *testing.T) {
		out := Reindent([]byte(`{"a":1,"b":[1,2]}`), "  ")
		assert.Contains(t, string(out), "\n")
	})
}
