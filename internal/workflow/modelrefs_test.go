package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfygit-ai/comfygit-core/pkg/config"
)

func TestExtractModelRefs(t *testing.T) {
	cfg := config.Default()

	t.Run("Should match a known model-loader's configured widget index regardless of value shape", func(t *testing.T) {
		w := &Workflow{Nodes: []Node{
			{ID: "1", Type: "CheckpointLoaderSimple", WidgetsValues: []WidgetValue{
				{Kind: WidgetText, Text: "checkpoints/sd15.safetensors"},
			}},
		}}
		refs := ExtractModelRefs(w, cfg)
		require.Len(t, refs, 1)
		assert.Equal(t, "checkpoints/sd15.safetensors", refs[0].WidgetValue)
		assert.Equal(t, "CheckpointLoaderSimple", refs[0].NodeType)
	})

	t.Run("Should match a custom node's widget by extension alone", func(t *testing.T) {
		w := &Workflow{Nodes: []Node{
			{ID: "2", Type: "DownloadAndLoadDepthAnythingV2Model", WidgetsValues: []WidgetValue{
				{Kind: WidgetText, Text: "depth_anything_v2_vits_fp16.safetensors"},
			}},
		}}
		refs := ExtractModelRefs(w, cfg)
		require.Len(t, refs, 1)
		assert.Equal(t, "depth_anything_v2_vits_fp16.safetensors", refs[0].WidgetValue)
	})

	t.Run("Should ignore non-text widget values", func(t *testing.T) {
		w := &Workflow{Nodes: []Node{
			{ID: "3", Type: "KSampler", WidgetsValues: []WidgetValue{
				{Kind: WidgetInt, Int: 20},
				{Kind: WidgetBool, Bool: true},
			}},
		}}
		assert.Empty(t, ExtractModelRefs(w, cfg))
	})

	t.Run("Should ignore text values that neither match an extension nor sit in a loader slot", func(t *testing.T) {
		w := &Workflow{Nodes: []Node{
			{ID: "4", Type: "KSampler", WidgetsValues: []WidgetValue{
				{Kind: WidgetText, Text: "euler"},
			}},
		}}
		assert.Empty(t, ExtractModelRefs(w, cfg))
	})

	t.Run("Should preserve encounter order across multiple nodes", func(t *testing.T) {
		w := &Workflow{Nodes: []Node{
			{ID: "10", Type: "VAELoader", WidgetsValues: []WidgetValue{{Kind: WidgetText, Text: "vae/a.safetensors"}}},
			{ID: "20", Type: "VAELoader", WidgetsValues: []WidgetValue{{Kind: WidgetText, Text: "vae/b.safetensors"}}},
		}}
		refs := ExtractModelRefs(w, cfg)
		require.Len(t, refs, 2)
		assert.Equal(t, "10", refs[0].NodeID)
		assert.Equal(t, "20", refs[1].NodeID)
	})
}
