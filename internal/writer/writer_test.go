package writer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfygit-ai/comfygit-core/internal/analysiscache"
	"github.com/comfygit-ai/comfygit-core/internal/manifest"
	"github.com/comfygit-ai/comfygit-core/internal/modelrepo"
	"github.com/comfygit-ai/comfygit-core/internal/resolver"
	"github.com/comfygit-ai/comfygit-core/internal/workflow"
	"github.com/comfygit-ai/comfygit-core/pkg/config"
)

func newTestWriter(t *testing.T) (*Writer, *manifest.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := manifest.NewStore(afero.NewOsFs(), filepath.Join(dir, "pyproject.toml"))

	repoPath := filepath.Join(dir, "models.db")
	repo, err := modelrepo.Open(repoPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	cache, err := analysiscache.Open(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	w := New(store, repo, cache, config.Default(), "default")
	return w, store, dir
}

func seedManifestWorkflow(t *testing.T, store *manifest.Store, dir, name string) *manifest.Manifest {
	t.Helper()
	m := manifest.New()
	workflowPath := filepath.Join(dir, "workflows", name+".json")
	require.NoError(t, afero.NewOsFs().MkdirAll(filepath.Dir(workflowPath), 0o755))
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), workflowPath, []byte(`{"nodes":[]}`), 0o644))
	m.Workflows[name] = manifest.WorkflowEntry{Name: name, Path: workflowPath}
	m.Nodes["comfyui-impact-pack"] = manifest.NodeInstall{PackageID: "comfyui-impact-pack", Version: "1.0.0", Source: manifest.SourceRegistry}
	require.NoError(t, store.Save(context.Background(), m))
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	return loaded
}

func TestWriter_ApplyNodeDecision(t *testing.T) {
	ctx := context.Background()

	t.Run("Should record a custom_node_map binding and append the package to the nodes list", func(t *testing.T) {
		w, store, dir := newTestWriter(t)
		m := seedManifestWorkflow(t, store, dir, "portrait")

		err := w.ApplyNodeDecision(ctx, m, NodeDecision{WorkflowName: "portrait", NodeType: "ImpactNode", PackageID: "comfyui-impact-pack"})
		require.NoError(t, err)

		entry := m.Workflows["portrait"]
		assert.Equal(t, "comfyui-impact-pack", entry.CustomNodeMap["ImpactNode"].PackageID)
		assert.Contains(t, entry.Nodes, "comfyui-impact-pack")

		reloaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Contains(t, reloaded.Workflows["portrait"].Nodes, "comfyui-impact-pack")
	})

	t.Run("Should record a skip without touching the nodes list", func(t *testing.T) {
		w, store, dir := newTestWriter(t)
		m := seedManifestWorkflow(t, store, dir, "portrait")

		err := w.ApplyNodeDecision(ctx, m, NodeDecision{WorkflowName: "portrait", NodeType: "WeirdNode", Skip: true})
		require.NoError(t, err)

		entry := m.Workflows["portrait"]
		assert.True(t, entry.CustomNodeMap["WeirdNode"].Skip)
		assert.Empty(t, entry.Nodes)
	})

	t.Run("Should not duplicate a package id already on the nodes list", func(t *testing.T) {
		w, store, dir := newTestWriter(t)
		m := seedManifestWorkflow(t, store, dir, "portrait")

		require.NoError(t, w.ApplyNodeDecision(ctx, m, NodeDecision{WorkflowName: "portrait", NodeType: "A", PackageID: "comfyui-impact-pack"}))
		require.NoError(t, w.ApplyNodeDecision(ctx, m, NodeDecision{WorkflowName: "portrait", NodeType: "B", PackageID: "comfyui-impact-pack"}))

		assert.Equal(t, []string{"comfyui-impact-pack"}, m.Workflows["portrait"].Nodes)
	})
}

func seedRepoModel(t *testing.T, repo *modelrepo.Repository, rel, content string) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/models/"+rel, []byte(content), 0o644))
	_, err := repo.Rescan(context.Background(), fs, []string{"/models"})
	require.NoError(t, err)
}

func TestWriter_ApplyModelDecision(t *testing.T) {
	ctx := context.Background()

	t.Run("Should insert a resolved model and its global table row", func(t *testing.T) {
		w, store, dir := newTestWriter(t)
		m := seedManifestWorkflow(t, store, dir, "portrait")
		seedRepoModel(t, w.Repo, "checkpoints/sd15.safetensors", "aaa")
		loc, ok, err := w.Repo.FindLocationByPath(ctx, "checkpoints/sd15.safetensors")
		require.NoError(t, err)
		require.True(t, ok)

		group := analysiscache.ModelGroup{
			Filename: "sd15.safetensors", NodeType: "CheckpointLoaderSimple",
			Refs: []workflow.WorkflowNodeWidgetRef{{NodeID: "1", NodeType: "CheckpointLoaderSimple", WidgetIndex: 0, WidgetValue: "sd15.safetensors"}},
		}
		res := &analysiscache.ModelResolution{ModelGroup: group, Hash: loc.Hash, MatchType: resolver.MatchReconstructed, Confidence: 0.9}

		require.NoError(t, w.ApplyModelDecision(ctx, m, ModelDecision{WorkflowName: "portrait", Group: group, Resolution: res}))

		entry := m.Workflows["portrait"]
		require.Len(t, entry.Models, 1)
		assert.Equal(t, manifest.StatusResolved, entry.Models[0].Status)
		assert.Equal(t, loc.Hash, entry.Models[0].Hash)
		assert.Contains(t, m.GlobalModels, loc.Hash)
		assert.Equal(t, "checkpoints", entry.Models[0].Category)
		assert.Equal(t, manifest.CriticalityFlexible, entry.Models[0].Criticality)

		pending := w.Pending()
		require.Contains(t, pending, "portrait")
		assert.Len(t, pending["portrait"], 1)
	})

	t.Run("Should replace a prior unresolved entry sharing the same filename", func(t *testing.T) {
		w, store, dir := newTestWriter(t)
		m := seedManifestWorkflow(t, store, dir, "portrait")
		entry := m.Workflows["portrait"]
		entry.Models = []manifest.WorkflowModel{{Filename: "sd15.safetensors", Status: manifest.StatusUnresolved}}
		m.Workflows["portrait"] = entry

		seedRepoModel(t, w.Repo, "checkpoints/sd15.safetensors", "aaa")
		loc, ok, err := w.Repo.FindLocationByPath(ctx, "checkpoints/sd15.safetensors")
		require.NoError(t, err)
		require.True(t, ok)

		group := analysiscache.ModelGroup{Filename: "sd15.safetensors", NodeType: "CheckpointLoaderSimple"}
		res := &analysiscache.ModelResolution{ModelGroup: group, Hash: loc.Hash, MatchType: resolver.MatchExactPath, Confidence: 1.0}

		require.NoError(t, w.ApplyModelDecision(ctx, m, ModelDecision{WorkflowName: "portrait", Group: group, Resolution: res}))

		models := m.Workflows["portrait"].Models
		require.Len(t, models, 1)
		assert.Equal(t, manifest.StatusResolved, models[0].Status)
	})

	t.Run("Should persist a download intent and invalidate the cache entry", func(t *testing.T) {
		w, store, dir := newTestWriter(t)
		m := seedManifestWorkflow(t, store, dir, "portrait")

		group := analysiscache.ModelGroup{Filename: "missing.safetensors", NodeType: "CheckpointLoaderSimple"}
		source := manifest.ModelSource{URL: "https://example.com/missing.safetensors", Kind: "direct"}
		res := &analysiscache.ModelResolution{ModelGroup: group, MatchType: resolver.MatchDownloadIntent, TargetPath: "checkpoints/missing.safetensors", Source: &source}

		require.NoError(t, w.ApplyModelDecision(ctx, m, ModelDecision{WorkflowName: "portrait", Group: group, Resolution: res}))

		models := m.Workflows["portrait"].Models
		require.Len(t, models, 1)
		assert.Equal(t, manifest.StatusUnresolved, models[0].Status)
		assert.Equal(t, "checkpoints/missing.safetensors", models[0].RelativePath)
		require.Len(t, models[0].Sources, 1)
		assert.Equal(t, source.URL, models[0].Sources[0].URL)
	})

	t.Run("Should mark optional criticality when the decision overrides it", func(t *testing.T) {
		w, store, dir := newTestWriter(t)
		m := seedManifestWorkflow(t, store, dir, "portrait")

		group := analysiscache.ModelGroup{Filename: "extra.safetensors", NodeType: "CheckpointLoaderSimple"}
		require.NoError(t, w.ApplyModelDecision(ctx, m, ModelDecision{WorkflowName: "portrait", Group: group, Optional: true}))

		models := m.Workflows["portrait"].Models
		require.Len(t, models, 1)
		assert.Equal(t, manifest.CriticalityOptional, models[0].Criticality)
		assert.Equal(t, manifest.StatusUnresolved, models[0].Status)
	})
}
