package analysiscache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfygit-ai/comfygit-core/internal/workflow"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func writeWorkflowFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), path, []byte(content), 0o644))
	return path
}

func TestCache_GetSet(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewOsFs()

	t.Run("Should report a full miss for a never-cached workflow", func(t *testing.T) {
		c := newTestCache(t)
		dir := t.TempDir()
		path := writeWorkflowFile(t, dir, "w.json", `{"nodes":[]}`)

		entry, err := c.Get(ctx, fs, "env1", "w", path, "manifest-hash-1")
		require.NoError(t, err)
		assert.Nil(t, entry.Dependencies)
	})

	t.Run("Should hit on the fast mtime+size path after Set", func(t *testing.T) {
		c := newTestCache(t)
		dir := t.TempDir()
		path := writeWorkflowFile(t, dir, "w.json", `{"nodes":[]}`)

		deps := &Dependencies{BuiltinNodes: []workflow.Node{{ID: "1", Type: "KSampler"}}}
		res := &ResolutionResult{WorkflowName: "w"}
		require.NoError(t, c.Set(ctx, fs, "env1", "w", path, "manifest-hash-1", deps, res))

		entry, err := c.Get(ctx, fs, "env1", "w", path, "manifest-hash-1")
		require.NoError(t, err)
		require.NotNil(t, entry.Dependencies)
		require.Len(t, entry.Dependencies.BuiltinNodes, 1)
		require.NotNil(t, entry.Resolution)
		assert.Equal(t, "w", entry.Resolution.WorkflowName)
	})

	t.Run("Should return a partial hit when the manifest hash no longer matches", func(t *testing.T) {
		c := newTestCache(t)
		dir := t.TempDir()
		path := writeWorkflowFile(t, dir, "w.json", `{"nodes":[]}`)

		deps := &Dependencies{}
		require.NoError(t, c.Set(ctx, fs, "env1", "w", path, "manifest-hash-1", deps, &ResolutionResult{WorkflowName: "w"}))

		entry, err := c.Get(ctx, fs, "env1", "w", path, "manifest-hash-2")
		require.NoError(t, err)
		require.NotNil(t, entry.Dependencies)
		assert.Nil(t, entry.Resolution)
	})

	t.Run("Should fall back to content hashing when mtime moved but bytes are unchanged", func(t *testing.T) {
		c := newTestCache(t)
		dir := t.TempDir()
		path := writeWorkflowFile(t, dir, "w.json", `{"nodes":[]}`)

		deps := &Dependencies{}
		require.NoError(t, c.Set(ctx, fs, "env1", "w", path, "manifest-hash-1", deps, nil))

		// touch the file with identical content and a later mtime, bypassing the session map
		later := time.Now().Add(2 * time.Second)
		require.NoError(t, afero.WriteFile(fs, path, []byte(`{"nodes":[]}`), 0o644))
		require.NoError(t, fs.Chtimes(path, later, later))

		// a second Cache sharing the same backing store but an independent
		// session map, per §4.5's "two instances... share the backing store"
		session2, err := lru.New[string, sessionEntry](sessionMapCapacity)
		require.NoError(t, err)
		c2 := &Cache{db: c.db, psql: c.psql, session: session2}

		entry, err := c2.Get(ctx, fs, "env1", "w", path, "manifest-hash-1")
		require.NoError(t, err)
		require.NotNil(t, entry.Dependencies)
	})

	t.Run("Should report a full miss when file content actually changed", func(t *testing.T) {
		c := newTestCache(t)
		dir := t.TempDir()
		path := writeWorkflowFile(t, dir, "w.json", `{"nodes":[]}`)
		require.NoError(t, c.Set(ctx, fs, "env1", "w", path, "manifest-hash-1", &Dependencies{}, nil))

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, afero.WriteFile(fs, path, []byte(`{"nodes":[{"id":"1"}]}`), 0o644))

		entry, err := c.Get(ctx, fs, "env1", "w", path, "manifest-hash-1")
		require.NoError(t, err)
		assert.Nil(t, entry.Dependencies)
	})
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewOsFs()

	t.Run("Should drop a single named entry", func(t *testing.T) {
		c := newTestCache(t)
		dir := t.TempDir()
		path := writeWorkflowFile(t, dir, "w.json", `{}`)
		require.NoError(t, c.Set(ctx, fs, "env1", "w", path, "m1", &Dependencies{}, nil))

		require.NoError(t, c.Invalidate(ctx, "env1", "w"))

		entry, err := c.Get(ctx, fs, "env1", "w", path, "m1")
		require.NoError(t, err)
		assert.Nil(t, entry.Dependencies)
	})

	t.Run("Should drop every entry for an environment when name is empty", func(t *testing.T) {
		c := newTestCache(t)
		dir := t.TempDir()
		pathA := writeWorkflowFile(t, dir, "a.json", `{}`)
		pathB := writeWorkflowFile(t, dir, "b.json", `{}`)
		require.NoError(t, c.Set(ctx, fs, "env1", "a", pathA, "m1", &Dependencies{}, nil))
		require.NoError(t, c.Set(ctx, fs, "env1", "b", pathB, "m1", &Dependencies{}, nil))

		require.NoError(t, c.Invalidate(ctx, "env1", ""))

		entryA, err := c.Get(ctx, fs, "env1", "a", pathA, "m1")
		require.NoError(t, err)
		assert.Nil(t, entryA.Dependencies)
		entryB, err := c.Get(ctx, fs, "env1", "b", pathB, "m1")
		require.NoError(t, err)
		assert.Nil(t, entryB.Dependencies)
	})
}
