package analysiscache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchInvalidator(t *testing.T) {
	t.Run("Should invalidate the cached entry when the watched file is rewritten", func(t *testing.T) {
		ctx := context.Background()
		fs := afero.NewOsFs()
		c := newTestCache(t)
		dir := t.TempDir()
		path := writeWorkflowFile(t, dir, "w.json", `{}`)
		require.NoError(t, c.Set(ctx, fs, "env1", "w", path, "m1", &Dependencies{}, nil))

		w, err := NewWatchInvalidator(c, "env1", dir)
		require.NoError(t, err)
		t.Cleanup(func() { w.Close() })

		time.Sleep(20 * time.Millisecond)
		require.NoError(t, afero.WriteFile(fs, path, []byte(`{"nodes":[{"id":"1"}]}`), 0o644))

		require.Eventually(t, func() bool {
			entry, err := c.Get(ctx, fs, "env1", "w", path, "m1")
			return err == nil && entry.Dependencies == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Should derive the workflow name from a path", func(t *testing.T) {
		assert.Equal(t, "portrait", workflowNameFromPath(filepath.Join("a", "b", "portrait.json")))
		assert.Equal(t, "noext", workflowNameFromPath("noext"))
	})
}
