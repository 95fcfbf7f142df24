package modelrepo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Rescan(t *testing.T) {
	t.Run("Should index every file under the configured roots", func(t *testing.T) {
		repo := newTestRepo(t)
		root := t.TempDir()
		fs := afero.NewOsFs()
		require.NoError(t, fs.MkdirAll(filepath.Join(root, "checkpoints"), 0o755))
		require.NoError(t, afero.WriteFile(fs, filepath.Join(root, "checkpoints", "sd15.safetensors"), []byte("model-bytes"), 0o644))

		result, err := repo.Rescan(context.Background(), fs, []string{root})
		require.NoError(t, err)
		assert.Equal(t, 1, result.FilesScanned)
		assert.Equal(t, 1, result.FilesRehashed)
		assert.Equal(t, 1, result.NewModels)
		assert.Equal(t, 1, result.NewLocations)

		models, err := repo.GetAll(context.Background())
		require.NoError(t, err)
		require.Len(t, models, 1)
		assert.Equal(t, "sd15.safetensors", models[0].Filename)
		assert.Equal(t, "checkpoints", models[0].Category)
	})

	t.Run("Should skip unchanged files on a second rescan", func(t *testing.T) {
		repo := newTestRepo(t)
		root := t.TempDir()
		fs := afero.NewOsFs()
		require.NoError(t, fs.MkdirAll(filepath.Join(root, "loras"), 0o755))
		path := filepath.Join(root, "loras", "l.safetensors")
		require.NoError(t, afero.WriteFile(fs, path, []byte("lora-bytes"), 0o644))

		_, err := repo.Rescan(context.Background(), fs, []string{root})
		require.NoError(t, err)

		second, err := repo.Rescan(context.Background(), fs, []string{root})
		require.NoError(t, err)
		assert.Equal(t, 1, second.FilesSkipped)
		assert.Equal(t, 0, second.FilesRehashed)
	})

	t.Run("Should rehash a file whose content changed even if mtime did not move enough to matter", func(t *testing.T) {
		repo := newTestRepo(t)
		root := t.TempDir()
		fs := afero.NewOsFs()
		require.NoError(t, fs.MkdirAll(filepath.Join(root, "vae"), 0o755))
		path := filepath.Join(root, "vae", "v.safetensors")
		require.NoError(t, afero.WriteFile(fs, path, []byte("v1"), 0o644))
		_, err := repo.Rescan(context.Background(), fs, []string{root})
		require.NoError(t, err)

		require.NoError(t, afero.WriteFile(fs, path, []byte("a completely different and longer payload"), 0o644))
		result, err := repo.Rescan(context.Background(), fs, []string{root})
		require.NoError(t, err)
		assert.Equal(t, 1, result.FilesRehashed)

		models, err := repo.GetAll(context.Background())
		require.NoError(t, err)
		require.Len(t, models, 1)
		assert.EqualValues(t, len("a completely different and longer payload"), models[0].SizeBytes)
	})
}
