package noderegistry

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMappingJSON = `{
	"packages": {
		"comfyui-depth-anything-v2": {
			"id": "comfyui-depth-anything-v2",
			"display_name": "ComfyUI DepthAnythingV2",
			"versions": {"1.0.0": {"download_url": "https://example.com/v1"}}
		}
	},
	"mappings": {
		"DownloadAndLoadDepthAnythingV2Model::sig-a": {"package_id": "comfyui-depth-anything-v2", "versions": ["1.0.0"]},
		"DownloadAndLoadDepthAnythingV2Model::_": {"package_id": "comfyui-depth-anything-v2", "versions": ["1.0.0"]}
	},
	"github_to_registry": {
		"https://github.com/kijai/ComfyUI-DepthAnythingV2": {"id": "comfyui-depth-anything-v2"}
	}
}`

func newTestMirror(t *testing.T) *Mirror {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/mapping.json", []byte(testMappingJSON), 0o644))
	m, err := Load(fs, "/mapping.json")
	require.NoError(t, err)
	return m
}

func TestMirror_Load(t *testing.T) {
	t.Run("Should populate packages, mappings and github index", func(t *testing.T) {
		m := newTestMirror(t)
		assert.Equal(t, 1, m.Count())

		pkg, ok := m.Package("comfyui-depth-anything-v2")
		require.True(t, ok)
		assert.Equal(t, "ComfyUI DepthAnythingV2", pkg.DisplayName)
	})

	t.Run("Should error on malformed JSON", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte("not json"), 0o644))
		_, err := Load(fs, "/bad.json")
		assert.Error(t, err)
	})

	t.Run("Should error when the file is missing", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		_, err := Load(fs, "/missing.json")
		assert.Error(t, err)
	})
}

func TestMirror_MappingFor(t *testing.T) {
	t.Run("Should find an exact signature match", func(t *testing.T) {
		m := newTestMirror(t)
		mapping, ok := m.MappingFor("DownloadAndLoadDepthAnythingV2Model::sig-a")
		require.True(t, ok)
		assert.Equal(t, "comfyui-depth-anything-v2", mapping.PackageID)
	})
}

func TestMirror_LookupByNodeType(t *testing.T) {
	t.Run("Should find refs by exact type prefix before falling back to type-only", func(t *testing.T) {
		m := newTestMirror(t)
		refs := m.LookupByNodeType("DownloadAndLoadDepthAnythingV2Model")
		require.Len(t, refs, 1)
		assert.Equal(t, "comfyui-depth-anything-v2", refs[0].PackageID)
	})

	t.Run("Should return nil for an unknown type", func(t *testing.T) {
		m := newTestMirror(t)
		assert.Nil(t, m.LookupByNodeType("TotallyUnknownNode"))
	})
}

func TestMirror_FuzzyMappings(t *testing.T) {
	t.Run("Should match signature keys containing the needle", func(t *testing.T) {
		m := newTestMirror(t)
		matches := m.FuzzyMappings("DepthAnything")
		assert.Len(t, matches, 2)
	})
}

func TestMirror_PackageByGitHubURL(t *testing.T) {
	t.Run("Should resolve an SSH-form URL via normalization", func(t *testing.T) {
		m := newTestMirror(t)
		pkg, ok := m.PackageByGitHubURL("git@github.com:kijai/ComfyUI-DepthAnythingV2.git")
		require.True(t, ok)
		assert.Equal(t, "comfyui-depth-anything-v2", pkg.ID)
	})

	t.Run("Should report not found for an unmapped repository", func(t *testing.T) {
		m := newTestMirror(t)
		_, ok := m.PackageByGitHubURL("https://github.com/someone/else")
		assert.False(t, ok)
	})
}

func TestMirror_Reload(t *testing.T) {
	t.Run("Should swap the entire snapshot atomically", func(t *testing.T) {
		m := newTestMirror(t)
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/mapping2.json", []byte(`{"packages":{},"mappings":{},"github_to_registry":{}}`), 0o644))
		require.NoError(t, m.Reload(fs, "/mapping2.json"))
		assert.Equal(t, 0, m.Count())
	})
}
