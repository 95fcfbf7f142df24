package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExportPortable(t *testing.T) {
	t.Run("Should strip the environment root prefix from every path", func(t *testing.T) {
		m := New()
		m.GlobalModels["h"] = GlobalModel{Hash: "h", RelativePath: "/home/user/env/checkpoints/a.safetensors"}
		m.Workflows["w"] = WorkflowEntry{
			Name: "w", Path: "/home/user/env/workflows/w.json",
			Models: []WorkflowModel{{Filename: "a.safetensors", RelativePath: "/home/user/env/checkpoints/a.safetensors"}},
		}

		pm := ExportPortable(m, "/home/user/env")

		assert.Equal(t, "checkpoints/a.safetensors", pm.GlobalModels["h"].RelativePath)
		assert.Equal(t, "workflows/w.json", pm.Workflows["w"].Path)
		assert.Equal(t, "checkpoints/a.safetensors", pm.Workflows["w"].Models[0].RelativePath)
	})

	t.Run("Should leave already-relative paths untouched", func(t *testing.T) {
		m := New()
		m.GlobalModels["h"] = GlobalModel{Hash: "h", RelativePath: "checkpoints/a.safetensors"}
		pm := ExportPortable(m, "/home/user/env")
		assert.Equal(t, "checkpoints/a.safetensors", pm.GlobalModels["h"].RelativePath)
	})
}

func TestImportPortable(t *testing.T) {
	t.Run("Should reconstruct a full Manifest from a portable projection", func(t *testing.T) {
		pm := PortableManifest{
			Nodes:        map[string]NodeInstall{"pkg-a": {PackageID: "pkg-a", Version: "1.0.0"}},
			GlobalModels: map[string]GlobalModel{"h": {Hash: "h"}},
			Workflows:    map[string]WorkflowEntry{"w": {Name: "w", Path: "workflows/w.json"}},
		}
		m := ImportPortable(pm)
		assert.Contains(t, m.Nodes, "pkg-a")
		assert.Contains(t, m.GlobalModels, "h")
		assert.Contains(t, m.Workflows, "w")
	})
}
