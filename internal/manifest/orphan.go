package manifest

import (
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"

	"github.com/comfygit-ai/comfygit-core/engine/core"
)

// ValidateFields runs struct-tag validation over every row of the
// manifest's tables, catching malformed individual entries (missing
// version, an unrecognized source kind, a zero-value path) before
// CheckInvariants looks at cross-table references between them.
func ValidateFields(m *Manifest) error {
	v := validator.New()
	for id, n := range m.Nodes {
		n.PackageID = id
		if err := v.Struct(n); err != nil {
			return core.NewError(err, core.ErrManifestParse, map[string]any{"node": id})
		}
	}
	for hash, gm := range m.GlobalModels {
		gm.Hash = hash
		if err := v.Struct(gm); err != nil {
			return core.NewError(err, core.ErrManifestParse, map[string]any{"model": hash})
		}
	}
	for name, we := range m.Workflows {
		we.Name = name
		if err := v.Struct(we); err != nil {
			return core.NewError(err, core.ErrManifestParse, map[string]any{"workflow": name})
		}
	}
	return nil
}

// CheckInvariants validates the cross-table references a bare TOML decode
// cannot: every resolved WorkflowModel hash must have a matching
// GlobalModels row, and every non-skip custom_node_map entry must name a
// package present in Nodes.
func CheckInvariants(m *Manifest) error {
	for name, entry := range m.Workflows {
		for _, wm := range entry.Models {
			if wm.Hash == "" {
				continue
			}
			if _, ok := m.GlobalModels[wm.Hash]; !ok {
				return core.NewError(nil, core.ErrManifestConflict, map[string]any{
					"workflow": name,
					"filename": wm.Filename,
					"hash":     wm.Hash,
					"reason":   "resolved workflow model hash has no row in the global models table",
				})
			}
		}
		for nodeType, v := range entry.CustomNodeMap {
			if v.Skip || v.PackageID == "" {
				continue
			}
			if _, ok := m.Nodes[v.PackageID]; !ok {
				return core.NewError(nil, core.ErrManifestConflict, map[string]any{
					"workflow":  name,
					"node_type": nodeType,
					"package":   v.PackageID,
					"reason":    "custom_node_map references a package id absent from the nodes table",
				})
			}
		}
	}
	return nil
}

// PruneOrphanGlobalModels removes every GlobalModels row whose hash is no
// longer referenced by any workflow's models list and returns the removed
// hashes. The global table is reference-counted implicitly: a hash earns
// its row by being someone's resolution target, and loses it the moment
// the last referencing workflow model is removed or re-resolved elsewhere.
func PruneOrphanGlobalModels(m *Manifest) []string {
	referenced := map[string]bool{}
	for _, entry := range m.Workflows {
		for _, wm := range entry.Models {
			if wm.Hash != "" {
				referenced[wm.Hash] = true
			}
		}
	}

	var removed []string
	for hash := range m.GlobalModels {
		if !referenced[hash] {
			removed = append(removed, hash)
			delete(m.GlobalModels, hash)
		}
	}
	return removed
}

// PruneMissingWorkflows removes every workflow entry whose path no longer
// exists on disk and returns the removed names. A workflow JSON file that
// has been deleted or moved outside ComfyGit's awareness leaves behind a
// manifest entry pointing at nothing; save-time pruning keeps the manifest
// from silently accumulating references to files the resolver can never
// revisit.
func PruneMissingWorkflows(fs afero.Fs, m *Manifest) []string {
	var removed []string
	for name, entry := range m.Workflows {
		exists, err := afero.Exists(fs, entry.Path)
		if err != nil || !exists {
			removed = append(removed, name)
			delete(m.Workflows, name)
		}
	}
	return removed
}
