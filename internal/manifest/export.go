package manifest

import "strings"

// PortableManifest is the machine-independent projection of a Manifest
// that is safe to hand to another machine or commit as a sharing artifact.
// It carries the same tables as Manifest; ExportPortable's only job is to
// make sure every path in it is environment-relative. The `.pytorch-backend`
// pin lives outside this package (internal/pytorchcfg) and is never part of
// a PortableManifest — the receiving machine re-probes its own backend.
type PortableManifest struct {
	Project      Project
	Nodes        map[string]NodeInstall
	GlobalModels map[string]GlobalModel
	Workflows    map[string]WorkflowEntry
}

// ExportPortable strips the envRoot prefix from workflow and
// relative-path fields, rewriting them relative to envRoot; an absolute
// path outside envRoot is left as it is. A manifest
// built entirely through the resolver/reconciler already stores
// environment-relative paths, so this is a defensive normalization for
// manifests that accumulated an absolute path some other way.
func ExportPortable(m *Manifest, envRoot string) PortableManifest {
	pm := PortableManifest{
		Project:      m.Project,
		Nodes:        cloneNodeMap(m.Nodes),
		GlobalModels: map[string]GlobalModel{},
		Workflows:    map[string]WorkflowEntry{},
	}

	for hash, gm := range m.GlobalModels {
		gm.RelativePath = relativizePath(gm.RelativePath, envRoot)
		pm.GlobalModels[hash] = gm
	}

	for name, we := range m.Workflows {
		we.Path = relativizePath(we.Path, envRoot)
		models := make([]WorkflowModel, len(we.Models))
		for i, wm := range we.Models {
			wm.RelativePath = relativizePath(wm.RelativePath, envRoot)
			models[i] = wm
		}
		we.Models = models
		pm.Workflows[name] = we
	}

	return pm
}

// ImportPortable converts a PortableManifest back into a full Manifest on
// the importing machine; paths are taken as already environment-relative
// and are resolved against the new environment root by the caller's
// filesystem layer, not here.
func ImportPortable(pm PortableManifest) *Manifest {
	return &Manifest{
		Project:      pm.Project,
		Nodes:        cloneNodeMap(pm.Nodes),
		GlobalModels: pm.GlobalModels,
		Workflows:    pm.Workflows,
	}
}

func cloneNodeMap(in map[string]NodeInstall) map[string]NodeInstall {
	out := make(map[string]NodeInstall, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func relativizePath(path, envRoot string) string {
	if envRoot == "" || path == "" {
		return path
	}
	prefix := strings.TrimSuffix(envRoot, "/") + "/"
	return strings.TrimPrefix(path, prefix)
}
