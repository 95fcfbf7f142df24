package noderegistry

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/comfygit-ai/comfygit-core/engine/core"
)

// Mirror is the read-only, in-memory node-type → package mapping. It is
// loaded wholesale at startup and never mutated in place; a reload
// replaces the whole snapshot under the lock, mirroring the teacher's
// ConfigRegistry's RWMutex-guarded map-of-maps shape.
type Mirror struct {
	mu sync.RWMutex

	packages         map[string]Package
	mappings         map[string]Mapping
	githubToRegistry map[string]Package
}

// Load reads a prepared node-mapping JSON file from path on fs and
// returns a populated Mirror.
func Load(fs afero.Fs, path string) (*Mirror, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, core.NewError(err, core.ErrNotFound, map[string]any{
			"kind": "node-mapping-file",
			"id":   path,
		})
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, core.NewError(err, core.ErrModelIndexCorrupt, map[string]any{
			"path": path,
		})
	}
	m := &Mirror{
		packages:         f.Packages,
		mappings:         f.Mappings,
		githubToRegistry: f.GitHubToRegistry,
	}
	if m.packages == nil {
		m.packages = map[string]Package{}
	}
	if m.mappings == nil {
		m.mappings = map[string]Mapping{}
	}
	if m.githubToRegistry == nil {
		m.githubToRegistry = map[string]Package{}
	}
	return m, nil
}

// Reload atomically swaps the mirror's contents for the file at path,
// read freshly from fs. Existing readers mid-lookup are unaffected — they
// hold the RLock for the duration of a single call.
func (m *Mirror) Reload(fs afero.Fs, path string) error {
	fresh, err := Load(fs, path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages = fresh.packages
	m.mappings = fresh.mappings
	m.githubToRegistry = fresh.githubToRegistry
	return nil
}

// Package returns the package registered under id, if any.
func (m *Mirror) Package(id string) (Package, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pkg, ok := m.packages[id]
	return pkg, ok
}

// All returns every package in the mirror, in no particular order.
func (m *Mirror) All() []Package {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Package, 0, len(m.packages))
	for _, pkg := range m.packages {
		out = append(out, pkg)
	}
	return out
}

// MappingFor performs an exact signature-index lookup.
func (m *Mirror) MappingFor(signatureKey string) (Mapping, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mapping, ok := m.mappings[signatureKey]
	return mapping, ok
}

// FuzzyMappings returns every signature-index key containing needle as a
// substring — the resolver's tier-4 fuzzy fallback after an exact and a
// type-only lookup have both missed.
func (m *Mirror) FuzzyMappings(needle string) map[string]Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string]Mapping{}
	for key, mapping := range m.mappings {
		if strings.Contains(key, needle) {
			out[key] = mapping
		}
	}
	return out
}

// LookupByNodeType performs the two-phase lookup grounded on the
// original's node_lookup_service: first every signature-index key whose
// type prefix ("<type>::") matches exactly, falling back to a
// type-only ("<type>::_") sentinel entry if present.
func (m *Mirror) LookupByNodeType(nodeType string) []PackageRef {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := nodeType + "::"
	var refs []PackageRef
	seen := map[string]bool{}
	for key, mapping := range m.mappings {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if seen[mapping.PackageID] {
			continue
		}
		seen[mapping.PackageID] = true
		refs = append(refs, PackageRef{PackageID: mapping.PackageID, Versions: mapping.Versions})
	}
	if len(refs) > 0 {
		return refs
	}
	if mapping, ok := m.mappings[nodeType+"::_"]; ok {
		return []PackageRef{{PackageID: mapping.PackageID, Versions: mapping.Versions}}
	}
	return nil
}

// PackageByGitHubURL resolves a (possibly SSH or unnormalized) GitHub
// repository URL to its registry package, if the mirror's
// github_to_registry table carries an entry for the normalized form.
func (m *Mirror) PackageByGitHubURL(rawURL string) (Package, bool) {
	normalized := NormalizeGitHubURL(rawURL)
	if normalized == "" {
		return Package{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	pkg, ok := m.githubToRegistry[normalized]
	return pkg, ok
}

// Count returns the number of packages in the mirror.
func (m *Mirror) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.packages)
}
