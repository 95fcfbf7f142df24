package reconciler

import (
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/comfygit-ai/comfygit-core/pkg/config"
)

var ignoredModelDirNames = map[string]bool{
	"__pycache__": true, "temp": true, "tmp": true,
}

// modelDirEntry is one category directory mapped into the host's extra
// model paths configuration.
type modelDirEntry struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// modelPathConfig is the written shape of layout.ExtraModelPathsFile: one
// base path plus every category directory it serves, recorded as a
// sorted slice (not a map) so re-marshaling the same logical content
// always produces identical bytes.
type modelPathConfig struct {
	BasePath    string          `toml:"base_path"`
	IsDefault   bool            `toml:"is_default"`
	Directories []modelDirEntry `toml:"directories"`
}

// reconcileModelPaths rewrites layout.ExtraModelPathsFile only if its
// content would actually change, recording that rewrite's
// additions/removals. A pass with nothing to change writes nothing and
// leaves ModelPathsConfigured, ModelPathAdditions and ModelPathRemovals
// unset.
func reconcileModelPaths(fs afero.Fs, cfg *config.EngineConfig, layout Layout, result *SyncResult) error {
	standard := standardDirectories(cfg)
	discovered, err := discoverAdditionalDirectories(fs, layout.ModelsRoot, standard)
	if err != nil {
		return err
	}

	allDirs := dedupeSorted(append(append([]string{}, standard...), discovered...))

	existing, err := loadExistingModelPathConfig(fs, layout.ExtraModelPathsFile)
	if err != nil {
		return err
	}

	added, removed := diffDirectories(existing, allDirs)
	baseChanged := existing == nil || existing.BasePath != layout.ModelsRoot
	if !baseChanged && len(added) == 0 && len(removed) == 0 {
		return nil
	}

	newConfig := modelPathConfig{BasePath: layout.ModelsRoot, IsDefault: true}
	for _, name := range allDirs {
		newConfig.Directories = append(newConfig.Directories, modelDirEntry{Name: name, Path: name + "/"})
	}

	encoded, err := toml.Marshal(newConfig)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, layout.ExtraModelPathsFile, encoded, 0o644); err != nil {
		return err
	}

	result.ModelPathsConfigured = true
	result.ModelPathAdditions = added
	result.ModelPathRemovals = removed
	return nil
}

// standardDirectories collects every loader's configured base directory,
// deduplicated and sorted — the category directories every environment
// needs regardless of what's actually on disk yet.
func standardDirectories(cfg *config.EngineConfig) []string {
	var out []string
	for _, spec := range cfg.ModelLoaderNodes {
		out = append(out, spec.BaseDirs...)
	}
	return dedupeSorted(out)
}

// discoverAdditionalDirectories finds category directories under root
// that aren't already in standard — e.g. a custom loader's private
// subdirectory the config doesn't know about yet.
func discoverAdditionalDirectories(fs afero.Fs, root string, standard []string) ([]string, error) {
	exists, err := afero.DirExists(fs, root)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	standardSet := make(map[string]bool, len(standard))
	for _, d := range standard {
		standardSet[d] = true
	}

	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || standardSet[e.Name()] || strings.HasPrefix(e.Name(), ".") || ignoredModelDirNames[e.Name()] {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func loadExistingModelPathConfig(fs afero.Fs, path string) (*modelPathConfig, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil || !exists {
		return nil, err
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	var cfg modelPathConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func diffDirectories(existing *modelPathConfig, allDirs []string) (added, removed []string) {
	currentSet := make(map[string]bool, len(allDirs))
	for _, d := range allDirs {
		currentSet[d] = true
	}
	existingSet := map[string]bool{}
	if existing != nil {
		for _, e := range existing.Directories {
			existingSet[e.Name] = true
		}
	}
	for d := range currentSet {
		if !existingSet[d] {
			added = append(added, d)
		}
	}
	for d := range existingSet {
		if !currentSet[d] {
			removed = append(removed, d)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func dedupeSorted(values []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
