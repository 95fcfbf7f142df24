package pytorchcfg

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// Versions is one Python-version+backend combination's discovered exact
// package versions.
type Versions struct {
	Torch       string
	TorchVision string
	TorchAudio  string
	Discovered  time.Time
}

// cacheEntry is Versions' on-disk shape: one table per backend, nested
// under a py<major>_<minor>_<patch> section.
type cacheEntry struct {
	Torch       string    `toml:"torch,omitempty"`
	TorchVision string    `toml:"torchvision,omitempty"`
	TorchAudio  string    `toml:"torchaudio,omitempty"`
	Discovered  time.Time `toml:"discovered"`
}

type cacheFile = map[string]map[string]cacheEntry

// Cache is the workspace-level store of PyTorch versions discovered via
// probing, avoiding a repeat probe for a Python version + backend
// combination already seen.
type Cache struct {
	fs   afero.Fs
	path string
}

// NewCache returns a Cache backed by <workspaceDir>/comfygit_cache/pytorch-cache.toml.
func NewCache(fs afero.Fs, workspaceDir string) *Cache {
	return &Cache{fs: fs, path: filepath.Join(workspaceDir, "comfygit_cache", "pytorch-cache.toml")}
}

func sectionKey(pythonVersion string) string {
	return "py" + strings.ReplaceAll(pythonVersion, ".", "_")
}

// GetVersions returns the cached versions for one Python version +
// backend combination, or ok=false if nothing is cached yet.
func (c *Cache) GetVersions(pythonVersion, backend string) (Versions, bool, error) {
	data, err := c.load()
	if err != nil {
		return Versions{}, false, err
	}
	section, ok := data[sectionKey(pythonVersion)]
	if !ok {
		return Versions{}, false, nil
	}
	entry, ok := section[backend]
	if !ok {
		return Versions{}, false, nil
	}
	return Versions{
		Torch: entry.Torch, TorchVision: entry.TorchVision, TorchAudio: entry.TorchAudio,
		Discovered: entry.Discovered,
	}, true, nil
}

// SetVersions records v under pythonVersion+backend, stamping Discovered
// with discoveredAt, and persists the cache immediately.
func (c *Cache) SetVersions(pythonVersion, backend string, v Versions, discoveredAt time.Time) error {
	data, err := c.load()
	if err != nil {
		return err
	}
	key := sectionKey(pythonVersion)
	if data[key] == nil {
		data[key] = map[string]cacheEntry{}
	}
	data[key][backend] = cacheEntry{
		Torch: v.Torch, TorchVision: v.TorchVision, TorchAudio: v.TorchAudio,
		Discovered: discoveredAt,
	}
	return c.save(data)
}

// ClearAll empties the entire cache.
func (c *Cache) ClearAll() error {
	return c.save(cacheFile{})
}

// ClearBackend removes one backend's entry from every Python-version
// section, dropping a section entirely once it's left empty.
func (c *Cache) ClearBackend(backend string) error {
	data, err := c.load()
	if err != nil {
		return err
	}
	changed := false
	for key, section := range data {
		if _, ok := section[backend]; ok {
			delete(section, backend)
			changed = true
			if len(section) == 0 {
				delete(data, key)
			}
		}
	}
	if !changed {
		return nil
	}
	return c.save(data)
}

// load reads the cache file, treating a missing or corrupt file as an
// empty cache rather than an error: per §7's policy for cache parse
// failures, they're rebuilt silently, never surfaced.
func (c *Cache) load() (cacheFile, error) {
	exists, err := afero.Exists(c.fs, c.path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return cacheFile{}, nil
	}
	raw, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		return nil, err
	}
	var data cacheFile
	if err := toml.Unmarshal(raw, &data); err != nil {
		return cacheFile{}, nil
	}
	if data == nil {
		data = cacheFile{}
	}
	return data, nil
}

func (c *Cache) save(data cacheFile) error {
	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	encoded, err := toml.Marshal(data)
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, encoded, 0o644); err != nil {
		return err
	}
	return c.fs.Rename(tmp, c.path)
}
