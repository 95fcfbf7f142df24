// Package contentstore implements the Content Store: a platform-aware,
// content-hashed cache rooted under a configurable directory, organized as
//
//	root/<content-type>/store/<cache-key>/content/
//	root/<content-type>/store/<cache-key>/metadata.json
//	root/<content-type>/index.json
//
// Index writes are atomic (temp file + rename) so a crash mid-write never
// corrupts the index that every other cache key depends on.
package contentstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/otiai10/copy"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"github.com/comfygit-ai/comfygit-core/engine/core"
)

// Entry is one row of a content type's index.json.
type Entry struct {
	CacheKey     string         `json:"cache_key"`
	CachedAt     time.Time      `json:"cached_at"`
	SizeBytes    int64          `json:"size_bytes"`
	ContentHash  string         `json:"content_hash"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	MetadataETag string         `json:"metadata_etag,omitempty"`
}

type index struct {
	Entries map[string]Entry `json:"entries"`
}

// Store is a content-hashed cache for one content type (e.g. "node-archive",
// "python-wheel") rooted under a shared cache directory.
type Store struct {
	fs          afero.Fs
	contentType string
	root        string // <cacheRoot>/<contentType>

	mu sync.Mutex
}

// New returns a Store for contentType, rooted under cacheRoot. cacheRoot is
// normally EngineConfig.CacheRoot — the well-known COMFYGIT_CACHE_DIR
// override, or an OS-appropriate user cache directory, resolved once by
// pkg/config.
func New(fs afero.Fs, cacheRoot, contentType string) *Store {
	return &Store{
		fs:          fs,
		contentType: contentType,
		root:        filepath.Join(cacheRoot, contentType),
	}
}

func (s *Store) indexPath() string {
	return filepath.Join(s.root, "index.json")
}

func (s *Store) storeDir() string {
	return filepath.Join(s.root, "store")
}

func (s *Store) entryDir(key string) string {
	return filepath.Join(s.storeDir(), key)
}

// NewCacheKey derives a filesystem-safe cache key from a human-readable
// name, falling back to a random UUID when name is empty.
func NewCacheKey(name string) string {
	if name == "" {
		return uuid.NewString()
	}
	return slug.Make(name)
}

func (s *Store) loadIndex() (*index, error) {
	data, err := afero.ReadFile(s.fs, s.indexPath())
	if err != nil {
		if isNotExist(err) {
			return &index{Entries: map[string]Entry{}}, nil
		}
		return nil, err
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, core.NewError(err, core.ErrModelIndexCorrupt, map[string]any{
			"path": s.indexPath(),
		})
	}
	if idx.Entries == nil {
		idx.Entries = map[string]Entry{}
	}
	return &idx, nil
}

// writeIndex writes the index atomically: a temp file in the same
// directory, then a rename, so a crash mid-write never leaves a partial
// index.json behind.
func (s *Store) writeIndex(idx *index) error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("creating content-store root: %w", err)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling index: %w", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp index: %w", err)
	}
	if err := s.fs.Rename(tmp, s.indexPath()); err != nil {
		return fmt.Errorf("renaming temp index into place: %w", err)
	}
	return nil
}

// CacheContent removes any prior entry for key, copies src (a directory or
// file on the same afero.Fs) into <key>/content/, computes a content hash
// over the resulting tree, and records the entry in the index.
func (s *Store) CacheContent(key, src string, metadata map[string]any) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.entryDir(key)
	if err := s.fs.RemoveAll(dir); err != nil {
		return Entry{}, fmt.Errorf("clearing prior cache entry %q: %w", key, err)
	}
	contentDir := filepath.Join(dir, "content")
	if err := s.fs.MkdirAll(contentDir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("creating content directory: %w", err)
	}

	if err := copyInto(s.fs, src, contentDir); err != nil {
		return Entry{}, fmt.Errorf("copying content for %q: %w", key, err)
	}

	hash, size, err := hashTree(s.fs, contentDir)
	if err != nil {
		return Entry{}, fmt.Errorf("hashing cached content for %q: %w", key, err)
	}

	entry := Entry{
		CacheKey:     key,
		CachedAt:     now(),
		SizeBytes:    size,
		ContentHash:  hash,
		Metadata:     metadata,
		MetadataETag: core.ETagFromAny(metadata),
	}

	metaPath := filepath.Join(dir, "metadata.json")
	metaBytes, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("marshaling entry metadata: %w", err)
	}
	if err := afero.WriteFile(s.fs, metaPath, metaBytes, 0o644); err != nil {
		return Entry{}, fmt.Errorf("writing entry metadata: %w", err)
	}

	idx, err := s.loadIndex()
	if err != nil {
		return Entry{}, err
	}
	idx.Entries[key] = entry
	if err := s.writeIndex(idx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Get returns the index entry for key, if present.
func (s *Store) Get(key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return Entry{}, false, err
	}
	entry, ok := idx.Entries[key]
	return entry, ok, nil
}

// GetAll returns every entry currently indexed, ordered by cache key.
func (s *Store) GetAll() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(idx.Entries))
	for k := range idx.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, idx.Entries[k])
	}
	return out, nil
}

// Remove deletes a cache entry's content directory and drops it from the index.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.RemoveAll(s.entryDir(key)); err != nil {
		return fmt.Errorf("removing cache entry %q: %w", key, err)
	}
	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	delete(idx.Entries, key)
	return s.writeIndex(idx)
}

// VerifyIntegrity recomputes the content hash for key and reports whether it
// still matches the indexed hash. Callers MAY call this on read; it is never
// performed implicitly (recomputing a multi-gigabyte tree's hash on every
// read would defeat the cache).
func (s *Store) VerifyIntegrity(key string) (bool, error) {
	entry, ok, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, core.NewError(nil, core.ErrNotFound, map[string]any{
			"kind": "content-store-entry",
			"id":   key,
		})
	}
	hash, _, err := hashTree(s.fs, filepath.Join(s.entryDir(key), "content"))
	if err != nil {
		return false, err
	}
	return hash == entry.ContentHash, nil
}

// MetadataMatches reports whether key's cached metadata still matches
// metadata, without a deep comparison — a caller re-deriving the same
// metadata (e.g. a package's resolved version, its source URL) can check
// the entry is still current before trusting the cached content instead
// of re-fetching it.
func (s *Store) MetadataMatches(key string, metadata map[string]any) (bool, error) {
	entry, ok, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, core.NewError(nil, core.ErrNotFound, map[string]any{
			"kind": "content-store-entry",
			"id":   key,
		})
	}
	return entry.MetadataETag == core.ETagFromAny(metadata), nil
}

// ContentDir returns the directory holding the cached content for key,
// whether or not the key is currently indexed — callers that just wrote
// into it via CacheContent use this to locate the result.
func (s *Store) ContentDir(key string) string {
	return filepath.Join(s.entryDir(key), "content")
}

// copyInto copies src (file or directory) into dst. When fs is backed by
// the real OS filesystem, otiai10/copy is used directly for speed; other
// afero backends (e.g. the in-memory fs used by tests) fall back to a
// manual afero-walk copy since otiai10/copy only understands real paths.
func copyInto(fs afero.Fs, src, dst string) error {
	if _, ok := fs.(*afero.OsFs); ok {
		return copy.Copy(src, dst)
	}
	info, err := fs.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		data, err := afero.ReadFile(fs, src)
		if err != nil {
			return err
		}
		if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return afero.WriteFile(fs, dst, data, 0o644)
	}
	return afero.Walk(fs, src, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return fs.MkdirAll(target, 0o755)
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		return afero.WriteFile(fs, target, data, 0o644)
	})
}

// hashTree computes a deterministic BLAKE3 hash over a directory tree:
// every file's path (relative to root) and content are fed into the hasher
// in sorted-path order, so two copies of the same tree hash identically
// regardless of directory-walk order.
func hashTree(fs afero.Fs, root string) (string, int64, error) {
	type fileEntry struct {
		rel string
		abs string
	}
	var files []fileEntry
	var total int64

	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, fileEntry{rel: filepath.ToSlash(rel), abs: path})
		total += fi.Size()
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	h := blake3.New()
	for _, f := range files {
		data, err := afero.ReadFile(fs, f.abs)
		if err != nil {
			return "", 0, err
		}
		_, _ = h.Write([]byte(f.rel))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(data)
	}
	sum := h.Sum(nil)
	return fmt.Sprintf("%x", sum), total, nil
}

func now() time.Time { return time.Now().UTC() }

func isNotExist(err error) bool {
	return err != nil && os.IsNotExist(err)
}
