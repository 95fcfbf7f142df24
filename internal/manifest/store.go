package manifest

import (
	"context"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"github.com/comfygit-ai/comfygit-core/engine/core"
)

const lockAcquireTimeout = 10 * time.Second

// Store loads and saves one environment's manifest file under an exclusive
// filesystem lock, so two ComfyGit processes never interleave writes to
// the same pyproject.toml-shaped document.
type Store struct {
	fs       afero.Fs
	path     string
	lockPath string
}

// NewStore returns a Store for the manifest at path. The lock file sits
// alongside it with a ".lock" suffix so the lock survives a manifest file
// that doesn't exist yet (first save of a new environment).
func NewStore(fs afero.Fs, path string) *Store {
	return &Store{
		fs:       fs,
		path:     path,
		lockPath: path + ".lock",
	}
}

// Load reads and parses the manifest, validating its cross-table
// invariants. A missing file is not an error: it returns a fresh, empty
// Manifest for first-run bootstrapping.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	exists, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return nil, core.NewError(err, core.ErrManifestParse, map[string]any{"path": s.path})
	}
	if !exists {
		return New(), nil
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, core.NewError(err, core.ErrManifestParse, map[string]any{"path": s.path})
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := ValidateFields(m); err != nil {
		return nil, err
	}
	if err := CheckInvariants(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Save prunes orphaned state, serializes m, and writes it atomically under
// an exclusive lock: missing-path workflows and unreferenced global models
// are dropped first, then the document is written via a temp-file-plus-
// rename so a crash mid-write never leaves a truncated manifest behind.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	lock := flock.New(s.lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil || !locked {
		return core.NewError(err, core.ErrManifestConflict, map[string]any{
			"path":   s.path,
			"reason": "could not acquire exclusive lock on manifest",
		})
	}
	defer lock.Unlock()

	PruneMissingWorkflows(s.fs, m)
	PruneOrphanGlobalModels(m)

	if err := ValidateFields(m); err != nil {
		return err
	}
	if err := CheckInvariants(m); err != nil {
		return err
	}

	data := Serialize(m)
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return core.NewError(err, core.ErrManifestConflict, map[string]any{"path": s.path})
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return core.NewError(err, core.ErrManifestConflict, map[string]any{"path": s.path})
	}
	return nil
}
