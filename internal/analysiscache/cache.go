package analysiscache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"
	_ "modernc.org/sqlite"
	"github.com/zeebo/blake3"

	"github.com/comfygit-ai/comfygit-core/engine/core"
)

const sessionMapCapacity = 256

// Cache is the two-layer Analysis Cache of §3.5/§4.5: an in-process LRU
// session map for intra-run reuse, backed by a SQLite row per
// (environment, workflow) for cross-process persistence. Two Cache
// instances opened over the same SQLite file share the backing store but
// keep independent session maps, matching §4.5's stated sharing contract.
type Cache struct {
	db   *sql.DB
	psql sq.StatementBuilderType

	mu      sync.Mutex
	session *lru.Cache[string, sessionEntry]
}

// Open opens (creating if absent) the SQLite-backed cache at dbPath.
func Open(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening analysis cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, core.NewError(err, core.ErrCacheCorrupt, map[string]any{"path": dbPath})
	}

	session, err := lru.New[string, sessionEntry](sessionMapCapacity)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session map: %w", err)
	}

	return &Cache{
		db:      db,
		psql:    sq.StatementBuilder.PlaceholderFormat(sq.Question),
		session: session,
	}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func withBusyRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(5, retry.NewExponential(25*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && strings.Contains(err.Error(), "SQLITE_BUSY") {
			return retry.RetryableError(err)
		}
		return err
	})
}

func sessionKey(environment, workflowName string) string {
	return environment + "\x00" + workflowName
}

// Get implements §4.5's contract: a nil Entry.Dependencies is a full miss
// (content changed or never cached). A non-nil Dependencies with a nil
// Resolution is a partial hit — the workflow file is unchanged but the
// manifest hash no longer matches the cached resolution, so the caller
// should re-resolve without re-parsing.
func (c *Cache) Get(ctx context.Context, fs afero.Fs, environment, workflowName, path, manifestContentHash string) (Entry, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return Entry{}, nil // a workflow file that vanished is a full miss, not an error
	}
	mtime := info.ModTime().UTC()
	size := info.Size()

	c.mu.Lock()
	if se, ok := c.session.Get(sessionKey(environment, workflowName)); ok {
		c.mu.Unlock()
		if se.mtime.Equal(mtime) && se.size == size {
			return entryFromSession(se, manifestContentHash), nil
		}
	} else {
		c.mu.Unlock()
	}

	var row cacheRow
	q, args, err := c.psql.Select(
		"workflow_mtime_unix", "workflow_size", "workflow_content_hash",
		"manifest_content_hash", "dependencies_json", "resolution_json",
	).From("cache_entries").
		Where(sq.Eq{"environment": environment, "workflow_name": workflowName}).ToSql()
	if err != nil {
		return Entry{}, err
	}
	err = withBusyRetry(ctx, func(ctx context.Context) error {
		return sqlscan.Get(ctx, c.db, &row, q, args...)
	})
	if err != nil {
		if sqlscan.NotFound(err) {
			return Entry{}, nil
		}
		return Entry{}, fmt.Errorf("analysis cache get(%q, %q): %w", environment, workflowName, err)
	}

	if row.WorkflowMtimeUnix == mtime.Unix() && row.WorkflowSize == size {
		return c.hitFromRow(environment, workflowName, row, mtime, size, manifestContentHash)
	}

	// mtime/size moved; the file may still hold the same bytes (a host
	// re-saving a workflow unchanged, or a touch with no edit).
	hash, err := hashFile(fs, path)
	if err != nil {
		return Entry{}, err
	}
	if hash != row.WorkflowContentHash {
		return Entry{}, nil // genuine content change: full miss
	}

	if err := c.rewriteMtime(ctx, environment, workflowName, mtime, size); err != nil {
		return Entry{}, err
	}
	return c.hitFromRow(environment, workflowName, row, mtime, size, manifestContentHash)
}

func (c *Cache) hitFromRow(environment, workflowName string, row cacheRow, mtime time.Time, size int64, manifestContentHash string) (Entry, error) {
	deps, err := decodeDependencies(row.DependenciesJSON)
	if err != nil {
		return Entry{}, err
	}

	se := sessionEntry{
		size:                size,
		mtime:               mtime,
		manifestContentHash: row.ManifestContentHash,
		workflowContentHash: row.WorkflowContentHash,
		deps:                deps,
	}
	if row.ResolutionJSON.Valid && row.ManifestContentHash == manifestContentHash {
		res, err := decodeResolution(row.ResolutionJSON.String)
		if err != nil {
			return Entry{}, err
		}
		se.resolution = res
	}

	c.mu.Lock()
	c.session.Add(sessionKey(environment, workflowName), se)
	c.mu.Unlock()

	return entryFromSession(se, manifestContentHash), nil
}

func entryFromSession(se sessionEntry, manifestContentHash string) Entry {
	e := Entry{Dependencies: se.deps}
	if se.manifestContentHash == manifestContentHash {
		e.Resolution = se.resolution
	}
	return e
}

// Set stores both layers of cache for one workflow: the session map
// immediately, and the SQLite row for cross-process reuse.
func (c *Cache) Set(
	ctx context.Context, fs afero.Fs, environment, workflowName, path, manifestContentHash string,
	deps *Dependencies, resolution *ResolutionResult,
) error {
	info, err := fs.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}
	mtime := info.ModTime().UTC()
	size := info.Size()

	hash, err := hashFile(fs, path)
	if err != nil {
		return err
	}

	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return err
	}
	var resolutionJSON sql.NullString
	if resolution != nil {
		b, err := json.Marshal(resolution)
		if err != nil {
			return err
		}
		resolutionJSON = sql.NullString{String: string(b), Valid: true}
	}

	err = withBusyRetry(ctx, func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `
INSERT INTO cache_entries (
	environment, workflow_name, workflow_mtime_unix, workflow_size,
	workflow_content_hash, manifest_content_hash, dependencies_json,
	resolution_json, cached_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(environment, workflow_name) DO UPDATE SET
	workflow_mtime_unix=excluded.workflow_mtime_unix,
	workflow_size=excluded.workflow_size,
	workflow_content_hash=excluded.workflow_content_hash,
	manifest_content_hash=excluded.manifest_content_hash,
	dependencies_json=excluded.dependencies_json,
	resolution_json=excluded.resolution_json,
	cached_at=excluded.cached_at`,
			environment, workflowName, mtime.Unix(), size, hash, manifestContentHash,
			string(depsJSON), resolutionJSON, time.Now().UTC().Format(time.RFC3339))
		return err
	})
	if err != nil {
		return fmt.Errorf("analysis cache set(%q, %q): %w", environment, workflowName, err)
	}

	c.mu.Lock()
	c.session.Add(sessionKey(environment, workflowName), sessionEntry{
		size: size, mtime: mtime,
		manifestContentHash: manifestContentHash,
		workflowContentHash: hash,
		deps:                deps,
		resolution:          resolution,
	})
	c.mu.Unlock()
	return nil
}

// Invalidate drops one workflow's entry (name != "") or every entry for an
// environment (name == ""), from both the session map and SQLite.
func (c *Cache) Invalidate(ctx context.Context, environment, workflowName string) error {
	c.mu.Lock()
	if workflowName != "" {
		c.session.Remove(sessionKey(environment, workflowName))
	} else {
		for _, key := range c.session.Keys() {
			if strings.HasPrefix(key, environment+"\x00") {
				c.session.Remove(key)
			}
		}
	}
	c.mu.Unlock()

	return withBusyRetry(ctx, func(ctx context.Context) error {
		var err error
		if workflowName != "" {
			_, err = c.db.ExecContext(ctx,
				`DELETE FROM cache_entries WHERE environment = ? AND workflow_name = ?`,
				environment, workflowName)
		} else {
			_, err = c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE environment = ?`, environment)
		}
		return err
	})
}

func (c *Cache) rewriteMtime(ctx context.Context, environment, workflowName string, mtime time.Time, size int64) error {
	return withBusyRetry(ctx, func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx,
			`UPDATE cache_entries SET workflow_mtime_unix = ?, workflow_size = ? WHERE environment = ? AND workflow_name = ?`,
			mtime.Unix(), size, environment, workflowName)
		return err
	})
}

type cacheRow struct {
	WorkflowMtimeUnix   int64          `db:"workflow_mtime_unix"`
	WorkflowSize        int64          `db:"workflow_size"`
	WorkflowContentHash string         `db:"workflow_content_hash"`
	ManifestContentHash string         `db:"manifest_content_hash"`
	DependenciesJSON    string         `db:"dependencies_json"`
	ResolutionJSON      sql.NullString `db:"resolution_json"`
}

func decodeDependencies(raw string) (*Dependencies, error) {
	var d Dependencies
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, core.NewError(err, core.ErrCacheCorrupt, nil)
	}
	return &d, nil
}

func decodeResolution(raw string) (*ResolutionResult, error) {
	var r ResolutionResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, core.NewError(err, core.ErrCacheCorrupt, nil)
	}
	return &r, nil
}

func hashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %q: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
