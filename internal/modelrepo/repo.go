package modelrepo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"

	"github.com/comfygit-ai/comfygit-core/engine/core"
)

// Repository is the SQLite-backed index of models on disk, with a
// ristretto hot-path read-through cache in front of find_by_hash lookups
// (the Resolver calls find_by_hash once per model reference, so a process
// with a large workflow re-hits the same hashes repeatedly).
type Repository struct {
	db    *sql.DB
	psql  sq.StatementBuilderType
	cache *ristretto.Cache[string, *Model]
}

// Open opens (creating if absent) the SQLite database at dbPath and
// ensures the schema exists.
func Open(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening model index: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer, avoid SQLITE_BUSY storms

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, core.NewError(err, core.ErrModelIndexCorrupt, map[string]any{"path": dbPath})
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *Model]{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating read-through cache: %w", err)
	}

	return &Repository{
		db:    db,
		psql:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		cache: cache,
	}, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	r.cache.Close()
	return r.db.Close()
}

// withBusyRetry retries fn on SQLITE_BUSY, which SQLite returns when
// another process holds the write lock — expected under spec §5's
// "multi-reader, single-writer enforced by SQLite" model.
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

// FindByHash returns the model row for h, checking the read-through cache
// first.
func (r *Repository) FindByHash(ctx context.Context, h string) (*Model, bool, error) {
	if m, ok := r.cache.Get(h); ok {
		return m, true, nil
	}

	q, args, err := r.psql.Select("hash", "filename", "size_bytes", "category", "mtime", "last_seen").
		From("models").Where(sq.Eq{"hash": h}).ToSql()
	if err != nil {
		return nil, false, err
	}
	var row modelRow
	var m *Model
	err = withBusyRetry(ctx, func(ctx context.Context) error {
		return sqlscan.Get(ctx, r.db, &row, q, args...)
	})
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find_by_hash(%q): %w", h, err)
	}
	m = row.toModel()
	r.cache.Set(h, m, 1)
	return m, true, nil
}

// FindByFilename returns every model row whose filename matches exactly.
func (r *Repository) FindByFilename(ctx context.Context, filename string) ([]Model, error) {
	q, args, err := r.psql.Select("hash", "filename", "size_bytes", "category", "mtime", "last_seen").
		From("models").Where(sq.Eq{"filename": filename}).OrderBy("hash").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []modelRow
	if err := withBusyRetry(ctx, func(ctx context.Context) error {
		return sqlscan.Select(ctx, r.db, &rows, q, args...)
	}); err != nil {
		return nil, fmt.Errorf("find_by_filename(%q): %w", filename, err)
	}
	return toModels(rows), nil
}

// GetByCategory returns every location whose relative path's first
// component equals category.
func (r *Repository) GetByCategory(ctx context.Context, category string) ([]Location, error) {
	q, args, err := r.psql.Select("hash", "relative_path", "filename", "mtime").
		From("locations").
		Where(sq.Or{
			sq.Eq{"relative_path": category},
			sq.Like{"relative_path": category + "/%"},
		}).
		OrderBy("relative_path").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []locationRow
	if err := withBusyRetry(ctx, func(ctx context.Context) error {
		return sqlscan.Select(ctx, r.db, &rows, q, args...)
	}); err != nil {
		return nil, fmt.Errorf("get_by_category(%q): %w", category, err)
	}
	out := make([]Location, 0, len(rows))
	for _, row := range rows {
		if firstPathComponent(row.RelativePath) != category {
			continue
		}
		out = append(out, row.toLocation())
	}
	return out, nil
}

// GetAll returns every indexed model, ordered by hash.
func (r *Repository) GetAll(ctx context.Context) ([]Model, error) {
	q, args, err := r.psql.Select("hash", "filename", "size_bytes", "category", "mtime", "last_seen").
		From("models").OrderBy("hash").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []modelRow
	if err := withBusyRetry(ctx, func(ctx context.Context) error {
		return sqlscan.Select(ctx, r.db, &rows, q, args...)
	}); err != nil {
		return nil, fmt.Errorf("get_all: %w", err)
	}
	return toModels(rows), nil
}

// GetLocations returns every on-disk location for hash h.
func (r *Repository) GetLocations(ctx context.Context, h string) ([]Location, error) {
	q, args, err := r.psql.Select("hash", "relative_path", "filename", "mtime").
		From("locations").Where(sq.Eq{"hash": h}).OrderBy("relative_path").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []locationRow
	if err := withBusyRetry(ctx, func(ctx context.Context) error {
		return sqlscan.Select(ctx, r.db, &rows, q, args...)
	}); err != nil {
		return nil, fmt.Errorf("get_locations(%q): %w", h, err)
	}
	out := make([]Location, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toLocation())
	}
	return out, nil
}

// GetSources returns every recorded download source for hash h.
func (r *Repository) GetSources(ctx context.Context, h string) ([]Source, error) {
	q, args, err := r.psql.Select("hash", "url", "kind").
		From("sources").Where(sq.Eq{"hash": h}).OrderBy("url").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []Source
	if err := withBusyRetry(ctx, func(ctx context.Context) error {
		return sqlscan.Select(ctx, r.db, &rows, q, args...)
	}); err != nil {
		return nil, fmt.Errorf("get_sources(%q): %w", h, err)
	}
	return rows, nil
}

// FindLocationByPath returns the single location whose relative_path
// equals path exactly, if any — the Resolver's model-resolution tier 1.
func (r *Repository) FindLocationByPath(ctx context.Context, path string) (*Location, bool, error) {
	loc, err := r.findLocationByPath(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("find_location_by_path(%q): %w", path, err)
	}
	if loc == nil {
		return nil, false, nil
	}
	return loc, true, nil
}

// FindLocationsByPathCaseInsensitive returns every location whose
// relative_path matches path case-insensitively — the Resolver's
// model-resolution tier 3. More than one result means ambiguous.
func (r *Repository) FindLocationsByPathCaseInsensitive(ctx context.Context, path string) ([]Location, error) {
	q, args, err := r.psql.Select("hash", "relative_path", "filename", "mtime").
		From("locations").Where("LOWER(relative_path) = LOWER(?)", path).OrderBy("relative_path").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []locationRow
	if err := withBusyRetry(ctx, func(ctx context.Context) error {
		return sqlscan.Select(ctx, r.db, &rows, q, args...)
	}); err != nil {
		return nil, fmt.Errorf("find_locations_by_path_ci(%q): %w", path, err)
	}
	out := make([]Location, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toLocation())
	}
	return out, nil
}

// FindLocationsByFilename returns every location whose filename matches
// exactly, regardless of directory — the Resolver's model-resolution
// tier 4 (filename-only match). More than one result means ambiguous.
func (r *Repository) FindLocationsByFilename(ctx context.Context, filename string) ([]Location, error) {
	q, args, err := r.psql.Select("hash", "relative_path", "filename", "mtime").
		From("locations").Where(sq.Eq{"filename": filename}).OrderBy("relative_path").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []locationRow
	if err := withBusyRetry(ctx, func(ctx context.Context) error {
		return sqlscan.Select(ctx, r.db, &rows, q, args...)
	}); err != nil {
		return nil, fmt.Errorf("find_locations_by_filename(%q): %w", filename, err)
	}
	out := make([]Location, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toLocation())
	}
	return out, nil
}

// Search is a cheap SQL LIKE prefilter over filenames; ranking candidates
// is the Resolver's job, not the repository's.
func (r *Repository) Search(ctx context.Context, term string) ([]Model, error) {
	q, args, err := r.psql.Select("hash", "filename", "size_bytes", "category", "mtime", "last_seen").
		From("models").Where(sq.Like{"filename": "%" + term + "%"}).OrderBy("filename").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []modelRow
	if err := withBusyRetry(ctx, func(ctx context.Context) error {
		return sqlscan.Select(ctx, r.db, &rows, q, args...)
	}); err != nil {
		return nil, fmt.Errorf("search(%q): %w", term, err)
	}
	return toModels(rows), nil
}

// upsertModel inserts or refreshes a model row and one location row in a
// single transaction, invalidating the read-through cache entry.
func (r *Repository) upsertModel(ctx context.Context, m Model, loc Location) error {
	err := withBusyRetry(ctx, func(ctx context.Context) error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		upsertModelSQL := `
INSERT INTO models (hash, filename, size_bytes, category, mtime, last_seen)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(hash) DO UPDATE SET
	filename=excluded.filename, size_bytes=excluded.size_bytes,
	category=excluded.category, mtime=excluded.mtime, last_seen=excluded.last_seen`
		if _, err := tx.ExecContext(ctx, upsertModelSQL,
			m.Hash, m.Filename, m.SizeBytes, m.Category, m.Mtime.Unix(), m.LastSeen.Unix()); err != nil {
			return err
		}

		upsertLocationSQL := `
INSERT INTO locations (hash, relative_path, filename, mtime)
VALUES (?, ?, ?, ?)
ON CONFLICT(relative_path) DO UPDATE SET
	hash=excluded.hash, filename=excluded.filename, mtime=excluded.mtime`
		if _, err := tx.ExecContext(ctx, upsertLocationSQL,
			loc.Hash, loc.RelativePath, loc.Filename, loc.Mtime.Unix()); err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("upserting model %q: %w", m.Hash, err)
	}
	r.cache.Del(m.Hash)
	return nil
}

// removeLocation deletes a single location row and leaves the model hash
// row in place. Rescan does not call it: a file that has disappeared from
// disk keeps its location row after a rescan.
func (r *Repository) removeLocation(ctx context.Context, relativePath string) error {
	return withBusyRetry(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `DELETE FROM locations WHERE relative_path = ?`, relativePath)
		return err
	})
}

type modelRow struct {
	Hash      string `db:"hash"`
	Filename  string `db:"filename"`
	SizeBytes int64  `db:"size_bytes"`
	Category  string `db:"category"`
	Mtime     int64  `db:"mtime"`
	LastSeen  int64  `db:"last_seen"`
}

func (row modelRow) toModel() *Model {
	return &Model{
		Hash:      row.Hash,
		Filename:  row.Filename,
		SizeBytes: row.SizeBytes,
		Category:  row.Category,
		Mtime:     time.Unix(row.Mtime, 0).UTC(),
		LastSeen:  time.Unix(row.LastSeen, 0).UTC(),
	}
}

func toModels(rows []modelRow) []Model {
	out := make([]Model, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toModel())
	}
	return out
}

type locationRow struct {
	Hash         string `db:"hash"`
	RelativePath string `db:"relative_path"`
	Filename     string `db:"filename"`
	Mtime        int64  `db:"mtime"`
}

func (row locationRow) toLocation() Location {
	return Location{
		Hash:         row.Hash,
		RelativePath: row.RelativePath,
		Filename:     row.Filename,
		Mtime:        time.Unix(row.Mtime, 0).UTC(),
	}
}

func firstPathComponent(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}
