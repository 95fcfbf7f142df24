package modelrepo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// Rescan walks each configured model root, updating the (hash, location)
// index atomically per file. A file whose mtime and size match the
// existing location row is skipped without rehashing; anything else is
// rehashed. roots are absolute paths to category directories' parent (the
// shared models root) on fs.
func (r *Repository) Rescan(ctx context.Context, fs afero.Fs, roots []string) (RescanResult, error) {
	var result RescanResult

	for _, root := range roots {
		err := afero.Walk(fs, root, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			result.FilesScanned++

			existing, err := r.findLocationByPath(ctx, rel)
			if err != nil {
				return err
			}
			if existing != nil && existing.Mtime.Unix() == info.ModTime().Unix() {
				if model, ok, err := r.FindByHash(ctx, existing.Hash); err == nil && ok && model.SizeBytes == info.Size() {
					result.FilesSkipped++
					return nil
				}
			}

			hash, err := hashFile(fs, path)
			if err != nil {
				return fmt.Errorf("hashing %q: %w", path, err)
			}
			result.FilesRehashed++

			category := firstPathComponent(rel)
			filename := filepath.Base(rel)

			_, existedBefore, err := r.FindByHash(ctx, hash)
			if err != nil {
				return err
			}
			if !existedBefore {
				result.NewModels++
			}
			if existing == nil {
				result.NewLocations++
			}

			detectKind(fs, path) // informational sanity check only; category mismatches are not fatal

			now := info.ModTime().UTC()
			model := Model{
				Hash:      hash,
				Filename:  filename,
				SizeBytes: info.Size(),
				Category:  category,
				Mtime:     now,
				LastSeen:  time.Now().UTC(),
			}
			loc := Location{Hash: hash, RelativePath: rel, Filename: filename, Mtime: now}
			if err := r.upsertModel(ctx, model, loc); err != nil {
				return err
			}
			if existing != nil && existing.Hash != hash {
				// The path now holds new content: drop the old hash row if no location still refers to it.
				if err := withBusyRetry(ctx, func(ctx context.Context) error {
					_, err := r.db.ExecContext(ctx,
						`DELETE FROM models WHERE hash = ? AND NOT EXISTS (SELECT 1 FROM locations WHERE hash = ?)`,
						existing.Hash, existing.Hash)
					return err
				}); err != nil {
					return err
				}
				r.cache.Del(existing.Hash)
			}
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("rescanning root %q: %w", root, err)
		}
	}

	return result, nil
}

func (r *Repository) findLocationByPath(ctx context.Context, relativePath string) (*Location, error) {
	q, args, err := r.psql.Select("hash", "relative_path", "filename", "mtime").
		From("locations").Where("relative_path = ?", relativePath).ToSql()
	if err != nil {
		return nil, err
	}
	var rows []locationRow
	if err := withBusyRetry(ctx, func(ctx context.Context) error {
		return sqlscan.Select(ctx, r.db, &rows, q, args...)
	}); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	loc := rows[0].toLocation()
	return &loc, nil
}

// hashFile computes the BLAKE3 digest of a single file's contents.
func hashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// detectKind runs a mimetype sniff over the first bytes of a candidate
// model file as a rescan-time sanity check; model files are large opaque
// binaries so no category-vs-mimetype mismatch is ever treated as fatal —
// it exists only so a future diagnostic command has the data available.
func detectKind(fs afero.Fs, path string) string {
	f, err := fs.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := make([]byte, 3072)
	n, _ := f.Read(buf)
	return mimetype.Detect(buf[:n]).String()
}
