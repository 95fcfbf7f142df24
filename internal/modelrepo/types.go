// Package modelrepo holds the SQLite-backed index of model files on disk:
// one row per content hash, one or more on-disk Locations per hash, and
// zero or more Sources (download origins) per hash.
package modelrepo

import "time"

// Model is one content-hash row: the file's canonical identity, independent
// of how many places on disk carry a copy of it.
type Model struct {
	Hash      string    `db:"hash"`
	Filename  string    `db:"filename"`
	SizeBytes int64     `db:"size_bytes"`
	Category  string    `db:"category"`
	Mtime     time.Time `db:"mtime"`
	LastSeen  time.Time `db:"last_seen"`
}

// Location is one on-disk copy of a model: (hash, relative_path) is unique
// per spec §3.1 — no two locations share the same relative_path.
type Location struct {
	Hash         string    `db:"hash"`
	RelativePath string    `db:"relative_path"`
	Filename     string    `db:"filename"`
	Mtime        time.Time `db:"mtime"`
}

// Source is a typed download origin recorded against a model hash.
type Source struct {
	Hash string `db:"hash"`
	URL  string `db:"url"`
	Kind string `db:"kind"`
}

// RescanResult summarizes one rescan pass over the configured model roots.
type RescanResult struct {
	FilesScanned  int
	FilesSkipped  int // unchanged by mtime+size, not rehashed
	FilesRehashed int
	NewModels     int
	NewLocations  int
}
