package modelrepo

const schema = `
CREATE TABLE IF NOT EXISTS models (
	hash       TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	category   TEXT NOT NULL,
	mtime      INTEGER NOT NULL,
	last_seen  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS locations (
	hash          TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	filename      TEXT NOT NULL,
	mtime         INTEGER NOT NULL,
	PRIMARY KEY (relative_path)
);

CREATE TABLE IF NOT EXISTS sources (
	hash TEXT NOT NULL,
	url  TEXT NOT NULL,
	kind TEXT NOT NULL,
	PRIMARY KEY (hash, url)
);

CREATE INDEX IF NOT EXISTS idx_locations_hash ON locations(hash);
CREATE INDEX IF NOT EXISTS idx_models_filename ON models(filename);
CREATE INDEX IF NOT EXISTS idx_models_category ON models(category);
CREATE INDEX IF NOT EXISTS idx_sources_hash ON sources(hash);
`
