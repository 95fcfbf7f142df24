package analysiscache

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	environment           TEXT NOT NULL,
	workflow_name         TEXT NOT NULL,
	workflow_mtime_unix   INTEGER NOT NULL,
	workflow_size         INTEGER NOT NULL,
	workflow_content_hash TEXT NOT NULL,
	manifest_content_hash TEXT NOT NULL,
	dependencies_json     TEXT NOT NULL,
	resolution_json       TEXT,
	cached_at             TEXT NOT NULL,
	PRIMARY KEY (environment, workflow_name)
);
`
