package store

// schemaDDL creates every table and index for a fresh store. Applied once,
// atomically, when schema_version is absent.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS files (
	path         TEXT PRIMARY KEY,
	content_hash BLOB NOT NULL,
	mtime        INTEGER NOT NULL,
	indexed_at   INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS nodes (
	handle_id         TEXT PRIMARY KEY,
	file_path         TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	node_type         INTEGER NOT NULL,
	span_start        INTEGER NOT NULL,
	span_end          INTEGER NOT NULL,
	line_start        INTEGER NOT NULL,
	line_end          INTEGER NOT NULL,
	metadata_json     TEXT NOT NULL,
	name              TEXT,
	name_lower        TEXT COLLATE NOCASE,
	parent_name       TEXT,
	parent_name_lower TEXT COLLATE NOCASE,
	parent_handle_id  TEXT,
	parent_node_type  INTEGER,
	parent_span_start INTEGER,
	parent_span_end   INTEGER,
	token_count       INTEGER NOT NULL,
	preview           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_file_path ON nodes(file_path);
CREATE INDEX IF NOT EXISTS idx_nodes_node_type ON nodes(node_type);
CREATE INDEX IF NOT EXISTS idx_nodes_name_lower ON nodes(name_lower);
CREATE INDEX IF NOT EXISTS idx_nodes_parent_name_lower ON nodes(parent_name_lower);

CREATE TABLE IF NOT EXISTS refs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path        TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	name             TEXT NOT NULL,
	name_lower       TEXT NOT NULL COLLATE NOCASE,
	qualifier        TEXT,
	ref_type         INTEGER NOT NULL,
	span_start       INTEGER NOT NULL,
	span_end         INTEGER NOT NULL,
	line_start       INTEGER NOT NULL,
	line_end         INTEGER NOT NULL,
	preview          TEXT NOT NULL,
	source_handle_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_refs_file_path ON refs(file_path);
CREATE INDEX IF NOT EXISTS idx_refs_name_lower ON refs(name_lower);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
	handle_id UNINDEXED,
	content,
	tokenize = 'unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_symbols USING fts5(
	handle_id UNINDEXED,
	name,
	tokenize = 'unicode61'
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// pragmas are applied on every open, not just schema creation, so behavior
// is consistent regardless of which driver's DSN parsing is in effect.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA cache_size = -65536",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA mmap_size = 268435456",
}
