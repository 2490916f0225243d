package feedback

const schemaDDL = `
CREATE TABLE IF NOT EXISTS query_events (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp        INTEGER NOT NULL,
	query_text       TEXT NOT NULL,
	predicted_globs  TEXT,
	files_indexed    INTEGER NOT NULL DEFAULT 0,
	handles_returned INTEGER NOT NULL DEFAULT 0,
	total_tokens     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS query_handles (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	query_event_id   INTEGER NOT NULL REFERENCES query_events(id) ON DELETE CASCADE,
	handle_id        TEXT NOT NULL,
	file_path        TEXT NOT NULL,
	node_type        INTEGER NOT NULL,
	token_count      INTEGER NOT NULL,
	first_match_glob TEXT,
	returned_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS expand_events (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	query_event_id INTEGER REFERENCES query_events(id) ON DELETE SET NULL,
	handle_id      TEXT NOT NULL,
	file_path      TEXT NOT NULL,
	node_type      INTEGER NOT NULL,
	token_count    INTEGER NOT NULL,
	auto_expanded  INTEGER NOT NULL DEFAULT 0,
	expanded_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_handles_handle ON query_handles(handle_id);
CREATE INDEX IF NOT EXISTS idx_query_handles_glob ON query_handles(first_match_glob);
CREATE INDEX IF NOT EXISTS idx_query_handles_event ON query_handles(query_event_id);
CREATE INDEX IF NOT EXISTS idx_expand_events_event ON expand_events(query_event_id);
CREATE INDEX IF NOT EXISTS idx_expand_events_handle ON expand_events(handle_id);
CREATE INDEX IF NOT EXISTS idx_query_events_ts ON query_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_expand_events_ts ON expand_events(expanded_at);
`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
}
