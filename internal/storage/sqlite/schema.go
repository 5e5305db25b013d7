package sqlite

// Schema is the embedded DDL for the SQLite backend. It is applied on every
// open; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	text            TEXT NOT NULL,
	embedding       BLOB,
	kind            TEXT NOT NULL DEFAULT 'semantic',
	importance      REAL NOT NULL DEFAULT 0.5,
	occurred_at     TIMESTAMP,
	is_active       INTEGER NOT NULL DEFAULT 1,
	connections     TEXT,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_conversation
	ON memories(conversation_id, is_active);

CREATE TABLE IF NOT EXISTS turns (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	timestamp       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_turns_conversation
	ON turns(conversation_id, timestamp);

CREATE TABLE IF NOT EXISTS summaries (
	conversation_id TEXT PRIMARY KEY,
	summary_text    TEXT NOT NULL,
	updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
