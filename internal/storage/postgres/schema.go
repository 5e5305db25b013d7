// Package postgres implements the storage interfaces on PostgreSQL with the
// pgvector extension. Embeddings are stored in a vector column so that the
// database can answer similarity queries directly when the in-process index
// is bypassed (ops tooling, ad-hoc analysis).
package postgres

// Schema contains the DDL for the PostgreSQL backend. The embedding column
// is created without a fixed dimension; pgvector enforces consistency per
// row and the engine enforces it per conversation.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    text            TEXT NOT NULL,
    embedding       vector,
    kind            TEXT NOT NULL DEFAULT 'semantic',
    importance      REAL NOT NULL DEFAULT 0.5,
    occurred_at     TIMESTAMPTZ,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    connections     JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_conversation
    ON memories(conversation_id, is_active);

CREATE TABLE IF NOT EXISTS turns (
    id              BIGSERIAL PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL,
    timestamp       TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_turns_conversation
    ON turns(conversation_id, timestamp);

CREATE TABLE IF NOT EXISTS summaries (
    conversation_id TEXT PRIMARY KEY,
    summary_text    TEXT NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
