// Package sqlite implements the storage interfaces on SQLite via
// modernc.org/sqlite. It is the default backend: zero external services,
// one file on disk, good enough for bounded per-conversation corpora.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/cogmem/cogmem/internal/storage"
	"github.com/cogmem/cogmem/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database, configures WAL mode, and creates the
// schema. Use ":memory:" for tests.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load;
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB exposes the underlying handle for tooling (reindex, diagnostics).
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Store inserts a new memory.
func (s *Store) Store(ctx context.Context, memory *types.Memory) error {
	if memory == nil {
		return storage.ErrInvalidInput
	}
	if memory.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if memory.Text == "" {
		return fmt.Errorf("%w: memory text is required", storage.ErrInvalidInput)
	}
	if memory.ConversationID == "" {
		return fmt.Errorf("%w: conversation ID is required", storage.ErrInvalidInput)
	}

	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now().UTC()
	}
	if memory.UpdatedAt.IsZero() {
		memory.UpdatedAt = memory.CreatedAt
	}
	if memory.Kind == "" {
		memory.Kind = types.KindSemantic
	}
	if memory.Importance == 0 {
		memory.Importance = types.DefaultImportance
	}

	connectionsJSON, err := marshalConnections(memory.Connections)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, conversation_id, text, embedding, kind, importance,
			occurred_at, is_active, connections, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		memory.ID,
		memory.ConversationID,
		memory.Text,
		serializeEmbedding(memory.Embedding),
		string(memory.Kind),
		memory.Importance,
		nullableTime(memory.OccurredAt),
		boolToInt(memory.IsActive),
		connectionsJSON,
		memory.CreatedAt,
		memory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}

	return nil
}

// Get retrieves a memory by ID, active or not.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, text, embedding, kind, importance,
		       occurred_at, is_active, connections, created_at, updated_at
		FROM memories WHERE id = ?
	`, id)

	memory, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return memory, nil
}

// GetMany retrieves the active memories among the given IDs, preserving
// input order. Unknown and inactive IDs are skipped.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]*types.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	byID := make(map[string]*types.Memory, len(ids))
	for _, id := range ids {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, conversation_id, text, embedding, kind, importance,
			       occurred_at, is_active, connections, created_at, updated_at
			FROM memories WHERE id = ? AND is_active = 1
		`, id)

		memory, err := scanMemory(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get memory %s: %w", id, err)
		}
		byID[id] = memory
	}

	ordered := make([]*types.Memory, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}
	return ordered, nil
}

// Update rewrites an existing memory.
func (s *Store) Update(ctx context.Context, memory *types.Memory) error {
	if memory == nil || memory.ID == "" {
		return storage.ErrInvalidInput
	}

	memory.UpdatedAt = time.Now().UTC()

	connectionsJSON, err := marshalConnections(memory.Connections)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			text = ?, embedding = ?, kind = ?, importance = ?,
			occurred_at = ?, is_active = ?, connections = ?, updated_at = ?
		WHERE id = ?
	`,
		memory.Text,
		serializeEmbedding(memory.Embedding),
		string(memory.Kind),
		memory.Importance,
		nullableTime(memory.OccurredAt),
		boolToInt(memory.IsActive),
		connectionsJSON,
		memory.UpdatedAt,
		memory.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("memory %s: %w", memory.ID, storage.ErrNotFound)
	}
	return nil
}

// Delete soft-deletes a memory. The row is retained for audit.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET is_active = 0, updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("memory %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ListActive returns every active memory with an embedding for the
// conversation, ordered by creation time.
func (s *Store) ListActive(ctx context.Context, conversationID string) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, text, embedding, kind, importance,
		       occurred_at, is_active, connections, created_at, updated_at
		FROM memories
		WHERE conversation_id = ? AND is_active = 1 AND embedding IS NOT NULL
		ORDER BY created_at
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	var memories []*types.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, memory)
	}
	return memories, rows.Err()
}

// AppendTurns appends turns to the conversation transcript in order.
func (s *Store) AppendTurns(ctx context.Context, conversationID string, turns []types.Turn) error {
	for _, turn := range turns {
		ts := turn.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO turns (conversation_id, role, content, timestamp)
			VALUES (?, ?, ?, ?)
		`, conversationID, string(turn.Role), turn.Content, ts)
		if err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		}
	}
	return nil
}

// RecentTurns returns up to n of the most recent turns, oldest first.
func (s *Store) RecentTurns(ctx context.Context, conversationID string, n int) ([]types.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, timestamp FROM turns
		WHERE conversation_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// CountTurns returns the total number of persisted turns.
func (s *Store) CountTurns(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM turns WHERE conversation_id = ?
	`, conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return count, nil
}

// ListTurns returns up to limit turns from the start of the conversation,
// oldest first.
func (s *Store) ListTurns(ctx context.Context, conversationID string, limit int) ([]types.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, timestamp FROM turns
		WHERE conversation_id = ?
		ORDER BY timestamp, id
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// GetSummary returns the rolling summary, or "" when none exists.
func (s *Store) GetSummary(ctx context.Context, conversationID string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx, `
		SELECT summary_text FROM summaries WHERE conversation_id = ?
	`, conversationID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get summary: %w", err)
	}
	return summary, nil
}

// SetSummary upserts the rolling summary.
func (s *Store) SetSummary(ctx context.Context, conversationID, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (conversation_id, summary_text, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			summary_text = excluded.summary_text,
			updated_at = excluded.updated_at
	`, conversationID, summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set summary: %w", err)
	}
	return nil
}

// Conversations returns the distinct conversation IDs that have memories.
// Used by the reindex tool.
func (s *Store) Conversations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT conversation_id FROM memories ORDER BY conversation_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanMemory.
type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*types.Memory, error) {
	var (
		memory          types.Memory
		embeddingBlob   []byte
		kind            string
		occurredAt      sql.NullTime
		isActive        int
		connectionsJSON sql.NullString
	)

	err := row.Scan(
		&memory.ID,
		&memory.ConversationID,
		&memory.Text,
		&embeddingBlob,
		&kind,
		&memory.Importance,
		&occurredAt,
		&isActive,
		&connectionsJSON,
		&memory.CreatedAt,
		&memory.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	memory.Kind = types.MemoryKind(kind)
	memory.IsActive = isActive != 0
	memory.Embedding = deserializeEmbedding(embeddingBlob)
	if occurredAt.Valid {
		t := occurredAt.Time
		memory.OccurredAt = &t
	}
	if connectionsJSON.Valid && connectionsJSON.String != "" {
		if err := json.Unmarshal([]byte(connectionsJSON.String), &memory.Connections); err != nil {
			return nil, fmt.Errorf("failed to decode connections: %w", err)
		}
	}
	return &memory, nil
}

func scanTurns(rows *sql.Rows) ([]types.Turn, error) {
	var turns []types.Turn
	for rows.Next() {
		var (
			turn types.Turn
			role string
		)
		if err := rows.Scan(&role, &turn.Content, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = types.Role(role)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func marshalConnections(connections []types.Connection) (any, error) {
	if len(connections) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(connections)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal connections: %w", err)
	}
	return string(data), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time assertion that Store satisfies the full storage contract.
var _ storage.Store = (*Store)(nil)
