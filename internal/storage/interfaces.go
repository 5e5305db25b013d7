// Package storage provides composable storage interfaces for the CogMem
// system.
//
// The relational store is the durable system of record: memories,
// conversation transcripts, and rolling summaries live here. The vector
// index is a derived cache that can be rebuilt from this layer at any time
// (see internal/vector).
package storage

import (
	"context"

	"github.com/cogmem/cogmem/pkg/types"
)

// MemoryStore provides CRUD over memory records.
//
// Delete is a soft delete: the row is flagged inactive and retained for
// audit. Normal operation never hard-deletes a memory.
type MemoryStore interface {
	// Store inserts a new memory.
	Store(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory by ID, active or not.
	// Returns ErrNotFound if the memory doesn't exist.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// GetMany retrieves the active memories among the given IDs, preserving
	// the input order. Unknown and inactive IDs are silently skipped.
	GetMany(ctx context.Context, ids []string) ([]*types.Memory, error)

	// Update rewrites an existing memory.
	// Returns ErrNotFound if the memory doesn't exist.
	Update(ctx context.Context, memory *types.Memory) error

	// Delete soft-deletes a memory (sets is_active = false).
	// Returns ErrNotFound if the memory doesn't exist.
	Delete(ctx context.Context, id string) error

	// ListActive returns every active memory with a non-nil embedding for
	// the conversation, ordered by creation time. This is the rebuild path
	// for the vector index.
	ListActive(ctx context.Context, conversationID string) ([]*types.Memory, error)

	// Close releases any resources held by the store.
	Close() error
}

// TranscriptStore persists raw conversation turns.
type TranscriptStore interface {
	// AppendTurns appends turns to the conversation transcript in order.
	AppendTurns(ctx context.Context, conversationID string, turns []types.Turn) error

	// RecentTurns returns up to n of the most recent turns, oldest first.
	RecentTurns(ctx context.Context, conversationID string, n int) ([]types.Turn, error)

	// CountTurns returns the total number of persisted turns for the
	// conversation. Drives the periodic summary trigger.
	CountTurns(ctx context.Context, conversationID string) (int, error)

	// ListTurns returns up to limit turns from the start of the
	// conversation, oldest first. Used by the summarizer.
	ListTurns(ctx context.Context, conversationID string, limit int) ([]types.Turn, error)
}

// SummaryStore persists the rolling conversation summary.
type SummaryStore interface {
	// GetSummary returns the current summary, or "" when none exists.
	GetSummary(ctx context.Context, conversationID string) (string, error)

	// SetSummary upserts the summary for a conversation.
	SetSummary(ctx context.Context, conversationID, summary string) error
}

// Store is the full storage contract the engine depends on. Both the
// SQLite and Postgres backends implement it.
type Store interface {
	MemoryStore
	TranscriptStore
	SummaryStore
}
