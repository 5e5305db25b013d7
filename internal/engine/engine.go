// Package engine implements the memory lifecycle: extraction of facts from
// conversation turns, decision-driven mutation of the memory set, episodic
// bubble creation with connection discovery, and scored retrieval.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cogmem/cogmem/internal/config"
	"github.com/cogmem/cogmem/internal/connections"
	"github.com/cogmem/cogmem/internal/llm"
	"github.com/cogmem/cogmem/internal/storage"
	"github.com/cogmem/cogmem/internal/vector"
	"github.com/cogmem/cogmem/pkg/types"
)

// ErrNotFound is returned when a directly addressed memory does not exist.
var ErrNotFound = storage.ErrNotFound

const similarSearchLimit = 10

// Engine orchestrates the memory lifecycle for all conversations. All
// mutations to one conversation are serialized through a per-conversation
// mutex; the store and index registry are shared.
type Engine struct {
	store    storage.Store
	oracle   llm.TextGenerator
	embedder llm.EmbeddingGenerator
	registry *vector.Registry
	finder   *connections.Finder
	cfg      config.MemoryConfig

	locks sync.Map // conversationID -> *sync.Mutex
}

// New creates an Engine. A nil finder disables connection discovery; tests
// use that to isolate the pipeline.
func New(store storage.Store, oracle llm.TextGenerator, embedder llm.EmbeddingGenerator, registry *vector.Registry, cfg config.MemoryConfig) *Engine {
	return &Engine{
		store:    store,
		oracle:   oracle,
		embedder: embedder,
		registry: registry,
		finder:   connections.NewFinder(store, cfg.ConnectionThreshold, cfg.MaxConnections),
		cfg:      cfg,
	}
}

// Update rewrites a memory's text, re-embeds it, and refreshes its index
// slot. Returns ErrNotFound for unknown ids.
func (e *Engine) Update(ctx context.Context, id, text string) (*types.Memory, error) {
	memory, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := e.lock(memory.ConversationID)
	defer unlock()

	embedding, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed updated memory: %w", err)
	}

	memory.Text = text
	memory.Embedding = embedding
	memory.UpdatedAt = time.Now().UTC()
	if err := e.store.Update(ctx, memory); err != nil {
		return nil, err
	}

	// The index has no in-place update; tombstone the old slot and append.
	ix := e.registry.Get(memory.ConversationID)
	ix.Remove(id)
	if err := ix.Add(id, embedding); err != nil {
		return nil, fmt.Errorf("failed to reindex memory %s: %w", id, err)
	}
	if err := e.registry.Save(memory.ConversationID, ix); err != nil {
		return nil, err
	}

	return memory, nil
}

// Delete soft-deletes a memory and tombstones its index slot. The row and
// the slot persist; only the id mapping is dropped. Returns ErrNotFound for
// unknown ids.
func (e *Engine) Delete(ctx context.Context, id string) error {
	memory, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}

	unlock := e.lock(memory.ConversationID)
	defer unlock()

	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}

	ix := e.registry.Get(memory.ConversationID)
	ix.Remove(id)
	return e.registry.Save(memory.ConversationID, ix)
}

// Get returns a memory by id. Returns ErrNotFound for unknown ids.
func (e *Engine) Get(ctx context.Context, id string) (*types.Memory, error) {
	return e.store.Get(ctx, id)
}

// lock acquires the conversation's mutex and returns the release func.
func (e *Engine) lock(conversationID string) func() {
	entry, _ := e.locks.LoadOrStore(conversationID, &sync.Mutex{})
	mu := entry.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// index returns the conversation's index, rebuilding from the store when the
// cached/loaded index has no live entries.
func (e *Engine) index(ctx context.Context, conversationID string) (*vector.Index, error) {
	ix := e.registry.Get(conversationID)
	if ix.Count() > 0 {
		return ix, nil
	}
	rebuilt, err := e.registry.Rebuild(ctx, e.store, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild index for %s: %w", conversationID, err)
	}
	return rebuilt, nil
}
