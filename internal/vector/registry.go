package vector

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/cogmem/cogmem/pkg/types"
)

// MemoryLister is the slice of the storage layer the registry needs to
// rebuild an index from the system of record.
type MemoryLister interface {
	ListActive(ctx context.Context, conversationID string) ([]*types.Memory, error)
}

// Registry owns one Index per conversation, constructed lazily. On first
// touch it tries to load the persisted index from the data directory and
// falls back to empty. Indexes stay cached in process memory; Evict drops
// a cached entry so the next touch reloads from disk.
type Registry struct {
	mu      sync.Mutex
	dir     string
	dim     int
	indexes map[string]*Index

	// selfWrites counts file events still expected from this registry's
	// own saves, per conversation. Invalidate consumes them instead of
	// evicting; without this, the directory watcher would evict entries
	// in response to our own writes.
	selfWrites map[string]int
}

// filesPerSave is the number of index files a save renames into place,
// and so the number of watcher events one save generates.
const filesPerSave = 2

// NewRegistry creates a registry that persists indexes under dir.
// dim may be zero; each index then adopts the dimension of its first
// vector.
func NewRegistry(dir string, dim int) *Registry {
	return &Registry{
		dir:        dir,
		dim:        dim,
		indexes:    make(map[string]*Index),
		selfWrites: make(map[string]int),
	}
}

// Dir returns the directory indexes persist to.
func (r *Registry) Dir() string {
	return r.dir
}

// Get returns the index for a conversation, loading it from disk on first
// touch. A missing or corrupt file yields an empty index (fail-open).
func (r *Registry) Get(conversationID string) *Index {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ix, ok := r.indexes[conversationID]; ok {
		return ix
	}

	ix := New(r.dim)
	if err := ix.Load(r.path(conversationID)); err == nil {
		log.Printf("vector: loaded index for conversation %s (%d mapped, %d slots)",
			conversationID, ix.Count(), ix.SlotCount())
	}
	r.indexes[conversationID] = ix
	return ix
}

// Save persists the given index and caches it as the conversation's
// current instance. Taking the instance means a concurrent eviction can
// never drop mutations the caller made between Get and Save: whatever the
// caller holds is what reaches disk. Failures propagate; a dropped save
// means the index silently regresses on the next load.
func (r *Registry) Save(conversationID string, ix *Index) error {
	if ix == nil {
		return fmt.Errorf("cannot save nil index for conversation %s", conversationID)
	}

	r.mu.Lock()
	r.indexes[conversationID] = ix
	r.selfWrites[conversationID] += filesPerSave
	r.mu.Unlock()

	if err := ix.Save(r.path(conversationID)); err != nil {
		return fmt.Errorf("failed to save index for conversation %s: %w", conversationID, err)
	}
	return nil
}

// Evict drops a cached index so the next Get reloads from disk.
func (r *Registry) Evict(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.indexes, conversationID)
}

// Invalidate evicts a conversation in response to an observed index file
// write, ignoring writes this registry performed itself. The directory
// watcher calls this for every event; only genuinely external rewrites
// (another process, cogmem-reindex) drop the cached entry.
func (r *Registry) Invalidate(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := r.selfWrites[conversationID]; n > 0 {
		if n == 1 {
			delete(r.selfWrites, conversationID)
		} else {
			r.selfWrites[conversationID] = n - 1
		}
		return
	}
	delete(r.indexes, conversationID)
}

// Rebuild reconstructs a conversation's index from the relational store,
// replaces the cached entry, and persists the result. This is the only
// compaction mechanism: tombstoned slots exist in the old file, not the
// rebuilt one.
func (r *Registry) Rebuild(ctx context.Context, store MemoryLister, conversationID string) (*Index, error) {
	memories, err := store.ListActive(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories for rebuild: %w", err)
	}

	ix := New(r.dim)
	for _, m := range memories {
		if len(m.Embedding) == 0 {
			continue
		}
		if err := ix.Add(m.ID, m.Embedding); err != nil {
			return nil, fmt.Errorf("failed to index memory %s: %w", m.ID, err)
		}
	}

	r.mu.Lock()
	r.indexes[conversationID] = ix
	r.selfWrites[conversationID] += filesPerSave
	r.mu.Unlock()

	if err := ix.Save(r.path(conversationID)); err != nil {
		return nil, fmt.Errorf("failed to save rebuilt index: %w", err)
	}

	log.Printf("vector: rebuilt index for conversation %s (%d memories)", conversationID, ix.Count())
	return ix, nil
}

// path returns the base path (no extension) for a conversation's files.
func (r *Registry) path(conversationID string) string {
	return filepath.Join(r.dir, "conv_"+conversationID)
}

// ConversationFromFile maps an index file name back to its conversation
// ID, returning "" for unrelated files. Used by the directory watcher.
func ConversationFromFile(name string) string {
	base := filepath.Base(name)
	if len(base) < len("conv_") || base[:len("conv_")] != "conv_" {
		return ""
	}
	rest := base[len("conv_"):]
	for _, suffix := range []string{".vec", ".map.json"} {
		if len(rest) > len(suffix) && rest[len(rest)-len(suffix):] == suffix {
			return rest[:len(rest)-len(suffix)]
		}
	}
	return ""
}
