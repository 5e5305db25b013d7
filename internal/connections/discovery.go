// Package connections discovers and persists similarity edges between
// episodic memories. When a new bubble is created, its nearest neighbors
// above a similarity threshold become bidirectional connections.
package connections

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cogmem/cogmem/internal/storage"
	"github.com/cogmem/cogmem/internal/vector"
	"github.com/cogmem/cogmem/pkg/types"
)

const (
	// DefaultThreshold is the minimum cosine similarity for a connection.
	DefaultThreshold = 0.6

	// DefaultMaxConnections caps how many edges a new bubble receives.
	DefaultMaxConnections = 5
)

// Finder discovers connections for newly created bubbles.
type Finder struct {
	store          storage.MemoryStore
	threshold      float64
	maxConnections int
}

// NewFinder creates a Finder. Zero threshold or maxConnections fall back to
// the defaults.
func NewFinder(store storage.MemoryStore, threshold float64, maxConnections int) *Finder {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if maxConnections <= 0 {
		maxConnections = DefaultMaxConnections
	}
	return &Finder{
		store:          store,
		threshold:      threshold,
		maxConnections: maxConnections,
	}
}

// Connect finds the bubble's nearest neighbors in the index, records them on
// the bubble, and writes the reverse edge onto each neighbor. The bubble must
// already be stored and indexed.
//
// The edge writes are not transactional: a crash mid-way can leave a one-way
// edge. Each side of the graph is usable on its own, so the gap only costs a
// missed traversal until the pair is reconnected.
func (f *Finder) Connect(ctx context.Context, index *vector.Index, bubble *types.Memory) ([]types.Connection, error) {
	if len(bubble.Embedding) == 0 {
		return nil, nil
	}

	// Overfetch so threshold filtering and self-exclusion still leave
	// enough candidates.
	results, err := index.Search(bubble.Embedding, f.maxConnections*2)
	if err != nil {
		if errors.Is(err, vector.ErrZeroVector) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to search for connections: %w", err)
	}

	var connections []types.Connection
	for _, r := range results {
		if r.ID == bubble.ID || r.Score < f.threshold {
			continue
		}
		connections = append(connections, types.Connection{ID: r.ID, Score: r.Score})
		if len(connections) == f.maxConnections {
			break
		}
	}

	if len(connections) == 0 {
		return nil, nil
	}

	for _, c := range connections {
		bubble.AddConnection(c.ID, c.Score)
	}
	if err := f.store.Update(ctx, bubble); err != nil {
		return nil, fmt.Errorf("failed to save connections on bubble %s: %w", bubble.ID, err)
	}

	// Reverse edges. A neighbor that disappeared since the search is skipped.
	for _, c := range connections {
		neighbor, err := f.store.Get(ctx, c.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			log.Printf("connections: failed to load neighbor %s: %v", c.ID, err)
			continue
		}
		if !neighbor.AddConnection(bubble.ID, c.Score) {
			continue
		}
		if err := f.store.Update(ctx, neighbor); err != nil {
			log.Printf("connections: failed to save reverse edge %s -> %s: %v", c.ID, bubble.ID, err)
		}
	}

	return connections, nil
}
