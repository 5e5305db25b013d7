// Package vector provides an exact, per-conversation similarity index over
// id → embedding pairs.
//
// The index is a flat inner-product scan over L2-normalized vectors
// (equivalent to cosine similarity). Exact linear search is acceptable
// because indices are partitioned per conversation and sized to a bounded
// personal corpus; the interface is narrow enough that a sub-linear
// approximate structure could be substituted without changing callers.
//
// Removal is tombstoning: the id → slot mapping is dropped but the physical
// slot is never reclaimed or reused, so slot count grows monotonically for
// the life of the index file. The only compaction mechanism is a rebuild
// from the relational store (see Registry.Rebuild and cmd/cogmem-reindex).
package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned by Load when the index files are missing or
	// unreadable. Callers treat it as "start empty", never as a failure.
	ErrNotFound = errors.New("index not found")

	// ErrDimensionMismatch is returned when a vector's length does not
	// match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrZeroVector is returned when a query vector has zero norm and
	// cannot be normalized.
	ErrZeroVector = errors.New("zero-norm vector")
)

// Result is a single search hit.
type Result struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Index is an exact similarity index for one conversation.
//
// All methods are safe for concurrent use, but the engine additionally
// serialises writers per conversation: interleaved Add/Remove from two
// writers would produce a well-formed index with unpredictable content.
type Index struct {
	mu sync.RWMutex

	// dim is fixed by the constructor or by the first Add.
	dim int

	// slots holds every vector ever added, normalized. Never shrinks.
	slots [][]float32

	// idToSlot and slotToID are a partial injection: every mapped id has
	// exactly one slot, but tombstoned slots appear in neither map.
	idToSlot map[string]int
	slotToID map[int]string
}

// New creates an empty index. dim may be zero, in which case the first
// Add fixes the dimension.
func New(dim int) *Index {
	return &Index{
		dim:      dim,
		idToSlot: make(map[string]int),
		slotToID: make(map[int]string),
	}
}

// Dimension returns the index dimension, or zero before the first Add.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Count returns the number of currently mapped ids. Tombstoned slots are
// not counted.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.idToSlot)
}

// SlotCount returns the number of physical slots, including tombstones.
func (ix *Index) SlotCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.slots)
}

// Add normalizes the vector and appends it under the given id. Adding an
// id that is already mapped is a no-op, so callers can re-insert during
// rebuild without checking first. Fails only on dimension mismatch.
func (ix *Index) Add(id string, vec []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.idToSlot[id]; ok {
		return nil
	}

	if ix.dim == 0 {
		ix.dim = len(vec)
	}
	if len(vec) != ix.dim {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), ix.dim)
	}

	normalized, err := normalize(vec)
	if err != nil {
		return err
	}

	slot := len(ix.slots)
	ix.slots = append(ix.slots, normalized)
	ix.idToSlot[id] = slot
	ix.slotToID[slot] = id
	return nil
}

// Remove drops the id → slot mapping. The vector stays in its slot as a
// tombstone and is excluded from all future searches. Removing an unmapped
// id is a no-op.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	slot, ok := ix.idToSlot[id]
	if !ok {
		return
	}
	delete(ix.idToSlot, id)
	delete(ix.slotToID, slot)
}

// Contains reports whether the id is currently mapped.
func (ix *Index) Contains(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.idToSlot[id]
	return ok
}

// Search returns the top min(k, Count) mapped ids by cosine similarity
// against the query, best first. An empty index yields an empty result,
// not an error. A zero-norm query returns ErrZeroVector.
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.idToSlot) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), ix.dim)
	}

	normalized, err := normalize(query)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(ix.idToSlot))
	for id, slot := range ix.idToSlot {
		results = append(results, Result{
			ID:    id,
			Score: dot(normalized, ix.slots[slot]),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Stable order for equal scores.
		return results[i].ID < results[j].ID
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// normalize returns an L2-normalized copy of the vector.
func normalize(vec []float32) ([]float32, error) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, ErrZeroVector
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}

// dot computes the inner product of two same-length vectors. Inputs are
// normalized, so the result is the cosine similarity.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
