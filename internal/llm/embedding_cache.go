package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachingEmbedder wraps an EmbeddingGenerator with an in-process ristretto
// cache keyed by model and text. The same fact is embedded once per decision
// pipeline and again on every bubble connection pass, so the hit rate within
// a single conversation is high.
type CachingEmbedder struct {
	inner EmbeddingGenerator
	cache *ristretto.Cache
}

// NewCachingEmbedder wraps the given embedder with a cache holding up to
// maxEntries vectors. Cost is tracked per entry, not per byte; embedding
// vectors for one model are all the same size.
func NewCachingEmbedder(inner EmbeddingGenerator, maxEntries int64) (*CachingEmbedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachingEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for the text if present, delegating to the
// wrapped embedder on miss. Failed embeddings are never cached.
func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)
	if cached, found := e.cache.Get(key); found {
		return cached.([]float32), nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Set(key, vec, 1)
	return vec, nil
}

// GetModel returns the wrapped embedder's model name.
func (e *CachingEmbedder) GetModel() string {
	return e.inner.GetModel()
}

// Close releases the cache's internal goroutines.
func (e *CachingEmbedder) Close() {
	e.cache.Close()
}

func (e *CachingEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(e.inner.GetModel() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Compile-time assertion.
var _ EmbeddingGenerator = (*CachingEmbedder)(nil)
