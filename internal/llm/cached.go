package llm

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JakeFAU/forumrag/internal/forum"
	"github.com/JakeFAU/forumrag/internal/hash/sha256"
)

// DefaultCacheSize is the number of question embeddings kept by CachedEmbedder.
const DefaultCacheSize = 1000

// CachedEmbedder keeps recent embeddings in an LRU so repeated questions skip
// the embedding call.
type CachedEmbedder struct {
	inner forum.Embedder
	model string
	cache *lru.Cache[string, []float32]
}

var _ forum.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner. model is part of the cache key.
func NewCachedEmbedder(inner forum.Embedder, model string, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size) //nolint:errcheck // size is positive
	return &CachedEmbedder{inner: inner, model: model, cache: cache}
}

func (c *CachedEmbedder) key(text string) string {
	return sha256.Key(c.model, text)
}

// Embed serves cached vectors and embeds only the misses, in one call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.key(text)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), len(missTexts))
	}
	for j, idx := range missIdx {
		out[idx] = vecs[j]
		c.cache.Add(c.key(texts[idx]), vecs[j])
	}
	return out, nil
}

// Len reports how many embeddings are cached.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
