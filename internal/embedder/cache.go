package embedder

import (
	"context"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/54b3r/pdfrag-go/internal/rag"
)

// Cached wraps an Embedder with a fixed-size LRU keyed by input text.
// Embedders are deterministic, so a cached vector is always the vector the
// wrapped backend would have returned.
type Cached struct {
	next  rag.Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached returns an Embedder that serves repeated texts from an LRU of the
// given size and forwards only misses to next.
func NewCached(next rag.Embedder, size int) (*Cached, error) {
	if next == nil {
		return nil, fmt.Errorf("embedder: cached embedder requires a backend")
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedder: create cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

// Embed returns one vector per text, calling the wrapped embedder once with
// the texts not already cached.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var (
		missTexts []string
		missPos   []int
	)
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = slices.Clone(v)
			continue
		}
		missTexts = append(missTexts, t)
		missPos = append(missPos, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder: backend returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, v := range vecs {
		c.cache.Add(missTexts[j], slices.Clone(v))
		out[missPos[j]] = v
	}
	return out, nil
}

// Len reports the number of cached vectors.
func (c *Cached) Len() int { return c.cache.Len() }
