package rag

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"
	"strconv"

	"github.com/philippgille/chromem-go"
)

// defaultBatchSize is the number of segment texts sent to the embedder per
// Embed call while building an index.
const defaultBatchSize = 64

// collectionName is the name of the single collection inside each Index's
// private chromem database.
const collectionName = "segments"

// Index is an immutable nearest-neighbour index over the segments of one
// document. It is safe for concurrent queries; nothing mutates it after
// Build returns.
type Index struct {
	// collection holds one chromem document per segment. Document IDs are the
	// decimal insertion position into segments.
	collection *chromem.Collection

	// segments is the indexed content in insertion order.
	segments []Segment

	// dims is the vector dimension every stored embedding shares.
	dims int
}

// Build embeds every segment in order and returns an immutable Index pairing
// each vector with its segment. It fails with ErrEmptyDocument when segments
// is empty.
func Build(ctx context.Context, emb Embedder, segments []Segment) (*Index, error) {
	if emb == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if len(segments) == 0 {
		return nil, ErrEmptyDocument
	}

	vectors, err := embedAll(ctx, emb, segments)
	if err != nil {
		return nil, err
	}

	dims := len(vectors[0])
	docs := make([]chromem.Document, len(segments))
	for i, seg := range segments {
		if len(vectors[i]) != dims {
			return nil, fmt.Errorf("rag: segment %d has dimension %d, want %d", i, len(vectors[i]), dims)
		}
		if isZero(vectors[i]) {
			return nil, fmt.Errorf("rag: embedder returned a zero vector for segment %d", i)
		}
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   seg.Text,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"page": strconv.Itoa(seg.Page),
			},
		}
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, embeddingFunc(emb))
	if err != nil {
		return nil, fmt.Errorf("rag: create collection: %w", err)
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("rag: add segments to index: %w", err)
	}

	return &Index{
		collection: collection,
		segments:   slices.Clone(segments),
		dims:       dims,
	}, nil
}

// Len returns the number of segments held by the index.
func (idx *Index) Len() int { return len(idx.segments) }

// Dimensions returns the vector dimension of the index.
func (idx *Index) Dimensions() int { return idx.dims }

// Query returns up to k segments ordered from most to least similar to
// vector. When the index holds fewer than k entries all of them are returned.
// Equal similarities keep insertion order.
func (idx *Index) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("rag: k must be positive, got %d", k)
	}
	if len(vector) != idx.dims {
		return nil, fmt.Errorf("rag: query vector has dimension %d, index has %d", len(vector), idx.dims)
	}
	if isZero(vector) {
		return nil, fmt.Errorf("rag: query vector is zero")
	}

	// chromem does not define an order for equal scores, so every entry is
	// fetched and ranked here.
	results, err := idx.collection.QueryEmbedding(ctx, vector, idx.collection.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("rag: query index: %w", err)
	}

	type hit struct {
		pos   int
		match Match
	}
	hits := make([]hit, 0, len(results))
	for _, r := range results {
		pos, err := strconv.Atoi(r.ID)
		if err != nil || pos < 0 || pos >= len(idx.segments) {
			return nil, fmt.Errorf("rag: unknown document id %q in index", r.ID)
		}
		hits = append(hits, hit{pos: pos, match: Match{Segment: idx.segments[pos], Similarity: r.Similarity}})
	}

	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.match.Similarity, a.match.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = h.match
	}
	return matches, nil
}

// embedAll embeds segment texts in batches, preserving order.
func embedAll(ctx context.Context, emb Embedder, segments []Segment) ([][]float32, error) {
	vectors := make([][]float32, 0, len(segments))
	for start := 0; start < len(segments); start += defaultBatchSize {
		end := min(start+defaultBatchSize, len(segments))

		texts := make([]string, 0, end-start)
		for _, seg := range segments[start:end] {
			texts = append(texts, seg.Text)
		}

		batch, err := emb.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("rag: embedding segments %d-%d failed: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("rag: embedder returned %d vectors for %d segments", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// embeddingFunc adapts an Embedder to chromem's single-text signature.
func embeddingFunc(emb Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := emb.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("rag: embedder returned %d vectors for 1 text", len(vecs))
		}
		return vecs[0], nil
	}
}

// isZero reports whether every component of v is zero.
func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
