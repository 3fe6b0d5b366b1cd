package rag

import (
	"context"
	"fmt"
	"strings"
)

// DefaultTopK is the number of segments retrieved per question when the
// caller passes 0.
const DefaultTopK = 3

// Retriever embeds a question and fetches the most similar segments from an
// Index. It holds no per-document state, so one Retriever serves every index.
type Retriever struct {
	// embedder converts question text to a dense vector. It must be the same
	// embedder the index was built with.
	embedder Embedder

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever from the given Embedder.
// defaultTopK sets the fallback result count when Retrieve is called with topK=0.
func NewRetriever(embedder Embedder, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Retriever{embedder: embedder, defaultTopK: defaultTopK}, nil
}

// Retrieve embeds question and returns the top-k matches from idx, most
// similar first. It returns ErrNoIndex when idx is nil.
func (r *Retriever) Retrieve(ctx context.Context, idx *Index, question string, topK int) ([]Match, error) {
	if idx == nil {
		return nil, ErrNoIndex
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	matches, err := idx.Query(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return matches, nil
}

// ContextBlock joins the matched segment texts with a newline, in rank order.
func ContextBlock(matches []Match) string {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	return strings.Join(texts, "\n")
}
