// Package rag defines the retrieval-augmented generation core: the segment
// and match types, the Embedder contract, the immutable per-document Index
// and the Retriever that turns a question into a context block.
package rag

import (
	"context"
	"errors"
)

var (
	// ErrEmptyDocument is returned when there is nothing to index, either
	// because the PDF had no extractable text or the segment list is empty.
	ErrEmptyDocument = errors.New("rag: document contains no extractable text")

	// ErrNoIndex is returned by the Retriever when it is handed a nil Index.
	ErrNoIndex = errors.New("rag: no index available")
)

// Segment is a bounded slice of document text, the unit of embedding and
// retrieval.
type Segment struct {
	// Seq is the position of the segment in the source document. It doubles
	// as the insertion order used to break similarity ties.
	Seq int

	// Text is the segment content. Never empty.
	Text string

	// Page is the 1-based page the segment starts on, or 0 when unknown.
	Page int
}

// Match is a Segment returned by an index query together with its score.
type Match struct {
	Segment

	// Similarity is the cosine similarity between the query vector and the
	// segment vector, in [-1, 1].
	Similarity float32
}

// Embedder converts text into dense vector embeddings.
// Implementations must be deterministic for a fixed configuration and safe to
// call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
