package embedder

import (
	"context"
	"errors"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrEmptyInput is returned when asked to embed an empty or whitespace-only
// string. Segments produced by the chunker are never empty, so this only
// surfaces for blank queries.
var ErrEmptyInput = errors.New("embedder: cannot embed empty text")

const (
	// defaultLocalDimensions matches the width of all-MiniLM-L6-v2 so indexes
	// built locally have the same shape as a hosted sentence-transformer.
	defaultLocalDimensions = 384

	// biasWeight is written to component 0 of every local vector so that no
	// vector is ever all zeros, even for text made only of stopwords.
	biasWeight = 0.05

	// bigramWeight scales adjacent-word features relative to single words.
	bigramWeight = 0.5
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// LocalEmbedder is an offline, deterministic embedder based on feature
// hashing. Lower-cased word unigrams and bigrams are hashed with xxhash into
// a fixed number of signed buckets, weighted by sublinear term frequency and
// L2-normalised. It needs no corpus preparation and is safe for concurrent
// use.
type LocalEmbedder struct {
	// dims is the output vector length; component 0 is reserved for the bias.
	dims int
	// stopwords are dropped before hashing.
	stopwords map[string]struct{}
}

// NewLocalEmbedder constructs a LocalEmbedder producing vectors of length
// dims. Values below 16 fall back to the default of 384.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims < 16 {
		dims = defaultLocalDimensions
	}
	return &LocalEmbedder{dims: dims, stopwords: defaultStopwords()}
}

// Dimensions returns the length of the vectors this embedder produces.
func (e *LocalEmbedder) Dimensions() int { return e.dims }

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyInput
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

// vector computes the hashed feature vector for one text.
func (e *LocalEmbedder) vector(text string) []float32 {
	tokens := e.tokenize(text)

	counts := make(map[string]float64, len(tokens)*2)
	for i, tok := range tokens {
		counts[tok]++
		if i > 0 {
			counts[tokens[i-1]+" "+tok] += bigramWeight
		}
	}

	// Accumulate in sorted term order so colliding buckets always sum the
	// same way and the output is bit-for-bit reproducible.
	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	slices.Sort(terms)

	acc := make([]float64, e.dims)
	acc[0] = biasWeight
	buckets := uint64(e.dims - 1)
	for _, term := range terms {
		h := xxhash.Sum64String(term)
		idx := 1 + int(h%buckets)
		weight := 1 + math.Log(counts[term])
		if counts[term] < 1 {
			weight = counts[term]
		}
		if h>>63 == 1 {
			weight = -weight
		}
		acc[idx] += weight
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dims)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// tokenize lower-cases text, extracts letter/digit runs and drops stopwords.
func (e *LocalEmbedder) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := e.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these",
		"those", "from", "up", "down", "over", "under", "so", "such", "into", "about", "than", "can", "will",
		"just", "should", "now", "what", "which", "who", "whom", "how", "when", "where", "why", "do", "does",
		"did", "i", "you", "we", "they", "he", "she", "me", "my", "your", "our", "their", "there", "here",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
