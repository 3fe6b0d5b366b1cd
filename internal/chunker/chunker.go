// Package chunker splits extracted page text into overlapping segments sized
// for embedding. Splitting is delegated to langchaingo's recursive character
// splitter, which prefers paragraph, then line, then word boundaries.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/54b3r/pdfrag-go/internal/ingest"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

const (
	// DefaultSize is the target segment length in characters.
	DefaultSize = 1000
	// DefaultOverlap is the number of characters shared by consecutive segments.
	DefaultOverlap = 200
	// NoOverlap disables overlap; a zero Overlap selects the default instead.
	NoOverlap = -1
)

// pageBreak separates the text of consecutive pages.
const pageBreak = "\n\n"

var (
	blankRun   = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	trailingWS = regexp.MustCompile(`(?m)[ \t]+$`)
	manyBreaks = regexp.MustCompile(`\n{3,}`)
)

// Config holds the chunker settings.
type Config struct {
	// Size is the maximum segment length in characters. Defaults to 1000 if zero.
	Size int
	// Overlap is the shared length between consecutive segments. Must be
	// smaller than Size. Zero means 200 when Size exceeds it; NoOverlap
	// turns overlap off.
	Overlap int
}

// Chunker turns pages into segments. It is stateless and safe for concurrent
// use.
type Chunker struct {
	size    int
	overlap int
}

// New validates cfg and returns a Chunker.
func New(cfg Config) (*Chunker, error) {
	if cfg.Size == 0 {
		cfg.Size = DefaultSize
	}
	switch {
	case cfg.Overlap == NoOverlap:
		cfg.Overlap = 0
	case cfg.Overlap == 0 && cfg.Size > DefaultOverlap:
		cfg.Overlap = DefaultOverlap
	}
	if cfg.Size < 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d", cfg.Size)
	}
	if cfg.Overlap < 0 {
		return nil, errors.New("chunker: overlap cannot be negative")
	}
	if cfg.Overlap >= cfg.Size {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than size %d", cfg.Overlap, cfg.Size)
	}
	return &Chunker{size: cfg.Size, overlap: cfg.Overlap}, nil
}

// Split normalises the page texts, joins them with paragraph breaks and
// splits the result into segments in document order. Pages with no text are
// skipped. The result is empty only when no page has text.
func (c *Chunker) Split(pages []ingest.Page) ([]rag.Segment, error) {
	var (
		b      strings.Builder
		starts []pageStart
	)
	for _, p := range pages {
		text := Normalize(p.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(pageBreak)
		}
		starts = append(starts, pageStart{offset: b.Len(), page: p.Number})
		b.WriteString(text)
	}
	full := b.String()
	if full == "" {
		return nil, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		textsplitter.WithChunkSize(c.size),
		textsplitter.WithChunkOverlap(c.overlap),
	)
	parts, err := splitter.SplitText(full)
	if err != nil {
		return nil, fmt.Errorf("chunker: split text: %w", err)
	}

	segments := make([]rag.Segment, 0, len(parts))
	cursor := 0
	for _, part := range parts {
		text := strings.TrimSpace(part)
		if text == "" {
			continue
		}
		offset := cursor
		if i := strings.Index(full[cursor:], text); i >= 0 {
			offset = cursor + i
			cursor = offset
		}
		segments = append(segments, rag.Segment{
			Seq:  len(segments),
			Text: text,
			Page: pageAt(starts, offset),
		})
	}
	return segments, nil
}

// Normalize converts CRLF to LF, collapses runs of blanks, strips trailing
// blanks from lines, limits consecutive newlines to one paragraph break and
// trims the result.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankRun.ReplaceAllString(text, " ")
	text = trailingWS.ReplaceAllString(text, "")
	text = manyBreaks.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

type pageStart struct {
	offset int
	page   int
}

// pageAt returns the page whose text contains offset.
func pageAt(starts []pageStart, offset int) int {
	page := 0
	for _, s := range starts {
		if s.offset > offset {
			break
		}
		page = s.page
	}
	return page
}
