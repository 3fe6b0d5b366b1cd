// Package pipeline wires the ingest, chunk, index, retrieve, prompt and answer
// stages together. Pipeline serves stateless one-shot questions; Session adds
// the single active document of the interactive chat.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/pdfrag-go/internal/answer"
	"github.com/54b3r/pdfrag-go/internal/chunker"
	"github.com/54b3r/pdfrag-go/internal/ingest"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/prompt"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

var (
	// ErrNoDocumentLoaded is returned when a question is asked before any
	// document has been indexed.
	ErrNoDocumentLoaded = errors.New("pipeline: no document loaded")

	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("pipeline: question is required")
)

// Result is the outcome of answering one question.
type Result struct {
	// Answer is the model's reply.
	Answer string
	// Context holds the retrieved segments in rank order.
	Context []rag.Match
}

// Deps are the collaborators a Pipeline is assembled from. Ingestor and
// Chunker fall back to their defaults when nil.
type Deps struct {
	Ingestor *ingest.Ingestor
	Chunker  *chunker.Chunker
	Embedder rag.Embedder
	Answerer answer.Answerer
	// Metrics is optional.
	Metrics *Metrics
}

// Config holds the pipeline settings.
type Config struct {
	// TopK is the number of segments retrieved per question. Defaults to 3.
	TopK int
	// AskMode is the prompt template for stateless questions. Defaults to
	// prompt.ModeDocument.
	AskMode prompt.Mode
	// ChatMode is the prompt template for the interactive session. Defaults
	// to prompt.ModeAviation.
	ChatMode prompt.Mode
}

// Pipeline runs the retrieval-augmented answer flow. It holds only immutable
// collaborators and is safe for concurrent use.
type Pipeline struct {
	ingestor  *ingest.Ingestor
	chunker   *chunker.Chunker
	embedder  rag.Embedder
	retriever *rag.Retriever
	answerer  answer.Answerer
	metrics   *Metrics
	cfg       Config
}

// New validates deps and constructs a Pipeline.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Embedder == nil {
		return nil, fmt.Errorf("pipeline: embedder must not be nil")
	}
	if deps.Answerer == nil {
		return nil, fmt.Errorf("pipeline: answerer must not be nil")
	}
	if deps.Ingestor == nil {
		deps.Ingestor = ingest.New(ingest.Config{})
	}
	if deps.Chunker == nil {
		c, err := chunker.New(chunker.Config{})
		if err != nil {
			return nil, err
		}
		deps.Chunker = c
	}
	if cfg.TopK <= 0 {
		cfg.TopK = rag.DefaultTopK
	}
	if cfg.AskMode == "" {
		cfg.AskMode = prompt.ModeDocument
	}
	if cfg.ChatMode == "" {
		cfg.ChatMode = prompt.ModeAviation
	}

	retriever, err := rag.NewRetriever(deps.Embedder, cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	return &Pipeline{
		ingestor:  deps.Ingestor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		retriever: retriever,
		answerer:  deps.Answerer,
		metrics:   deps.Metrics,
		cfg:       cfg,
	}, nil
}

// Ask answers question against pdf without keeping any state: the document
// is indexed, queried once and discarded.
func (p *Pipeline) Ask(ctx context.Context, pdf io.Reader, question string) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, ErrEmptyQuestion
	}
	idx, err := p.BuildIndex(ctx, pdf)
	if err != nil {
		return Result{}, err
	}
	return p.Answer(ctx, idx, question, p.cfg.AskMode)
}

// BuildIndex extracts, chunks and embeds pdf into a new immutable index.
// A document without extractable text yields rag.ErrEmptyDocument.
func (p *Pipeline) BuildIndex(ctx context.Context, pdf io.Reader) (*rag.Index, error) {
	start := time.Now()
	pages, err := p.ingestor.Extract(ctx, pdf)
	p.metrics.observeStage(stageExtract, start)
	if err != nil {
		p.metrics.documentIndexed("parse_error", 0)
		return nil, err
	}
	return p.indexPages(ctx, pages)
}

// BuildIndexFile is BuildIndex for a PDF on disk.
func (p *Pipeline) BuildIndexFile(ctx context.Context, path string) (*rag.Index, error) {
	start := time.Now()
	pages, err := p.ingestor.ExtractFile(ctx, path)
	p.metrics.observeStage(stageExtract, start)
	if err != nil {
		p.metrics.documentIndexed("parse_error", 0)
		return nil, err
	}
	return p.indexPages(ctx, pages)
}

func (p *Pipeline) indexPages(ctx context.Context, pages []ingest.Page) (*rag.Index, error) {
	log := logging.FromContext(ctx)

	if !ingest.HasText(pages) {
		p.metrics.documentIndexed("empty", 0)
		return nil, rag.ErrEmptyDocument
	}

	start := time.Now()
	segments, err := p.chunker.Split(pages)
	p.metrics.observeStage(stageChunk, start)
	if err != nil {
		p.metrics.documentIndexed("error", 0)
		return nil, err
	}

	start = time.Now()
	idx, err := rag.Build(ctx, p.embedder, segments)
	p.metrics.observeStage(stageIndex, start)
	if err != nil {
		outcome := "error"
		if errors.Is(err, rag.ErrEmptyDocument) {
			outcome = "empty"
		}
		p.metrics.documentIndexed(outcome, 0)
		return nil, err
	}

	p.metrics.documentIndexed("ok", idx.Len())
	log.Info("document indexed",
		slog.Int("pages", len(pages)),
		slog.Int("segments", idx.Len()),
		slog.Int("dimensions", idx.Dimensions()),
	)
	return idx, nil
}

// Answer retrieves context for question from idx, builds the prompt for mode
// and asks the model. A nil idx yields ErrNoDocumentLoaded.
func (p *Pipeline) Answer(ctx context.Context, idx *rag.Index, question string, mode prompt.Mode) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, ErrEmptyQuestion
	}

	start := time.Now()
	matches, err := p.retriever.Retrieve(ctx, idx, question, p.cfg.TopK)
	p.metrics.observeStage(stageRetrieve, start)
	if errors.Is(err, rag.ErrNoIndex) {
		return Result{}, ErrNoDocumentLoaded
	}
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}

	text := prompt.Build(mode, rag.ContextBlock(matches), question)

	start = time.Now()
	reply, err := p.answerer.Answer(ctx, text)
	p.metrics.observeStage(stageAnswer, start)
	if err != nil {
		return Result{}, err
	}

	logging.FromContext(ctx).Debug("question answered",
		slog.String("mode", string(mode)),
		slog.Int("matches", len(matches)),
	)
	return Result{Answer: reply, Context: matches}, nil
}
