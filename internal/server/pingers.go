package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pdfrag-go/internal/rag"
)

// EmbedderPinger probes the configured embedder by embedding a single short
// text. For the local embedder this is free; for remote backends it is one
// small request.
type EmbedderPinger struct {
	// embedder is the embedder to probe.
	embedder rag.Embedder
}

// NewEmbedderPinger constructs an EmbedderPinger for emb.
func NewEmbedderPinger(emb rag.Embedder) *EmbedderPinger {
	return &EmbedderPinger{embedder: emb}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds "ping" and checks that exactly one non-empty vector came back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed returned %d vectors", len(vecs))
	}
	return nil
}

// LLMPinger probes an LLM backend by sending a minimal generate request. It
// consumes tokens on every probe, so it is only registered when
// READY_PROBE_LLM is set.
type LLMPinger struct {
	// model is the chat model to probe.
	model model.BaseChatModel
	// name identifies the backend in readiness responses (e.g. "gemini").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.BaseChatModel, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a one-word generate request.
func (p *LLMPinger) Ping(ctx context.Context) error {
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}
