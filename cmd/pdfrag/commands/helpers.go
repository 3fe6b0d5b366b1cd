package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pdfrag-go/internal/answer"
	"github.com/54b3r/pdfrag-go/internal/budget"
	"github.com/54b3r/pdfrag-go/internal/chunker"
	"github.com/54b3r/pdfrag-go/internal/config"
	"github.com/54b3r/pdfrag-go/internal/embedder"
	"github.com/54b3r/pdfrag-go/internal/ingest"
	"github.com/54b3r/pdfrag-go/internal/pipeline"
	"github.com/54b3r/pdfrag-go/internal/prompt"
	"github.com/54b3r/pdfrag-go/internal/provider"
	"github.com/54b3r/pdfrag-go/internal/rag"
	"github.com/54b3r/pdfrag-go/internal/server"
)

// app bundles everything a command needs once configuration is resolved.
type app struct {
	pipeline    *pipeline.Pipeline
	embedder    rag.Embedder
	chatModel   model.BaseChatModel
	providerCfg *provider.Config
}

// buildApp reads configuration from the environment and assembles the
// embedder, chat model, answerer and pipeline. reg may be nil to skip
// pipeline metrics.
func buildApp(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*app, error) {
	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	emb, err := embedder.NewFromEnv(log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	answerer, err := answer.NewChatModelAnswerer(ctx, chatModel, answer.Config{
		ModelName:       providerCfg.ModelName(),
		Timeout:         config.Duration("ANSWER_TIMEOUT", answer.DefaultTimeout),
		MaxPromptTokens: config.Int("MODEL_MAX_PROMPT_TOKENS", budget.DefaultMaxPromptTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise answerer: %w", err)
	}

	ch, err := chunker.New(chunker.Config{
		Size:    config.Int("CHUNK_SIZE", chunker.DefaultSize),
		Overlap: chunkOverlap(),
	})
	if err != nil {
		return nil, err
	}

	chatMode, err := prompt.ParseMode(config.String("PROMPT_MODE", string(prompt.ModeAviation)))
	if err != nil {
		return nil, err
	}

	var metrics *pipeline.Metrics
	if reg != nil {
		metrics = pipeline.NewMetrics(reg)
	}

	p, err := pipeline.New(pipeline.Deps{
		Ingestor: ingest.New(ingest.Config{
			MaxBytes:     int64(config.Int("PDF_MAX_BYTES", int(ingest.DefaultMaxBytes))),
			ParseTimeout: config.Duration("PDF_PARSE_TIMEOUT", ingest.DefaultParseTimeout),
		}),
		Chunker:  ch,
		Embedder: emb,
		Answerer: answerer,
		Metrics:  metrics,
	}, pipeline.Config{
		TopK:     config.Int("RETRIEVAL_TOP_K", rag.DefaultTopK),
		ChatMode: chatMode,
	})
	if err != nil {
		return nil, err
	}

	return &app{pipeline: p, embedder: emb, chatModel: chatModel, providerCfg: providerCfg}, nil
}

// buildPingers returns the readiness probes for /api/ready. The LLM probe
// spends tokens and is only added when READY_PROBE_LLM is true.
func buildPingers(a *app, log *slog.Logger) []server.Pinger {
	pingers := []server.Pinger{server.NewEmbedderPinger(a.embedder)}
	if config.Bool("READY_PROBE_LLM") {
		pingers = append(pingers, server.NewLLMPinger(a.chatModel, string(a.providerCfg.Backend)))
		log.Info("readiness: LLM probe enabled", slog.String("backend", string(a.providerCfg.Backend)))
	}
	return pingers
}

// chunkOverlap reads CHUNK_OVERLAP. An explicit 0 disables overlap, while an
// unset value leaves the chunker default in place.
func chunkOverlap() int {
	if config.String("CHUNK_OVERLAP", "") == "0" {
		return chunker.NoOverlap
	}
	return config.Int("CHUNK_OVERLAP", 0)
}
