package embedder

import (
	"fmt"
	"log/slog"
	"strings"
)

// knownChatModelFragments identify chat/completion models which are not
// suitable for embedding. A match only produces a warning.
var knownChatModelFragments = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"gemini-",
	"llama3",
	"llama2",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"deepseek",
	"qwen",
}

// looksLikeChatModel reports whether model resembles a chat model rather than
// a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, frag := range knownChatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// Validate checks that the configuration can produce a working embedder. It
// returns an error for settings that are clearly broken (unknown backend,
// missing credentials, negative sizes) and logs a warning when the model name
// looks like a chat model.
func (c Config) Validate(log *slog.Logger) error {
	if c.CacheSize < 0 {
		return fmt.Errorf("embedder: EMBEDDING_CACHE_SIZE must not be negative, got %d", c.CacheSize)
	}
	if c.RPS < 0 {
		return fmt.Errorf("embedder: EMBEDDING_RPS must not be negative, got %v", c.RPS)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must not be negative, got %d", c.Dimensions)
	}

	switch c.Backend {
	case "", BackendLocal:
		return nil
	case BackendOllama:
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: ollama requires OLLAMA_HOST or EMBEDDING_ENDPOINT")
		}
	case BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q (valid: local, ollama, openai, azure)", c.Backend)
	}

	if looksLikeChatModel(c.Model) && log != nil {
		log.Warn("EMBEDDING_MODEL looks like a chat model; retrieval quality will suffer",
			slog.String("backend", c.Backend),
			slog.String("model", c.Model),
		)
	}
	return nil
}
