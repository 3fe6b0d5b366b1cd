package embedder

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/pdfrag-go/internal/rag"
)

// Backend names accepted by EMBEDDING_PROVIDER.
const (
	BackendLocal  = "local"
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
)

// Default embedding models and cache sizing.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultCacheSize   = 4096
	defaultAzureAPIVer = "2025-04-01-preview"
)

// Config describes which embedding backend to build and how to wrap it.
type Config struct {
	// Backend is one of local, ollama, openai, azure. Empty means local.
	Backend string
	// Model is the remote embedding model; ignored by the local backend.
	Model string
	// APIKey authenticates against openai or azure.
	APIKey string
	// Endpoint is the backend base URL (Ollama host, OpenAI base URL or Azure
	// resource endpoint).
	Endpoint string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Dimensions is the vector length. For local it sets the hash width; for
	// openai/azure it is sent as the requested dimension (0 = model default).
	Dimensions int
	// CacheSize is the LRU capacity in vectors. 0 disables the cache.
	CacheSize int
	// RPS limits Embed calls per second on remote backends. 0 disables pacing.
	RPS float64
}

// ConfigFromEnv reads the embedder configuration from environment variables.
// Remote credentials fall back to the chat provider's variables when the
// EMBEDDING_* overrides are not set.
func ConfigFromEnv() Config {
	cfg := Config{
		Backend:    strings.ToLower(getEnvOrDefault("EMBEDDING_PROVIDER", BackendLocal)),
		Model:      getEnv("EMBEDDING_MODEL"),
		APIKey:     getEnv("EMBEDDING_API_KEY"),
		Endpoint:   getEnv("EMBEDDING_ENDPOINT"),
		APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", defaultAzureAPIVer),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		CacheSize:  getEnvInt("EMBEDDING_CACHE_SIZE", defaultCacheSize),
		RPS:        getEnvFloat("EMBEDDING_RPS", 0),
	}

	switch cfg.Backend {
	case BackendOllama:
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOllamaModel
		}
	case BackendOpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
	case BackendAzure:
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
	}
	return cfg
}

// New constructs the configured backend and wraps it with the throttle (remote
// backends only) and the cache. log receives configuration warnings and may
// be nil.
func New(cfg Config, log *slog.Logger) (rag.Embedder, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(log); err != nil {
		return nil, err
	}

	var (
		emb    rag.Embedder
		remote = true
	)
	switch cfg.Backend {
	case "", BackendLocal:
		emb = NewLocalEmbedder(cfg.Dimensions)
		remote = false
	case BackendOllama:
		emb = NewOllamaEmbedder(&OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model})
	case BackendOpenAI:
		emb = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case BackendAzure:
		emb = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		})
	}

	if remote && cfg.RPS > 0 {
		t, err := NewThrottled(emb, cfg.RPS, 1)
		if err != nil {
			return nil, err
		}
		emb = t
	}
	if cfg.CacheSize > 0 {
		c, err := NewCached(emb, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		emb = c
	}

	log.Info("embedder configured",
		slog.String("backend", cfg.backendName()),
		slog.String("model", cfg.Model),
		slog.Int("cache_size", cfg.CacheSize),
		slog.Float64("rps", cfg.RPS),
	)
	return emb, nil
}

// NewFromEnv is shorthand for New(ConfigFromEnv(), log).
func NewFromEnv(log *slog.Logger) (rag.Embedder, error) {
	return New(ConfigFromEnv(), log)
}

func (c Config) backendName() string {
	if c.Backend == "" {
		return BackendLocal
	}
	return c.Backend
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat is getEnvInt for floating point values.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
