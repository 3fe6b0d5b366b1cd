// Package provider selects and constructs the chat model that answers
// questions. MODEL_PROVIDER picks the backend at startup; every backend is an
// eino-ext ChatModel so callers only see model.BaseChatModel.
// Supported backends: Gemini (default), OpenAI, Azure OpenAI, Ollama, Ark.
package provider

import "fmt"

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendOpenAI selects the OpenAI API or an OpenAI-compatible endpoint.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendArk selects Volcano Engine Ark.
	BackendArk Backend = "ark"
)

// ProviderGemini holds Gemini settings.
type ProviderGemini struct {
	// APIKey is read from GOOGLE_API_KEY.
	APIKey string
	// Model defaults to gemini-2.5-flash.
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is read from OPENAI_API_KEY.
	APIKey string
	// Model defaults to gpt-4o-mini.
	Model string
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama base URL.
	Host string
	// Model is the local model tag (e.g. "llama3").
	Model string
}

// ProviderArk holds Volcano Engine Ark settings.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SharedTuning holds generation parameters applied to every backend that
// supports them.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per answer.
	MaxTokens int
	// Temperature controls response randomness (0.0-1.0).
	Temperature float32
}

// Config holds the resolved provider configuration. Only the block matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Gemini      ProviderGemini
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ollama      ProviderOllama
	Ark         ProviderArk

	// Tuning is shared across backends.
	Tuning SharedTuning
}

// ModelName returns the model or deployment name of the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendGemini:
		return c.Gemini.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendOllama:
		return c.Ollama.Model
	case BackendArk:
		return c.Ark.Model
	default:
		return ""
	}
}

// ConfigError reports missing or invalid provider settings. It is returned at
// startup so misconfiguration fails fast instead of on the first question.
type ConfigError struct {
	// Backend is the backend being configured.
	Backend Backend
	// Var is the environment variable that needs attention, when known.
	Var string
	// Reason describes the problem.
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Var == "" {
		return fmt.Sprintf("provider: %s", e.Reason)
	}
	return fmt.Sprintf("provider: %s backend: %s %s", e.Backend, e.Var, e.Reason)
}
