package provider

import "strings"

// Validate checks that the selected backend has everything it needs. It
// returns a *ConfigError naming the first missing variable.
func (c *Config) Validate() error {
	missing := func(v string) error {
		return &ConfigError{Backend: c.Backend, Var: v, Reason: "is required"}
	}

	switch c.Backend {
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return missing("GOOGLE_API_KEY")
		}
		if c.Gemini.Model == "" {
			return missing("GEMINI_MODEL")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return missing("OPENAI_API_KEY")
		}
		if c.OpenAI.Model == "" {
			return missing("OPENAI_MODEL")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return missing("AZURE_OPENAI_API_KEY")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return missing("AZURE_OPENAI_ENDPOINT")
		}
		if c.AzureOpenAI.Deployment == "" {
			return missing("AZURE_OPENAI_DEPLOYMENT")
		}
	case BackendOllama:
		if c.Ollama.Host == "" {
			return missing("OLLAMA_HOST")
		}
		if c.Ollama.Model == "" {
			return missing("OLLAMA_MODEL")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return missing("ARK_API_KEY")
		}
		if c.Ark.Model == "" {
			return missing("ARK_MODEL")
		}
	default:
		return &ConfigError{
			Backend: c.Backend,
			Reason:  "unknown backend \"" + string(c.Backend) + "\" (valid: gemini, openai, azure, ollama, ark)",
		}
	}

	if c.Tuning.MaxTokens < 0 {
		return &ConfigError{Backend: c.Backend, Var: "MODEL_MAX_TOKENS", Reason: "must not be negative"}
	}
	if c.Tuning.Temperature < 0 || c.Tuning.Temperature > 2 {
		return &ConfigError{Backend: c.Backend, Var: "MODEL_TEMPERATURE", Reason: "must be between 0 and 2"}
	}
	return nil
}

// isAzureReasoningModel reports whether an Azure deployment name refers to an
// o-series or codex reasoning model. Those reject temperature and max_tokens.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	if strings.HasPrefix(d, "codex") {
		return true
	}
	for _, p := range []string{"o1", "o3", "o4"} {
		if d == p || strings.HasPrefix(d, p+"-") {
			return true
		}
	}
	return false
}
