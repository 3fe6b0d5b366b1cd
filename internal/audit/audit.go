// Package audit records which pdfrag settings a command started with. Every
// pdfrag command logs one entry before it touches a document, grouping the
// model, embedding, document, retrieval, server and tracing variables that
// shaped the run.
//
// Credentials are reported as "set" or "unset" and their values never reach
// the log.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// secretEnvKeys are the credential variables pdfrag reads.
var secretEnvKeys = map[string]bool{
	"GOOGLE_API_KEY":       true,
	"OPENAI_API_KEY":       true,
	"AZURE_OPENAI_API_KEY": true,
	"ARK_API_KEY":          true,
	"EMBEDDING_API_KEY":    true,
	"LANGFUSE_PUBLIC_KEY":  true,
	"LANGFUSE_SECRET_KEY":  true,
}

// keyGroup is one section of the audit entry.
type keyGroup struct {
	name string
	keys []string
}

// auditGroups mirrors the sections of the pdfrag config file.
var auditGroups = []keyGroup{
	{name: "model", keys: []string{
		"MODEL_PROVIDER",
		"GOOGLE_API_KEY", "GEMINI_MODEL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT",
		"OLLAMA_HOST", "OLLAMA_MODEL",
		"ARK_API_KEY", "ARK_MODEL",
		"ANSWER_TIMEOUT",
	}},
	{name: "embedding", keys: []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY",
	}},
	{name: "document", keys: []string{
		"PDF_MAX_BYTES", "PDF_PARSE_TIMEOUT", "CHUNK_SIZE", "CHUNK_OVERLAP",
	}},
	{name: "retrieval", keys: []string{
		"RETRIEVAL_TOP_K", "PROMPT_MODE",
	}},
	{name: "server", keys: []string{
		"PDFRAG_HOST", "PDFRAG_PORT", "READY_PROBE_LLM",
	}},
	{name: "logging", keys: []string{
		"LOG_LEVEL", "LOG_FORMAT",
	}},
	{name: "tracing", keys: []string{
		"LANGFUSE_HOST", "LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY",
	}},
}

// LogCommandStart logs the command name, the config file it loaded and the
// pdfrag settings in effect, one slog group per config section.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, g := range auditGroups {
		values := make([]any, 0, len(g.keys))
		for _, key := range g.keys {
			values = append(values, slog.String(key, SanitiseKey(key, os.Getenv(key))))
		}
		attrs = append(attrs, slog.Group(g.name, values...))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns the value of a pdfrag variable as it may appear in a
// log line: "set" or "unset" for credentials, the value or "unset" otherwise.
func SanitiseKey(key, value string) string {
	if secretEnvKeys[key] {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath shortens the home directory to "~" and reports "none"
// when no config file was loaded.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
