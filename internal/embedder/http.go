// Package embedder provides implementations of the rag.Embedder interface.
// The default backend hashes words locally and needs no network; the Ollama
// and OpenAI-compatible backends call their embedding endpoints over plain
// HTTP. Cached and Throttled wrap any backend.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a failed response body is quoted in errors.
const maxErrorBody = 512

// postJSON marshals body, POSTs it to url with the given headers and decodes
// a 2xx response into out. Non-2xx responses are returned as errors carrying
// errMsg(raw body) when it yields a message, otherwise the HTTP status.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, errMsg func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg := errMsg(raw); msg != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
		}
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		if snippet == "" {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkInputs rejects batches containing blank text.
func checkInputs(texts []string) error {
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return ErrEmptyInput
		}
	}
	return nil
}
