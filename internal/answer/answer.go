// Package answer sends a finished prompt to the configured chat model and
// returns the reply text.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pdfrag-go/internal/budget"
	"github.com/54b3r/pdfrag-go/internal/logging"
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 60 * time.Second

// Answerer turns a prompt into answer text. Implementations must be safe for
// concurrent use.
type Answerer interface {
	Answer(ctx context.Context, prompt string) (string, error)
}

// Func adapts an ordinary function to the Answerer interface.
type Func func(ctx context.Context, prompt string) (string, error)

// Answer calls f.
func (f Func) Answer(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

// UpstreamError reports that the model call failed: transport, API error,
// timeout or an empty reply. It is never retried.
type UpstreamError struct {
	// Model is the configured model name, when known.
	Model string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Model == "" {
		return "answer: model call failed: " + e.Err.Error()
	}
	return fmt.Sprintf("answer: model %s call failed: %s", e.Model, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UpstreamError) Unwrap() error { return e.Err }

// Timeout reports whether the call failed because its deadline passed.
func (e *UpstreamError) Timeout() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

// Config holds the ChatModelAnswerer settings.
type Config struct {
	// ModelName is used in logs and errors only.
	ModelName string
	// Timeout bounds each call. Defaults to 60s if zero.
	Timeout time.Duration
	// MaxPromptTokens triggers a warning when the estimated prompt size is
	// larger. Zero disables the warning.
	MaxPromptTokens int
}

// ChatModelAnswerer answers prompts with an eino chat model. The prompt is
// wrapped in a single user message by a compiled chain, so tracing callbacks
// see the full exchange.
type ChatModelAnswerer struct {
	// runnable is the compiled prompt -> message -> model chain.
	runnable compose.Runnable[string, *schema.Message]
	// cfg holds the resolved configuration.
	cfg Config
}

// NewChatModelAnswerer compiles the answer chain around m.
func NewChatModelAnswerer(ctx context.Context, m model.BaseChatModel, cfg Config) (*ChatModelAnswerer, error) {
	if m == nil {
		return nil, fmt.Errorf("answer: chat model must not be nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	toMessages := func(ctx context.Context, prompt string) ([]*schema.Message, error) {
		msgs := []*schema.Message{schema.UserMessage(prompt)}
		if tokens, over := budget.Check(msgs, cfg.MaxPromptTokens); over {
			logging.FromContext(ctx).Warn("prompt exceeds token budget",
				slog.Int("estimated_tokens", tokens),
				slog.Int("max_prompt_tokens", cfg.MaxPromptTokens),
			)
		}
		return msgs, nil
	}

	chain := compose.NewChain[string, *schema.Message]()
	chain.
		AppendLambda(compose.InvokableLambda(toMessages)).
		AppendChatModel(m)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("answer: compile chain: %w", err)
	}
	return &ChatModelAnswerer{runnable: runnable, cfg: cfg}, nil
}

// Answer invokes the model synchronously under the configured timeout and
// returns the trimmed reply. Every failure is an *UpstreamError.
func (a *ChatModelAnswerer) Answer(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	msg, err := a.runnable.Invoke(ctx, prompt)
	log := logging.FromContext(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		log.Error("model call failed",
			slog.String("model", a.cfg.ModelName),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return "", &UpstreamError{Model: a.cfg.ModelName, Err: err}
	}

	text := ""
	if msg != nil {
		text = strings.TrimSpace(msg.Content)
	}
	if text == "" {
		return "", &UpstreamError{Model: a.cfg.ModelName, Err: errors.New("model returned an empty answer")}
	}

	log.Debug("model call complete",
		slog.String("model", a.cfg.ModelName),
		slog.Duration("duration", time.Since(start)),
		slog.Int("answer_chars", len(text)),
	)
	return text, nil
}
