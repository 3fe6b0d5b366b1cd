package embedder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/54b3r/pdfrag-go/internal/rag"
)

// Throttled paces calls to a remote embedder with a token bucket so that
// indexing a large document does not trip provider-side rate limits. Each
// Embed call consumes one token regardless of batch size.
type Throttled struct {
	next    rag.Embedder
	limiter *rate.Limiter
}

// NewThrottled wraps next with a limiter allowing rps calls per second and
// bursts of up to burst calls. burst values below 1 are treated as 1.
func NewThrottled(next rag.Embedder, rps float64, burst int) (*Throttled, error) {
	if next == nil {
		return nil, fmt.Errorf("embedder: throttled embedder requires a backend")
	}
	if rps <= 0 {
		return nil, fmt.Errorf("embedder: rps must be positive, got %v", rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}, nil
}

// Embed waits for a token, then delegates to the wrapped embedder. It returns
// early with the context error if ctx ends while waiting.
func (t *Throttled) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedder: waiting for rate limiter: %w", err)
	}
	return t.next.Embed(ctx, texts)
}
