package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited limits the call rate of a Provider. Callers wait for a token;
// a cancelled context aborts the wait.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p to allow perSecond calls with the given burst.
// A burst below one is raised to one.
func NewRateLimited(p Provider, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{Provider: p, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// EmbedQuery waits for a token and embeds text.
func (r *RateLimited) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrEmbeddingFailed, err)
	}
	return r.Provider.EmbedQuery(ctx, text)
}

// EmbedDocuments waits for a token and embeds texts. A batch costs one token.
func (r *RateLimited) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrEmbeddingFailed, err)
	}
	return r.Provider.EmbedDocuments(ctx, texts)
}
