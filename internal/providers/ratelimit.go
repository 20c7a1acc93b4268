package providers

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a provider with a token bucket shared across
// embedding and generation.
type RateLimited struct {
	llm     LLMProvider
	embed   EmbeddingProvider
	limiter *rate.Limiter
}

// NewRateLimited wraps p. A non-positive rps disables throttling. p must implement
// LLMProvider, EmbeddingProvider, or both.
func NewRateLimited(p any, rps float64) *RateLimited {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	r := &RateLimited{limiter: rate.NewLimiter(limit, burst)}
	r.llm, _ = p.(LLMProvider)
	r.embed, _ = p.(EmbeddingProvider)
	return r
}

func (r *RateLimited) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return GenerateResponse{}, ProviderInfo{}, err
	}
	return r.llm.Generate(ctx, req)
}

func (r *RateLimited) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, ProviderInfo{}, err
	}
	return r.embed.Embed(ctx, req)
}
