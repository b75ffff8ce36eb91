package embedding

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures request pacing towards the embedding service.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of API calls per minute (0 = unlimited)
	RequestsPerMinute int
	// BurstSize allows temporary burst above the rate limit
	BurstSize int
}

// DefaultRateLimitConfig returns defaults suited to a standard Azure OpenAI quota.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 240,
		BurstSize:         4,
	}
}

// RateLimitClient wraps a client with a token-bucket limiter.
type RateLimitClient struct {
	inner    Client
	limiter  *rate.Limiter
	requests atomic.Int64
}

// NewRateLimitClient creates a rate-limited client wrapper.
func NewRateLimitClient(inner Client, config *RateLimitConfig) *RateLimitClient {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(config.RequestsPerMinute) / 60.0)
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitClient{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

// Name returns the underlying client name.
func (r *RateLimitClient) Name() string { return r.inner.Name() }

// Embed waits for limiter clearance and delegates to the inner client.
func (r *RateLimitClient) Embed(ctx context.Context, text, deployment string) (Vector, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	r.requests.Add(1)
	return r.inner.Embed(ctx, text, deployment)
}

// Requests returns how many requests were let through.
func (r *RateLimitClient) Requests() int64 { return r.requests.Load() }

// WithRateLimit wraps a client with rate limiting.
func WithRateLimit(c Client, config *RateLimitConfig) Client {
	if c == nil {
		return nil
	}
	return NewRateLimitClient(c, config)
}
