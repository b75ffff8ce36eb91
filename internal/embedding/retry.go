package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig configures retry behavior for transient embedding failures.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts (0 = no retries)
	RetryDelay time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Caps exponential backoff
	Timeout    time.Duration // Per-request timeout
}

// DefaultRetryConfig returns a sensible default configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    2 * time.Minute,
	}
}

// RetryClient wraps a Client with per-attempt timeouts and retries of
// transient failures. Rejections (4xx other than 429) are returned on the
// first attempt so the caller can split the input instead.
type RetryClient struct {
	inner  Client
	config *RetryConfig
	logger *slog.Logger
}

// NewRetryClient wraps an existing client with retry logic.
func NewRetryClient(inner Client, config *RetryConfig) *RetryClient {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryClient{inner: inner, config: config, logger: slog.Default()}
}

// Name returns the underlying client name.
func (r *RetryClient) Name() string { return r.inner.Name() }

// Embed sends an embedding request with timeout and retry logic.
func (r *RetryClient) Embed(ctx context.Context, text, deployment string) (Vector, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.RetryDelay
	b.MaxInterval = r.config.MaxDelay

	attempt := 0
	op := func() (Vector, error) {
		attempt++
		attemptCtx := ctx
		if r.config.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
			defer cancel()
		}
		v, err := r.inner.Embed(attemptCtx, text, deployment)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !isTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.config.MaxRetries+1)),
		backoff.WithNotify(func(err error, d time.Duration) {
			r.logger.Warn("embedding request failed, retrying", "attempt", attempt, "delay", d, "error", err)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > 1 {
			return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		return nil, err
	}
	return v, nil
}

// isTransient determines if an error is worth retrying unchanged.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var rf *RequestFailedError
	if errors.As(err, &rf) && rf.StatusCode != 0 {
		switch {
		case rf.StatusCode == http.StatusTooManyRequests:
			return true
		case rf.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	// No status code: the request never got an answer.
	return rf != nil
}
