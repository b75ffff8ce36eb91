package embedding

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig holds all configuration needed to create any embedding client.
type ProviderConfig struct {
	Provider string // "azure", "openai"
	APIKey   string
	Endpoint string // Azure resource endpoint or OpenAI-compatible base URL

	// Timeout and retry configuration
	Timeout    time.Duration // Per-request timeout (default: 2 minutes)
	MaxRetries int           // Max retry attempts for transient failures
	RetryDelay time.Duration // Initial retry delay for exponential backoff (default: 1s)

	// RequestsPerMinute paces requests (0 = unlimited)
	RequestsPerMinute int
}

// ClientConstructor builds a Client from config.
type ClientConstructor func(cfg ProviderConfig) (Client, error)

// Factory creates Client instances from config.
type Factory struct {
	constructors map[string]ClientConstructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]ClientConstructor)}
}

// Register adds a client constructor under the given name.
func (f *Factory) Register(name string, ctor ClientConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Client from config, wrapped with retry and rate limiting.
func (f *Factory) Create(cfg ProviderConfig) (Client, error) {
	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q, registered: %v", cfg.Provider, f.names())
	}
	client, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = 1 * time.Second
	}
	client = NewRetryClient(client, &RetryConfig{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: retryDelay,
		MaxDelay:   30 * time.Second,
		Timeout:    timeout,
	})

	if cfg.RequestsPerMinute > 0 {
		client = WithRateLimit(client, &RateLimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
			BurstSize:         DefaultRateLimitConfig().BurstSize,
		})
	}
	return client, nil
}

func (f *Factory) names() []string {
	var out []string
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
