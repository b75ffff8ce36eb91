// Package azure implements embedding.Client on top of the OpenAI API, either
// through an Azure OpenAI resource or an OpenAI-compatible endpoint.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/efebarandurmaz/docindex/internal/embedding"
	"github.com/efebarandurmaz/docindex/internal/observability"
)

// Client embeds text through an OpenAI deployment.
type Client struct {
	client     *openai.Client
	provider   string
	dimensions int
}

type settings struct {
	dimensions int
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*settings)

// WithDimensions sets the expected vector length. Zero disables the check.
func WithDimensions(n int) Option {
	return func(s *settings) { s.dimensions = n }
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) { s.httpClient = hc }
}

// NewAzure creates a client for an Azure OpenAI resource. Requests are routed
// to the deployment named in each Embed call.
func NewAzure(apiKey, endpoint string, opts ...Option) (*Client, error) {
	if apiKey == "" || endpoint == "" {
		return nil, fmt.Errorf("azure: %w", embedding.ErrMissingCredentials)
	}
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	// Deployment names are used verbatim.
	cfg.AzureModelMapperFunc = func(model string) string { return model }
	return build("azure", cfg, opts), nil
}

// NewOpenAI creates a client for the OpenAI API or any compatible server.
// An empty baseURL selects api.openai.com.
func NewOpenAI(apiKey, baseURL string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", embedding.ErrMissingCredentials)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return build("openai", cfg, opts), nil
}

func build(provider string, cfg openai.ClientConfig, opts []Option) *Client {
	s := settings{dimensions: embedding.Dimensions}
	for _, opt := range opts {
		opt(&s)
	}
	if s.httpClient != nil {
		cfg.HTTPClient = s.httpClient
	}
	return &Client{
		client:     openai.NewClientWithConfig(cfg),
		provider:   provider,
		dimensions: s.dimensions,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return c.provider }

// Embed requests the embedding of text from deployment.
func (c *Client) Embed(ctx context.Context, text, deployment string) (embedding.Vector, error) {
	ctx, span := observability.StartEmbedSpan(ctx, c.provider, deployment, len(text))
	defer span.End()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(deployment),
	})
	if err != nil {
		err = classify(ctx, err)
		observability.RecordError(span, err)
		return nil, err
	}
	if len(resp.Data) == 0 {
		err := &embedding.RequestFailedError{Message: "no embedding data returned"}
		observability.RecordError(span, err)
		return nil, err
	}

	raw := resp.Data[0].Embedding
	if c.dimensions > 0 && len(raw) != c.dimensions {
		err := fmt.Errorf("%s: expected %d dimensions, got %d", c.provider, c.dimensions, len(raw))
		observability.RecordError(span, err)
		return nil, err
	}
	v := make(embedding.Vector, len(raw))
	for i := range raw {
		v[i] = float32(raw[i])
	}
	return v, nil
}

// classify maps go-openai errors onto embedding.RequestFailedError. Context
// errors are passed through untouched.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &embedding.RequestFailedError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &embedding.RequestFailedError{StatusCode: reqErr.HTTPStatusCode, Message: msg, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &embedding.RequestFailedError{Message: err.Error(), Err: err}
}
