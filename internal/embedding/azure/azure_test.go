package azure

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/efebarandurmaz/docindex/internal/embedding"
)

func embeddingResponse(dims int) map[string]any {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(i) / float32(dims)
	}
	return map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"object": "embedding", "index": 0, "embedding": vec},
		},
		"model": "ada",
		"usage": map[string]int{"prompt_tokens": 3, "total_tokens": 3},
	}
}

func TestAzure_Embed_RoutesToDeployment(t *testing.T) {
	var gotPath, gotKey, gotInput string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("api-key")
		var body struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Input) == 1 {
			gotInput = body.Input[0]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embeddingResponse(embedding.Dimensions))
	}))
	defer srv.Close()

	c, err := NewAzure("secret", srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name() != "azure" {
		t.Errorf("expected name 'azure', got %s", c.Name())
	}

	v, err := c.Embed(context.Background(), "hello world", "text-embedding-ada-002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != embedding.Dimensions {
		t.Errorf("expected %d dimensions, got %d", embedding.Dimensions, len(v))
	}
	if gotPath != "/openai/deployments/text-embedding-ada-002/embeddings" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("expected api-key header 'secret', got %q", gotKey)
	}
	if gotInput != "hello world" {
		t.Errorf("expected input 'hello world', got %q", gotInput)
	}
}

func TestAzure_Embed_RejectionIsRequestFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"maximum context length exceeded","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, _ := NewAzure("secret", srv.URL)
	_, err := c.Embed(context.Background(), strings.Repeat("x", 100), "ada")
	if err == nil {
		t.Fatal("expected error")
	}
	var rf *embedding.RequestFailedError
	if !errors.As(err, &rf) {
		t.Fatalf("expected RequestFailedError, got %T: %v", err, err)
	}
	if rf.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rf.StatusCode)
	}
	if !strings.Contains(rf.Message, "maximum context length") {
		t.Errorf("unexpected message %q", rf.Message)
	}
}

func TestAzure_Embed_WrongDimensions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embeddingResponse(8))
	}))
	defer srv.Close()

	c, _ := NewAzure("secret", srv.URL)
	if _, err := c.Embed(context.Background(), "x", "ada"); err == nil {
		t.Fatal("expected dimension mismatch error")
	}

	c, _ = NewAzure("secret", srv.URL, WithDimensions(0))
	v, err := c.Embed(context.Background(), "x", "ada")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 8 {
		t.Errorf("expected 8 dimensions, got %d", len(v))
	}
}

func TestOpenAI_Embed_BearerAuth(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embeddingResponse(4))
	}))
	defer srv.Close()

	c, err := NewOpenAI("sk-test", srv.URL+"/v1", WithDimensions(4), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Embed(context.Background(), "x", "text-embedding-3-small"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/v1/embeddings" {
		t.Errorf("unexpected path %q", gotPath)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	if _, err := NewAzure("", "https://example.openai.azure.com"); !errors.Is(err, embedding.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if _, err := NewAzure("key", ""); !errors.Is(err, embedding.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if _, err := NewOpenAI("", ""); !errors.Is(err, embedding.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	f := embedding.NewFactory()
	Register(f)

	c, err := f.Create(embedding.ProviderConfig{Provider: "azure", APIKey: "k", Endpoint: "https://example.openai.azure.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name() != "azure" {
		t.Errorf("expected 'azure', got %s", c.Name())
	}
	if _, err := f.Create(embedding.ProviderConfig{Provider: "openai"}); err == nil {
		t.Error("expected error for missing key")
	}
}
