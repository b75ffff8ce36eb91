package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedding.Provider != "azure" {
		t.Errorf("expected provider 'azure', got %s", cfg.Embedding.Provider)
	}
	if cfg.Index.TokensPerChunk != 4096 || cfg.Index.CharsPerToken != 2.5 {
		t.Errorf("unexpected chunk defaults %+v", cfg.Index)
	}
	if cfg.Search.Top != 15 {
		t.Errorf("expected top 15, got %d", cfg.Search.Top)
	}
	if cfg.Vector.Backend != "flat" {
		t.Errorf("expected flat backend, got %s", cfg.Vector.Backend)
	}
	if cfg.Index.DocumentsDir() != DefaultProject {
		t.Errorf("expected documents dir %s, got %s", DefaultProject, cfg.Index.DocumentsDir())
	}
	if cfg.Embedding.Timeout != 2*time.Minute {
		t.Errorf("expected 2m timeout, got %v", cfg.Embedding.Timeout)
	}
	if w := cfg.Validate(); len(w) != 0 {
		t.Errorf("defaults should not warn, got %v", w)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docindex.yaml")
	os.WriteFile(path, []byte(`
embedding:
  provider: openai
  api_key: file-key
  retry_delay: 250ms
index:
  folder: /data
  project: handbook
vector:
  backend: qdrant
  qdrant:
    collection: handbook
`), 0o644)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedding.Provider != "openai" || cfg.Embedding.APIKey != "file-key" {
		t.Errorf("unexpected embedding config %+v", cfg.Embedding)
	}
	if cfg.Embedding.RetryDelay != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.Embedding.RetryDelay)
	}
	if cfg.Index.DocumentsDir() != filepath.Join("/data", "handbook") {
		t.Errorf("unexpected documents dir %s", cfg.Index.DocumentsDir())
	}
	if cfg.Vector.Qdrant.Collection != "handbook" || cfg.Vector.Qdrant.Port != 6334 {
		t.Errorf("unexpected qdrant config %+v", cfg.Vector.Qdrant)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_AzureEnvironment(t *testing.T) {
	t.Setenv("AZURE_OPENAI_KEY", "env-key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT_NAME", "ada")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedding.APIKey != "env-key" || cfg.Embedding.Endpoint != "https://example.openai.azure.com" || cfg.Embedding.Deployment != "ada" {
		t.Errorf("unexpected embedding config %+v", cfg.Embedding)
	}
	if err := cfg.Require(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	t.Setenv("DOCINDEX_SEARCH_TOP", "5")
	t.Setenv("DOCINDEX_EMBEDDING_API_KEY", "prefixed")
	t.Setenv("AZURE_OPENAI_KEY", "azure")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.Top != 5 {
		t.Errorf("expected top 5, got %d", cfg.Search.Top)
	}
	if cfg.Embedding.APIKey != "prefixed" {
		t.Errorf("expected prefixed variable to win, got %s", cfg.Embedding.APIKey)
	}
}

func TestLoad_FlagsOverride(t *testing.T) {
	t.Setenv("AZURE_OPENAI_KEY", "env-key")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("api-key", "", "")
	fs.Int("top", 15, "")
	fs.String("folder", ".", "")
	if err := fs.Parse([]string{"--api-key", "flag-key", "--folder", "/docs"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedding.APIKey != "flag-key" {
		t.Errorf("expected flag to override env, got %s", cfg.Embedding.APIKey)
	}
	if cfg.Index.Folder != "/docs" {
		t.Errorf("expected folder /docs, got %s", cfg.Index.Folder)
	}
	if cfg.Search.Top != 15 {
		t.Errorf("expected default top, got %d", cfg.Search.Top)
	}
}

func TestRequire(t *testing.T) {
	cfg := &Config{Embedding: EmbeddingConfig{Provider: "azure", APIKey: "k", Deployment: "ada"}}
	err := cfg.Require()
	if !errors.Is(err, ErrMissingConfiguration) {
		t.Fatalf("expected ErrMissingConfiguration, got %v", err)
	}
	if !strings.Contains(err.Error(), "embedding.endpoint") {
		t.Errorf("expected missing key in error, got %v", err)
	}

	cfg.Embedding.Provider = "openai"
	if err := cfg.Require(); err != nil {
		t.Errorf("openai needs no endpoint, got %v", err)
	}

	cfg.Embedding.APIKey = " "
	if err := cfg.Require(); !errors.Is(err, ErrMissingConfiguration) {
		t.Errorf("expected blank key to be missing, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "provider"},
		{"endpoint", func(c *Config) { c.Embedding.APIKey = "k" }, "endpoint"},
		{"tokens", func(c *Config) { c.Index.TokensPerChunk = 0 }, "tokens_per_chunk"},
		{"chars", func(c *Config) { c.Index.CharsPerToken = -1 }, "chars_per_token"},
		{"top", func(c *Config) { c.Search.Top = 0 }, "top"},
		{"backend", func(c *Config) { c.Vector.Backend = "faiss" }, "backend"},
		{"rpm", func(c *Config) { c.Embedding.RequestsPerMinute = -1 }, "requests_per_minute"},
		{"sample", func(c *Config) { c.Tracing.SampleRate = 2 }, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("", nil)
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if w := cfg.Validate(); !hasWarning(w, tt.want) {
				t.Errorf("expected warning containing %q, got %v", tt.want, w)
			}
		})
	}
}
