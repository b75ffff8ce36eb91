package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrMissingConfiguration is returned by Require when a required setting is empty.
var ErrMissingConfiguration = errors.New("missing configuration")

// DefaultProject is the documents subfolder used when none is configured.
const DefaultProject = "vector_index"

// Config holds all application configuration.
type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	Search    SearchConfig    `mapstructure:"search"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	APIKey            string        `mapstructure:"api_key"`
	Endpoint          string        `mapstructure:"endpoint"`
	Deployment        string        `mapstructure:"deployment"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

type IndexConfig struct {
	// Folder is the base folder; indexed paths are stored relative to it.
	Folder string `mapstructure:"folder"`
	// Project is the subfolder of Folder holding the documents and the
	// index. Empty means Folder itself.
	Project        string  `mapstructure:"project"`
	TokensPerChunk int     `mapstructure:"tokens_per_chunk"`
	CharsPerToken  float64 `mapstructure:"chars_per_token"`
}

// DocumentsDir is the folder whose files are indexed.
func (c IndexConfig) DocumentsDir() string {
	if c.Project == "" {
		return c.Folder
	}
	return filepath.Join(c.Folder, c.Project)
}

type SearchConfig struct {
	Top int `mapstructure:"top"`
}

type VectorConfig struct {
	Backend string       `mapstructure:"backend"`
	Qdrant  QdrantConfig `mapstructure:"qdrant"`
	Neo4j   Neo4jConfig  `mapstructure:"neo4j"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type Neo4jConfig struct {
	URI       string `mapstructure:"uri"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Database  string `mapstructure:"database"`
	Label     string `mapstructure:"label"`
	IndexName string `mapstructure:"index_name"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Backends accepted by vector.backend.
var Backends = []string{"flat", "qdrant", "neo4j"}

// envAliases binds config keys to the variables the Azure tooling already uses.
var envAliases = map[string][]string{
	"embedding.api_key":    {"DOCINDEX_EMBEDDING_API_KEY", "AZURE_OPENAI_KEY"},
	"embedding.endpoint":   {"DOCINDEX_EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT"},
	"embedding.deployment": {"DOCINDEX_EMBEDDING_DEPLOYMENT", "AZURE_OPENAI_EMBEDDING_DEPLOYMENT_NAME"},
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"api-key":              "embedding.api_key",
	"endpoint":             "embedding.endpoint",
	"embedding-deployment": "embedding.deployment",
	"provider":             "embedding.provider",
	"folder":               "index.folder",
	"project":              "index.project",
	"tokens-per-chunk":     "index.tokens_per_chunk",
	"chars-per-token":      "index.chars_per_token",
	"top":                  "search.top",
	"backend":              "vector.backend",
	"log-level":            "log.level",
	"log-format":           "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("embedding.provider", "azure")
	v.SetDefault("embedding.timeout", 2*time.Minute)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.retry_delay", time.Second)
	v.SetDefault("embedding.requests_per_minute", 0)

	v.SetDefault("index.folder", ".")
	v.SetDefault("index.project", DefaultProject)
	v.SetDefault("index.tokens_per_chunk", 4096)
	v.SetDefault("index.chars_per_token", 2.5)

	v.SetDefault("search.top", 15)

	v.SetDefault("vector.backend", "flat")
	v.SetDefault("vector.qdrant.host", "localhost")
	v.SetDefault("vector.qdrant.port", 6334)
	v.SetDefault("vector.qdrant.collection", "docindex")
	v.SetDefault("vector.neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("vector.neo4j.username", "neo4j")
	v.SetDefault("vector.neo4j.label", "Chunk")
	v.SetDefault("vector.neo4j.index_name", "chunk_embeddings")

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "docindex")

	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	switch c.Embedding.Provider {
	case "azure", "openai":
	default:
		warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is not one of azure, openai", c.Embedding.Provider))
	}
	if c.Embedding.Provider == "azure" && c.Embedding.APIKey != "" && c.Embedding.Endpoint == "" {
		warnings = append(warnings, "embedding api_key is set but endpoint is empty")
	}
	if c.Embedding.RequestsPerMinute < 0 {
		warnings = append(warnings, fmt.Sprintf("embedding requests_per_minute %d is negative", c.Embedding.RequestsPerMinute))
	}

	if c.Index.TokensPerChunk <= 0 {
		warnings = append(warnings, fmt.Sprintf("index tokens_per_chunk %d is not positive", c.Index.TokensPerChunk))
	}
	if c.Index.CharsPerToken <= 0 {
		warnings = append(warnings, fmt.Sprintf("index chars_per_token %.2f is not positive", c.Index.CharsPerToken))
	}
	if c.Search.Top <= 0 {
		warnings = append(warnings, fmt.Sprintf("search top %d is not positive", c.Search.Top))
	}

	known := false
	for _, b := range Backends {
		if c.Vector.Backend == b {
			known = true
		}
	}
	if !known {
		warnings = append(warnings, fmt.Sprintf("vector backend '%s' is not one of %s", c.Vector.Backend, strings.Join(Backends, ", ")))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Require checks the settings needed to talk to the embedding service.
func (c *Config) Require() error {
	required := []struct {
		key, value string
	}{
		{"embedding.api_key", c.Embedding.APIKey},
		{"embedding.deployment", c.Embedding.Deployment},
	}
	if c.Embedding.Provider == "azure" {
		required = append(required, struct{ key, value string }{"embedding.endpoint", c.Embedding.Endpoint})
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingConfiguration, r.key)
		}
	}
	return nil
}

// Load reads configuration from an optional file, the environment, and the
// given flags. Flags take precedence when set explicitly.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DOCINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}
