// Package backend selects a vector.Backend from configuration.
package backend

import (
	"fmt"

	"github.com/efebarandurmaz/docindex/internal/config"
	"github.com/efebarandurmaz/docindex/internal/vector"
	"github.com/efebarandurmaz/docindex/internal/vector/flat"
	"github.com/efebarandurmaz/docindex/internal/vector/neo4j"
	"github.com/efebarandurmaz/docindex/internal/vector/qdrant"
)

// New returns the backend named by cfg.Backend. An empty name selects flat.
func New(cfg config.VectorConfig) (vector.Backend, error) {
	switch cfg.Backend {
	case "", "flat":
		return flat.New(), nil
	case "qdrant":
		return qdrant.New(qdrant.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
		}), nil
	case "neo4j":
		return neo4j.New(neo4j.Config{
			URI:       cfg.Neo4j.URI,
			Username:  cfg.Neo4j.Username,
			Password:  cfg.Neo4j.Password,
			Database:  cfg.Neo4j.Database,
			Label:     cfg.Neo4j.Label,
			IndexName: cfg.Neo4j.IndexName,
		}), nil
	}
	return nil, fmt.Errorf("unknown vector backend %q, expected one of %v", cfg.Backend, config.Backends)
}
