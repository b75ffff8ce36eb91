// Package neo4j stores chunk vectors as nodes behind a Neo4j vector index.
package neo4j

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/docindex/internal/vector"
)

const backendName = "neo4j"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config locates the database and names the node label and vector index.
type Config struct {
	URI       string
	Username  string
	Password  string
	Database  string
	Label     string // default "Chunk"
	IndexName string // default "chunk_embeddings"
}

func (c Config) withDefaults() Config {
	if c.Label == "" {
		c.Label = "Chunk"
	}
	if c.IndexName == "" {
		c.IndexName = "chunk_embeddings"
	}
	return c
}

func (c Config) validate() error {
	for _, name := range []string{c.Label, c.IndexName} {
		if !identifier.MatchString(name) {
			return fmt.Errorf("neo4j: invalid identifier %q", name)
		}
	}
	return nil
}

// Backend creates indexes stored in Neo4j.
type Backend struct {
	cfg Config
}

// New returns a Neo4j backend.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg.withDefaults()}
}

func connect(ctx context.Context, cfg Config) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return driver, nil
}

// Create removes existing chunk nodes and recreates the vector index with
// euclidean similarity.
func (b *Backend) Create(ctx context.Context, algorithm, valueType string, dimensions int) (vector.Index, error) {
	if err := vector.CheckCreate(algorithm, valueType, dimensions); err != nil {
		return nil, err
	}
	if err := b.cfg.validate(); err != nil {
		return nil, err
	}
	driver, err := connect(ctx, b.cfg)
	if err != nil {
		return nil, err
	}

	x := newIndex(b.cfg, driver, &vector.Descriptor{
		Backend:    backendName,
		Algorithm:  algorithm,
		ValueType:  valueType,
		Dimensions: dimensions,
		Params:     map[string]string{vector.ParamDistCalcMethod: vector.DistL2},
	})
	for _, stmt := range []string{
		fmt.Sprintf("DROP INDEX %s IF EXISTS", b.cfg.IndexName),
		fmt.Sprintf("MATCH (c:%s) DETACH DELETE c", b.cfg.Label),
		createIndexStatement(b.cfg, dimensions),
	} {
		if err := x.write(ctx, stmt, nil); err != nil {
			driver.Close(ctx)
			return nil, fmt.Errorf("neo4j create index: %w", err)
		}
	}
	return x, nil
}

func createIndexStatement(cfg Config, dimensions int) string {
	return fmt.Sprintf(
		"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (c:%s) ON (c.embedding) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'euclidean'}}",
		cfg.IndexName, cfg.Label, dimensions)
}

// Load reads a descriptor written by Save. Credentials come from the
// backend configuration, never from the descriptor.
func (b *Backend) Load(ctx context.Context, path string) (vector.Index, error) {
	d, err := vector.ReadDescriptor(path, backendName)
	if err != nil {
		return nil, &vector.IndexLoadError{Path: path, Err: err}
	}
	if d.Neo4j == nil {
		return nil, &vector.IndexLoadError{Path: path, Err: fmt.Errorf("descriptor has no neo4j section")}
	}

	cfg := b.cfg
	cfg.URI, cfg.Database = d.Neo4j.URI, d.Neo4j.Database
	cfg.Label, cfg.IndexName = d.Neo4j.Label, d.Neo4j.IndexName
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, &vector.IndexLoadError{Path: path, Err: err}
	}
	driver, err := connect(ctx, cfg)
	if err != nil {
		return nil, &vector.IndexLoadError{Path: path, Err: err}
	}

	x := newIndex(cfg, driver, d)
	x.nextID.Store(d.Count)
	return x, nil
}

// Index is a handle on one Neo4j vector index.
type Index struct {
	cfg    Config
	driver neo4j.DriverWithContext
	nextID atomic.Int64

	mu   sync.Mutex
	desc *vector.Descriptor
}

func newIndex(cfg Config, driver neo4j.DriverWithContext, d *vector.Descriptor) *Index {
	if d.Params == nil {
		d.Params = map[string]string{}
	}
	d.Neo4j = &vector.Neo4jLocation{URI: cfg.URI, Database: cfg.Database, Label: cfg.Label, IndexName: cfg.IndexName}
	return &Index{cfg: cfg, driver: driver, desc: d}
}

func (x *Index) session(ctx context.Context) neo4j.SessionWithContext {
	return x.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: x.cfg.Database})
}

func (x *Index) write(ctx context.Context, cypher string, params map[string]any) error {
	session := x.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, cypher, params)
		return nil, err
	})
	return err
}

// SetBuildParameter only accepts DistCalcMethod=L2, the similarity the
// index was created with.
func (x *Index) SetBuildParameter(name, value, scope string) error {
	if scope != vector.ScopeIndex {
		return fmt.Errorf("parameter scope %q: %w", scope, vector.ErrUnsupported)
	}
	if name == vector.ParamDistCalcMethod {
		d, err := vector.ParseDistance(value)
		if err != nil {
			return err
		}
		if d != vector.DistL2 {
			return fmt.Errorf("neo4j index uses euclidean similarity: %w", vector.ErrUnsupported)
		}
		value = d
	}
	x.mu.Lock()
	x.desc.Params[name] = value
	x.mu.Unlock()
	return nil
}

// Add creates one node per vector in a single transaction.
func (x *Index) Add(ctx context.Context, vec, meta []byte, count int, exhaustive, normalize bool) (bool, error) {
	vectors, metas, err := vector.SplitBatch(vec, meta, count, x.desc.Dimensions)
	if err != nil {
		return false, err
	}

	rows := make([]any, len(vectors))
	for i, v := range vectors {
		if normalize {
			v = append([]float32(nil), v...)
			vector.Normalize(v)
		}
		rows[i] = map[string]any{
			"id":        x.nextID.Add(1) - 1,
			"meta":      metas[i],
			"embedding": toFloat64(v),
		}
	}

	cypher := fmt.Sprintf("UNWIND $rows AS row CREATE (c:%s {id: row.id, meta: row.meta, embedding: row.embedding})", x.cfg.Label)
	if err := x.write(ctx, cypher, map[string]any{"rows": rows}); err != nil {
		return false, fmt.Errorf("neo4j add: %w", err)
	}
	return true, nil
}

// Search queries the vector index. Neo4j reports euclidean similarity as
// 1/(1+d²); hits carry d².
func (x *Index) Search(ctx context.Context, vec []byte, k int) ([]vector.Hit, error) {
	vectors, _, err := vector.SplitBatch(vec, nil, 1, x.desc.Dimensions)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	session := x.session(ctx)
	defer session.Close(ctx)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"CALL db.index.vector.queryNodes($index, $k, $embedding) YIELD node, score "+
				"RETURN node.id AS id, node.meta AS meta, score ORDER BY score DESC",
			map[string]any{"index": x.cfg.IndexName, "k": k, "embedding": toFloat64(vectors[0])})
		if err != nil {
			return nil, err
		}
		var hits []vector.Hit
		for records.Next(ctx) {
			rec := records.Record()
			id, _ := rec.Get("id")
			meta, _ := rec.Get("meta")
			score, _ := rec.Get("score")

			h := vector.Hit{Distance: SquaredDistance(asFloat(score))}
			if n, ok := id.(int64); ok {
				h.ID = n
			}
			if b, ok := meta.([]byte); ok {
				h.Metadata = b
			}
			hits = append(hits, h)
		}
		return hits, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j search: %w", err)
	}
	return result.([]vector.Hit), nil
}

// Save writes the index descriptor to path.
func (x *Index) Save(ctx context.Context, path string) error {
	x.mu.Lock()
	x.desc.Count = x.nextID.Load()
	err := vector.WriteDescriptor(path, x.desc)
	x.mu.Unlock()
	if err != nil {
		return &vector.IndexSaveError{Path: path, Err: err}
	}
	return nil
}

// Close closes the driver.
func (x *Index) Close() error {
	return x.driver.Close(context.Background())
}

// SquaredDistance converts a Neo4j euclidean similarity back to d².
func SquaredDistance(similarity float64) float32 {
	if similarity <= 0 {
		return float32(1e30)
	}
	return float32(1/similarity - 1)
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

var (
	_ vector.Backend = (*Backend)(nil)
	_ vector.Index   = (*Index)(nil)
)
