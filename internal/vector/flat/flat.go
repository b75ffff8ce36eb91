// Package flat is an in-process exhaustive vector index persisted as a
// single file.
package flat

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/efebarandurmaz/docindex/internal/vector"
)

const formatVersion = 1

// Backend creates and loads flat indexes.
type Backend struct{}

// New returns the flat backend.
func New() *Backend { return &Backend{} }

// Create returns an empty index. Both BKT and KDT are served by the same
// exhaustive scan.
func (b *Backend) Create(ctx context.Context, algorithm, valueType string, dimensions int) (vector.Index, error) {
	if err := vector.CheckCreate(algorithm, valueType, dimensions); err != nil {
		return nil, err
	}
	return &Index{
		algorithm: algorithm,
		valueType: valueType,
		dims:      dimensions,
		distance:  vector.DistL2,
		params:    map[string]string{vector.ParamDistCalcMethod: vector.DistL2},
	}, nil
}

// Load reads an index written by Save.
func (b *Backend) Load(ctx context.Context, path string) (vector.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &vector.IndexLoadError{Path: path, Err: err}
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, &vector.IndexLoadError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	if snap.Version != formatVersion {
		return nil, &vector.IndexLoadError{Path: path, Err: fmt.Errorf("unsupported format version %d", snap.Version)}
	}
	if snap.Dimensions <= 0 || len(snap.Vectors) != len(snap.Metadata)*snap.Dimensions {
		return nil, &vector.IndexLoadError{Path: path, Err: fmt.Errorf("corrupt index: %d floats for %d entries", len(snap.Vectors), len(snap.Metadata))}
	}
	distance, err := vector.ParseDistance(snap.Params[vector.ParamDistCalcMethod])
	if err != nil {
		return nil, &vector.IndexLoadError{Path: path, Err: err}
	}

	return &Index{
		algorithm: snap.Algorithm,
		valueType: snap.ValueType,
		dims:      snap.Dimensions,
		distance:  distance,
		params:    snap.Params,
		vectors:   snap.Vectors,
		metadata:  snap.Metadata,
	}, nil
}

// snapshot is the on-disk form of an Index.
type snapshot struct {
	Version    int
	Algorithm  string
	ValueType  string
	Dimensions int
	Params     map[string]string
	Vectors    []float32
	Metadata   [][]byte
}

// Index keeps every vector in memory and answers queries by exhaustive scan.
// Searches may run concurrently with each other.
type Index struct {
	mu        sync.RWMutex
	algorithm string
	valueType string
	dims      int
	distance  string
	params    map[string]string
	vectors   []float32
	metadata  [][]byte
	closed    bool
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.metadata)
}

// SetBuildParameter accepts DistCalcMethod (L2 or Cosine). Other parameters
// are recorded and persisted but do not affect the scan.
func (x *Index) SetBuildParameter(name, value, scope string) error {
	if scope != vector.ScopeIndex {
		return fmt.Errorf("parameter scope %q: %w", scope, vector.ErrUnsupported)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return vector.ErrClosed
	}
	if name == vector.ParamDistCalcMethod {
		d, err := vector.ParseDistance(value)
		if err != nil {
			return err
		}
		x.distance = d
		value = d
	}
	x.params[name] = value
	return nil
}

// Add appends vectors. The exhaustive flag has no effect since every search
// is exhaustive.
func (x *Index) Add(ctx context.Context, vec, meta []byte, count int, exhaustive, normalize bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	vectors, metas, err := vector.SplitBatch(vec, meta, count, x.dims)
	if err != nil {
		return false, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return false, vector.ErrClosed
	}
	for i, v := range vectors {
		if normalize {
			v = append([]float32(nil), v...)
			vector.Normalize(v)
		}
		x.vectors = append(x.vectors, v...)
		x.metadata = append(x.metadata, append([]byte(nil), metas[i]...))
	}
	return true, nil
}

// Search returns the k nearest vectors. Ties are broken by insertion order.
func (x *Index) Search(ctx context.Context, vec []byte, k int) ([]vector.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors, _, err := vector.SplitBatch(vec, nil, 1, x.dims)
	if err != nil {
		return nil, err
	}
	query := vectors[0]

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, vector.ErrClosed
	}
	if k <= 0 || len(x.metadata) == 0 {
		return nil, nil
	}

	dist := vector.SquaredL2
	if x.distance == vector.DistCosine {
		dist = vector.CosineDistance
	}
	hits := make([]vector.Hit, len(x.metadata))
	for i := range x.metadata {
		hits[i] = vector.Hit{
			ID:       int64(i),
			Distance: dist(query, x.vectors[i*x.dims:(i+1)*x.dims]),
			Metadata: x.metadata[i],
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Metadata = append([]byte(nil), hits[i].Metadata...)
	}
	return hits, nil
}

// Save writes the index to path, replacing any existing file atomically.
func (x *Index) Save(ctx context.Context, path string) error {
	x.mu.RLock()
	snap := snapshot{
		Version:    formatVersion,
		Algorithm:  x.algorithm,
		ValueType:  x.valueType,
		Dimensions: x.dims,
		Params:     x.params,
		Vectors:    x.vectors,
		Metadata:   x.metadata,
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(&snap)
	closed := x.closed
	x.mu.RUnlock()

	if closed {
		return &vector.IndexSaveError{Path: path, Err: vector.ErrClosed}
	}
	if err != nil {
		return &vector.IndexSaveError{Path: path, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := vector.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return &vector.IndexSaveError{Path: path, Err: err}
	}
	return nil
}

// Close releases the stored vectors.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.vectors = nil
	x.metadata = nil
	return nil
}

var (
	_ vector.Backend = (*Backend)(nil)
	_ vector.Index   = (*Index)(nil)
)
