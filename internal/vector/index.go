// Package vector defines the approximate nearest-neighbour index used to
// store chunk embeddings, independent of the engine behind it.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/efebarandurmaz/docindex/internal/embedding"
)

// Index creation and build parameter names.
const (
	AlgorithmBKT = "BKT"
	AlgorithmKDT = "KDT"

	ValueTypeFloat = "Float"

	ScopeIndex = "Index"

	ParamDistCalcMethod = "DistCalcMethod"
	DistL2              = "L2"
	DistCosine          = "Cosine"

	// FileName is the index artifact written into an indexed folder.
	FileName = "index.sptag"
)

var (
	// ErrUnsupported is returned for algorithms, value types or parameters a
	// backend does not implement.
	ErrUnsupported = errors.New("unsupported")
	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("index closed")
)

// Hit is one search result. Distance is the squared L2 distance unless the
// index was built with DistCalcMethod=Cosine.
type Hit struct {
	ID       int64
	Distance float32
	Metadata []byte
}

// Index is a vector index holding one metadata blob per vector.
type Index interface {
	// SetBuildParameter sets an engine parameter such as DistCalcMethod.
	SetBuildParameter(name, value, scope string) error
	// Add inserts count vectors (vec holds count*dims little-endian float32s)
	// with their metadata. With count > 1 metadata entries are separated by '\n'.
	Add(ctx context.Context, vec, meta []byte, count int, exhaustive, normalize bool) (bool, error)
	// Search returns up to k hits, nearest first.
	Search(ctx context.Context, vec []byte, k int) ([]Hit, error)
	// Save persists the index (or its descriptor) to path.
	Save(ctx context.Context, path string) error
	// Close releases resources held by the index.
	Close() error
}

// Backend creates new indexes and loads persisted ones.
type Backend interface {
	Create(ctx context.Context, algorithm, valueType string, dimensions int) (Index, error)
	Load(ctx context.Context, path string) (Index, error)
}

// IndexLoadError is returned when a persisted index cannot be opened.
type IndexLoadError struct {
	Path string
	Err  error
}

func (e *IndexLoadError) Error() string {
	return fmt.Sprintf("load index %s: %v", e.Path, e.Err)
}

func (e *IndexLoadError) Unwrap() error { return e.Err }

// IndexSaveError is returned when an index cannot be persisted.
type IndexSaveError struct {
	Path string
	Err  error
}

func (e *IndexSaveError) Error() string {
	return fmt.Sprintf("save index %s: %v", e.Path, e.Err)
}

func (e *IndexSaveError) Unwrap() error { return e.Err }

// CheckCreate validates the arguments every backend accepts.
func CheckCreate(algorithm, valueType string, dimensions int) error {
	switch algorithm {
	case AlgorithmBKT, AlgorithmKDT:
	default:
		return fmt.Errorf("algorithm %q: %w", algorithm, ErrUnsupported)
	}
	if valueType != ValueTypeFloat {
		return fmt.Errorf("value type %q: %w", valueType, ErrUnsupported)
	}
	if dimensions <= 0 {
		return fmt.Errorf("invalid dimensions %d", dimensions)
	}
	return nil
}

// ParseDistance validates a DistCalcMethod value.
func ParseDistance(value string) (string, error) {
	switch {
	case strings.EqualFold(value, DistL2):
		return DistL2, nil
	case strings.EqualFold(value, DistCosine):
		return DistCosine, nil
	}
	return "", fmt.Errorf("%s=%q: %w", ParamDistCalcMethod, value, ErrUnsupported)
}

// SplitBatch decodes an Add payload into count vectors of the given
// dimensions and their metadata entries.
func SplitBatch(vec, meta []byte, count, dimensions int) ([][]float32, [][]byte, error) {
	if count <= 0 {
		return nil, nil, fmt.Errorf("invalid vector count %d", count)
	}
	all, err := embedding.VectorFromBytes(vec)
	if err != nil {
		return nil, nil, err
	}
	if len(all) != count*dimensions {
		return nil, nil, fmt.Errorf("expected %d floats for %d vectors, got %d", count*dimensions, count, len(all))
	}

	metas := [][]byte{meta}
	if count > 1 {
		metas = splitLines(meta)
		if len(metas) != count {
			return nil, nil, fmt.Errorf("expected %d metadata entries, got %d", count, len(metas))
		}
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		vectors[i] = all[i*dimensions : (i+1)*dimensions]
	}
	return vectors, metas, nil
}

func splitLines(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			out = append(out, b[start:i])
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, b[start:])
	}
	return out
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// SquaredL2 returns the squared euclidean distance between a and b.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// CosineDistance returns 1 - cos(a, b).
func CosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}
