package vector

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/efebarandurmaz/docindex/internal/embedding"
)

func TestCheckCreate(t *testing.T) {
	if err := CheckCreate(AlgorithmBKT, ValueTypeFloat, 1536); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckCreate(AlgorithmKDT, ValueTypeFloat, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckCreate("IVF", ValueTypeFloat, 2); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if err := CheckCreate(AlgorithmBKT, ValueTypeFloat, -1); err == nil {
		t.Error("expected error for negative dimensions")
	}
}

func TestParseDistance(t *testing.T) {
	for in, want := range map[string]string{"L2": DistL2, "l2": DistL2, "Cosine": DistCosine, "COSINE": DistCosine} {
		got, err := ParseDistance(in)
		if err != nil || got != want {
			t.Errorf("ParseDistance(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDistance("Hamming"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestSplitBatch(t *testing.T) {
	vec := embedding.VectorBytes(embedding.Vector{1, 2, 3, 4})

	vectors, metas, err := SplitBatch(vec, []byte("a|0\nb|7"), 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 || vectors[1][0] != 3 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
	if string(metas[0]) != "a|0" || string(metas[1]) != "b|7" {
		t.Fatalf("unexpected metadata %q", metas)
	}

	// A single entry keeps its bytes verbatim, newlines included.
	_, metas, err = SplitBatch(vec, []byte("x\ny"), 1, 4)
	if err != nil || string(metas[0]) != "x\ny" {
		t.Fatalf("unexpected single metadata %q, %v", metas, err)
	}

	if _, _, err := SplitBatch(vec, nil, 1, 3); err == nil {
		t.Error("expected dimension mismatch")
	}
	if _, _, err := SplitBatch(vec, nil, 0, 4); err == nil {
		t.Error("expected error for zero count")
	}
}

func TestDistances(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{4, 6}
	if got := SquaredL2(a, b); got != 25 {
		t.Errorf("expected 25, got %v", got)
	}
	if got := CosineDistance([]float32{1, 0}, []float32{0, 3}); math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("expected 1 for orthogonal vectors, got %v", got)
	}
	if got := CosineDistance([]float32{0, 0}, b); got != 1 {
		t.Errorf("expected 1 for zero vector, got %v", got)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("unexpected normalized vector %v", v)
	}
	zero := []float32{0, 0}
	Normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Error("zero vector should be unchanged")
	}
}

func TestDescriptor_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	want := &Descriptor{
		Backend:    "qdrant",
		Algorithm:  AlgorithmBKT,
		ValueType:  ValueTypeFloat,
		Dimensions: 1536,
		Params:     map[string]string{ParamDistCalcMethod: DistL2},
		Count:      42,
		Qdrant:     &QdrantLocation{Host: "localhost", Port: 6334, Collection: "docs"},
	}
	if err := WriteDescriptor(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadDescriptor(path, "qdrant")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Count != 42 || got.Dimensions != 1536 || got.Qdrant.Port != 6334 || got.Params[ParamDistCalcMethod] != DistL2 {
		t.Errorf("unexpected descriptor %+v", got)
	}
	if got.Neo4j != nil {
		t.Error("expected no neo4j section")
	}

	if _, err := ReadDescriptor(path, "neo4j"); err == nil {
		t.Error("expected backend mismatch error")
	}
}

func TestWriteFileAtomic_Replaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := WriteFileAtomic(path, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("two")); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "two" {
		t.Errorf("expected 'two', got %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	if !errors.Is(&IndexSaveError{Path: "p", Err: cause}, cause) {
		t.Error("IndexSaveError should unwrap")
	}
	if !errors.Is(&IndexLoadError{Path: "p", Err: cause}, cause) {
		t.Error("IndexLoadError should unwrap")
	}
}
