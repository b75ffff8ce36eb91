package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efebarandurmaz/docindex/internal/embedding"
	"github.com/efebarandurmaz/docindex/internal/metadata"
	"github.com/efebarandurmaz/docindex/internal/vector"
	"github.com/efebarandurmaz/docindex/internal/vector/flat"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeIndex returns canned hits in order.
type fakeIndex struct {
	hits  []vector.Hit
	err   error
	lastK int
}

func (f *fakeIndex) SetBuildParameter(name, value, scope string) error { return nil }
func (f *fakeIndex) Add(ctx context.Context, vec, meta []byte, count int, exhaustive, normalize bool) (bool, error) {
	return true, nil
}
func (f *fakeIndex) Search(ctx context.Context, vec []byte, k int) ([]vector.Hit, error) {
	f.lastK = k
	return f.hits, f.err
}
func (f *fakeIndex) Save(ctx context.Context, path string) error { return nil }
func (f *fakeIndex) Close() error { return nil }

func hit(t *testing.T, id int64, path string, offset int, dist float32) vector.Hit {
	t.Helper()
	meta, err := metadata.Encode(path, offset)
	if err != nil {
		t.Fatal(err)
	}
	return vector.Hit{ID: id, Distance: dist, Metadata: meta}
}

func staticClient(v embedding.Vector) embedding.Client {
	return embedding.ClientFunc(func(ctx context.Context, text, deployment string) (embedding.Vector, error) {
		return v, nil
	})
}

func newEngine(t *testing.T, client embedding.Client, index vector.Index) *Engine {
	t.Helper()
	e, err := NewEngine(client, index, Options{Deployment: "ada", Logger: quiet})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestSearch_DeduplicatesByTitle(t *testing.T) {
	idx := &fakeIndex{hits: []vector.Hit{
		hit(t, 0, "docA.md", 0, 0.1),
		hit(t, 1, "docA.md", 500, 0.2),
		hit(t, 2, "docB.md", 0, 0.3),
	}}
	e := newEngine(t, staticClient(embedding.Vector{1}), idx)

	results, err := e.Search(context.Background(), "query", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}
	if results[0].Title != "docA" || results[1].Title != "docB" {
		t.Errorf("expected [docA docB], got [%s %s]", results[0].Title, results[1].Title)
	}
	if results[0].Offset != 0 || results[0].Distance != 0.1 {
		t.Errorf("expected nearest docA chunk to be kept, got %+v", results[0])
	}
	if results[0].Rank != 1 || results[1].Rank != 2 {
		t.Errorf("unexpected ranks %d, %d", results[0].Rank, results[1].Rank)
	}
	if idx.lastK != DefaultTop {
		t.Errorf("expected k %d, got %d", DefaultTop, idx.lastK)
	}
}

func TestSearch_SameTitleFromDifferentPaths(t *testing.T) {
	idx := &fakeIndex{hits: []vector.Hit{
		hit(t, 0, "a/Read-Me.md", 0, 0.1),
		hit(t, 1, "b/Read Me.txt", 0, 0.2),
	}}
	e := newEngine(t, staticClient(embedding.Vector{1}), idx)

	results, err := e.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Path != "a/Read-Me.md" {
		t.Fatalf("expected one result from a/Read-Me.md, got %+v", results)
	}
	if idx.lastK != 5 {
		t.Errorf("expected k 5, got %d", idx.lastK)
	}
}

func TestSearch_MalformedMetadataIsFatal(t *testing.T) {
	idx := &fakeIndex{hits: []vector.Hit{{ID: 7, Distance: 0.1, Metadata: []byte("no separator")}}}
	e := newEngine(t, staticClient(embedding.Vector{1}), idx)

	_, err := e.Search(context.Background(), "query", 0)
	var malformed *metadata.MalformedMetadataError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedMetadataError, got %v", err)
	}
}

func TestSearch_EmbedErrorPropagates(t *testing.T) {
	want := &embedding.RequestFailedError{StatusCode: 401, Message: "bad key"}
	client := embedding.ClientFunc(func(ctx context.Context, text, deployment string) (embedding.Vector, error) {
		return nil, want
	})
	e := newEngine(t, client, &fakeIndex{})

	_, err := e.Search(context.Background(), "query", 0)
	if !errors.Is(err, want) {
		t.Fatalf("expected embedding error, got %v", err)
	}
}

func TestSearch_IndexErrorPropagates(t *testing.T) {
	e := newEngine(t, staticClient(embedding.Vector{1}), &fakeIndex{err: vector.ErrClosed})
	if _, err := e.Search(context.Background(), "query", 0); !errors.Is(err, vector.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSearch_UsesConfiguredDeployment(t *testing.T) {
	var got string
	client := embedding.ClientFunc(func(ctx context.Context, text, deployment string) (embedding.Vector, error) {
		got = deployment
		return embedding.Vector{1}, nil
	})
	e := newEngine(t, client, &fakeIndex{})
	if _, err := e.Search(context.Background(), "query", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ada" {
		t.Errorf("expected deployment ada, got %q", got)
	}
}

func TestSearch_FlatIndexOrdering(t *testing.T) {
	ctx := context.Background()
	idx, err := flat.New().Create(ctx, vector.AlgorithmBKT, vector.ValueTypeFloat, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	entries := []struct {
		path   string
		offset int
		vec    embedding.Vector
	}{
		{"far.md", 0, embedding.Vector{9, 9}},
		{"near.md", 0, embedding.Vector{1, 0}},
		{"near.md", 10, embedding.Vector{0, 0}},
		{"middle.md", 0, embedding.Vector{3, 0}},
		{"middle.md", 10, embedding.Vector{2, 0}},
	}
	for _, en := range entries {
		meta, _ := metadata.Encode(en.path, en.offset)
		if ok, err := idx.Add(ctx, embedding.VectorBytes(en.vec), meta, 1, false, false); !ok || err != nil {
			t.Fatalf("add %s: %v", en.path, err)
		}
	}

	e := newEngine(t, staticClient(embedding.Vector{0, 0}), idx)
	results, err := e.Search(ctx, "query", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"near", "middle", "far"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %+v", len(want), results)
	}
	seen := map[string]bool{}
	for i, r := range results {
		if r.Title != want[i] {
			t.Errorf("result %d: expected %s, got %s", i, want[i], r.Title)
		}
		if seen[r.Title] {
			t.Errorf("duplicate title %s", r.Title)
		}
		seen[r.Title] = true
		if i > 0 && r.Distance < results[i-1].Distance {
			t.Errorf("results not ordered by distance: %+v", results)
		}
	}
	if results[0].Offset != 10 || results[1].Offset != 10 {
		t.Errorf("expected nearest chunk offsets to be kept, got %+v", results)
	}
}

func TestSearch_SharedEmbeddingSurvivesCallerCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	client := embedding.ClientFunc(func(ctx context.Context, text, deployment string) (embedding.Vector, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return embedding.Vector{1}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	idx := &fakeIndex{hits: []vector.Hit{hit(t, 0, "docA.md", 0, 0.1)}}
	e := newEngine(t, client, idx)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := e.Search(ctxA, "same query", 1)
		errA <- err
	}()
	<-started

	type outcome struct {
		results []Result
		err     error
	}
	resB := make(chan outcome, 1)
	go func() {
		r, err := e.Search(context.Background(), "same query", 1)
		resB <- outcome{r, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected first caller to see context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	select {
	case out := <-resB:
		if out.err != nil {
			t.Fatalf("expected second caller to succeed, got %v", out.err)
		}
		if len(out.results) != 1 || out.results[0].Title != "docA" {
			t.Errorf("unexpected results %+v", out.results)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}
	if n := calls.Load(); n > 2 {
		t.Errorf("expected at most 2 embedding calls, got %d", n)
	}
}

func TestNewEngine_Validation(t *testing.T) {
	if _, err := NewEngine(nil, &fakeIndex{}, Options{}); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewEngine(staticClient(nil), nil, Options{}); err == nil {
		t.Error("expected error for nil index")
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"My-Great Doc--Name.md", "My Great Doc Name"},
		{"docs/getting-started.txt", "getting started"},
		{" -leading-and-trailing- .md", "leading and trailing"},
		{"archive.tar.gz", "archive.tar"},
		{"README", "README"},
	}
	for _, tt := range tests {
		if got := Title(tt.path); got != tt.want {
			t.Errorf("Title(%q): expected %q, got %q", tt.path, tt.want, got)
		}
	}
}

func TestExcerpt(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "doc.md"), []byte("héllo world"), 0o644)

	tests := []struct {
		offset, n int
		want      string
	}{
		{0, 5, "héllo"},
		{6, 100, "world"},
		{11, 10, ""},
		{-1, 10, ""},
	}
	for _, tt := range tests {
		got, err := Excerpt(dir, "doc.md", tt.offset, tt.n)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("Excerpt(%d, %d): expected %q, got %q", tt.offset, tt.n, tt.want, got)
		}
	}

	if _, err := Excerpt(dir, "missing.md", 0, 10); err == nil {
		t.Error("expected error for missing file")
	}
}
