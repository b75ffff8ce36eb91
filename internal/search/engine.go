// Package search answers queries against a built vector index.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/efebarandurmaz/docindex/internal/embedding"
	"github.com/efebarandurmaz/docindex/internal/metadata"
	"github.com/efebarandurmaz/docindex/internal/observability"
	"github.com/efebarandurmaz/docindex/internal/vector"
)

const (
	// DefaultTop is the number of nearest chunks fetched per query.
	DefaultTop = 15
	// ExcerptLength is the number of characters shown after a match.
	ExcerptLength = 100
)

// Result is one unique document matching a query.
type Result struct {
	Rank     int     `json:"rank"`
	Title    string  `json:"title"`
	Path     string  `json:"path"`
	Offset   int     `json:"offset"`
	Distance float32 `json:"distance"`
}

// Options configures an Engine.
type Options struct {
	Deployment  string
	Top         int
	Logger      *slog.Logger
	Instruments *observability.Instruments
}

// Engine embeds queries and resolves them against a loaded index. It only
// reads the index and is safe for concurrent use.
type Engine struct {
	client embedding.Client
	index  vector.Index
	opts   Options
	logger *slog.Logger
	group  singleflight.Group
}

// NewEngine creates an Engine over index.
func NewEngine(client embedding.Client, index vector.Index, opts Options) (*Engine, error) {
	if client == nil {
		return nil, errors.New("search: nil embedding client")
	}
	if index == nil {
		return nil, errors.New("search: nil index")
	}
	if opts.Top <= 0 {
		opts.Top = DefaultTop
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Instruments == nil {
		opts.Instruments = observability.MustInstruments()
	}
	return &Engine{client: client, index: index, opts: opts, logger: opts.Logger}, nil
}

// Search returns the documents nearest to query, nearest first, one result
// per title. k is the number of chunks fetched; k <= 0 uses the configured
// default. Stored metadata that fails to decode is a fatal
// *metadata.MalformedMetadataError.
func (e *Engine) Search(ctx context.Context, query string, k int) (results []Result, err error) {
	if k <= 0 {
		k = e.opts.Top
	}
	ctx, span := observability.StartSearchSpan(ctx, k)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordError(span, err)
		e.opts.Instruments.RecordQuery(ctx, time.Since(start).Seconds(), err != nil)
	}()

	vec, err := e.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.index.Search(ctx, embedding.VectorBytes(vec), k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		loc, err := metadata.Decode(h.Metadata)
		if err != nil {
			return nil, fmt.Errorf("hit %d: %w", h.ID, err)
		}
		title := Title(loc.Path)
		if seen[title] {
			continue
		}
		seen[title] = true
		results = append(results, Result{
			Rank:     len(results) + 1,
			Title:    title,
			Path:     loc.Path,
			Offset:   loc.Offset,
			Distance: h.Distance,
		})
	}

	observability.RecordSearchResult(span, len(hits), len(results))
	e.logger.Debug("query answered", "k", k, "hits", len(hits), "results", len(results))
	return results, nil
}

// embed shares one embedding call between concurrent identical queries.
// The shared call ignores the cancellation of whichever caller started it;
// each caller stops waiting when its own ctx is done.
func (e *Engine) embed(ctx context.Context, query string) (embedding.Vector, error) {
	shared := context.WithoutCancel(ctx)
	ch := e.group.DoChan(query, func() (any, error) {
		return e.client.Embed(shared, query, e.opts.Deployment)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			e.logger.Debug("shared query embedding", "query", query)
		}
		return res.Val.(embedding.Vector), nil
	}
}

// Title derives a display title from a stored path: the file name without
// its extension, dashes turned into spaces and whitespace runs collapsed.
func Title(p string) string {
	name := path.Base(filepath.ToSlash(p))
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// Excerpt returns up to n characters of the document at base/relPath
// starting at offset.
func Excerpt(base, relPath string, offset, n int) (string, error) {
	data, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(relPath)))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", relPath, err)
	}
	text := []rune(string(data))
	if offset < 0 || offset >= len(text) {
		return "", nil
	}
	end := offset + n
	if end > len(text) {
		end = len(text)
	}
	return string(text[offset:end]), nil
}
