// Package indexer builds a vector index over the documents of a folder.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/efebarandurmaz/docindex/internal/chunker"
	"github.com/efebarandurmaz/docindex/internal/embedding"
	"github.com/efebarandurmaz/docindex/internal/metadata"
	"github.com/efebarandurmaz/docindex/internal/observability"
	"github.com/efebarandurmaz/docindex/internal/vector"
)

// Document is one file read for indexing.
type Document struct {
	RelPath string
	Text    string
}

// Progress is reported before each document is processed.
type Progress struct {
	File    string
	Chunks  int
	Index   int
	Total   int
	Percent int
}

// ProgressFunc receives build progress.
type ProgressFunc func(Progress)

// Indexed is reported after a document has been embedded. Embedded counts
// the chunks and sub-chunks that reached the embedding service; Percent is
// the share of documents finished before this one.
type Indexed struct {
	File     string
	Embedded int
	Index    int
	Total    int
	Percent  float64
}

// IndexedFunc receives a notification per finished document.
type IndexedFunc func(Indexed)

// Options configures a Builder.
type Options struct {
	// BaseFolder is the folder stored paths are relative to. Defaults to
	// the folder being built.
	BaseFolder  string
	Chunker     chunker.Config
	Dimensions  int // defaults to embedding.Dimensions
	OnProgress  ProgressFunc
	OnIndexed   IndexedFunc
	// OnChunk is called after each chunk is handed to the index.
	OnChunk     func(file string, span chunker.Span)
	Logger      *slog.Logger
	Instruments *observability.Instruments
}

// Builder turns a folder of documents into a saved vector index.
type Builder struct {
	backend vector.Backend
	chunker *chunker.Chunker
	opts    Options
	logger  *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(client embedding.Client, backend vector.Backend, opts Options) (*Builder, error) {
	if backend == nil {
		return nil, errors.New("indexer: nil vector backend")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dimensions == 0 {
		opts.Dimensions = embedding.Dimensions
	}
	if opts.Instruments == nil {
		opts.Instruments = observability.MustInstruments()
	}
	ch, err := chunker.New(client, opts.Chunker, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Builder{backend: backend, chunker: ch, opts: opts, logger: opts.Logger}, nil
}

// ListDocuments returns the regular files directly inside folder in name
// order, leaving out dot files and the index artifact.
func ListDocuments(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || name == vector.FileName {
			continue
		}
		files = append(files, filepath.Join(folder, name))
	}
	sort.Strings(files)
	return files, nil
}

// ReadDocument reads path and names it relative to base with forward slashes.
func ReadDocument(base, path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return Document{RelPath: filepath.ToSlash(rel), Text: string(data)}, nil
}

// Build indexes every document in folder and saves the index to
// folder/index.sptag. Embedding rejections and failed inserts lose the
// affected chunk and are counted in the report; unreadable files, context
// cancellation and save failures abort the build.
func (b *Builder) Build(ctx context.Context, folder string) (*BuildReport, error) {
	ctx, span := observability.StartBuildSpan(ctx, folder)
	defer span.End()

	report := NewBuildReport(folder)
	base := b.opts.BaseFolder
	if base == "" {
		base = folder
	}

	files, err := ListDocuments(folder)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	idx, err := b.backend.Create(ctx, vector.AlgorithmBKT, vector.ValueTypeFloat, b.opts.Dimensions)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("create index: %w", err)
	}
	defer idx.Close()
	if err := idx.SetBuildParameter(vector.ParamDistCalcMethod, vector.DistL2, vector.ScopeIndex); err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("configure index: %w", err)
	}

	b.logger.Info("building index", "folder", folder, "files", len(files))
	for i, path := range files {
		doc, err := ReadDocument(base, path)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		if _, err := metadata.Encode(doc.RelPath, 0); err != nil {
			b.logger.Warn("skipping file", "file", doc.RelPath, "error", err)
			report.Skip(doc.RelPath, err.Error())
			continue
		}

		fr, err := b.indexDocument(ctx, idx, doc, i, len(files))
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		report.AddFile(fr)
	}

	indexPath := filepath.Join(folder, vector.FileName)
	if err := idx.Save(ctx, indexPath); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	report.Finish(indexPath)
	b.logger.Info("index saved", "path", indexPath, "files", report.Totals.Files,
		"stored", report.Totals.Stored(), "dropped", report.Totals.Dropped, "duration", report.Duration)
	return report, nil
}

func (b *Builder) indexDocument(ctx context.Context, idx vector.Index, doc Document, i, total int) (FileReport, error) {
	text := []rune(doc.Text)
	ctx, span := observability.StartFileSpan(ctx, doc.RelPath, len(text))
	defer span.End()

	cfg := b.chunker.Config()
	spans, err := chunker.Boundaries(len(text), cfg.TokensPerChunk, cfg.CharsPerToken)
	if err != nil {
		return FileReport{}, err
	}
	if b.opts.OnProgress != nil {
		b.opts.OnProgress(Progress{
			File:    doc.RelPath,
			Chunks:  len(spans),
			Index:   i,
			Total:   total,
			Percent: i * 100 / total,
		})
	}

	fr := FileReport{Path: doc.RelPath, Chars: len(text)}
	stats, err := b.chunker.Embed(ctx, doc.RelPath, text, func(s chunker.Span, v embedding.Vector) error {
		meta, err := metadata.Encode(doc.RelPath, s.Start)
		if err != nil {
			return err
		}
		ok, err := idx.Add(ctx, embedding.VectorBytes(v), meta, 1, false, false)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || !ok {
			b.logger.Error("failed to add chunk", "file", doc.RelPath, "span", s.String(), "error", err)
			fr.AddFailed++
		}
		if b.opts.OnChunk != nil {
			b.opts.OnChunk(doc.RelPath, s)
		}
		return nil
	})
	fr.Chunks, fr.Embedded, fr.Bisected, fr.Dropped = stats.Chunks, stats.Embedded, stats.Bisected, stats.Dropped
	observability.RecordFileResult(span, stats.Chunks, stats.Embedded, stats.Bisected, stats.Dropped)
	b.opts.Instruments.RecordFile(ctx, stats.Embedded, stats.Bisected, stats.Dropped)
	if err != nil {
		observability.RecordError(span, err)
		return fr, fmt.Errorf("index %s: %w", doc.RelPath, err)
	}
	if b.opts.OnIndexed != nil {
		b.opts.OnIndexed(Indexed{
			File:     doc.RelPath,
			Embedded: stats.Embedded,
			Index:    i,
			Total:    total,
			Percent:  float64(i) * 100 / float64(total),
		})
	}
	return fr, nil
}
