// Package chunker splits document text into fixed-size character spans and
// embeds them, bisecting a span once when the embedding service rejects it.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/efebarandurmaz/docindex/internal/embedding"
)

// ErrInvalidChunkSize is returned when tokens per chunk or chars per token
// would produce spans shorter than one character.
var ErrInvalidChunkSize = errors.New("invalid chunk size")

// Span is a half-open character range [Start, End) of a document.
type Span struct {
	Start int
	End   int
}

// Len returns the number of characters in the span.
func (s Span) Len() int { return s.End - s.Start }

// Bisect splits the span at its midpoint. ok is false for spans shorter
// than two characters.
func (s Span) Bisect() (left, right Span, ok bool) {
	if s.Len() < 2 {
		return s, Span{}, false
	}
	mid := (s.Start + s.End) / 2
	return Span{s.Start, mid}, Span{mid, s.End}, true
}

func (s Span) String() string { return fmt.Sprintf("[%d,%d)", s.Start, s.End) }

// Boundaries returns the spans covering a text of the given length, each
// at most tokensPerChunk*charsPerToken characters long. The spans are
// contiguous and ordered. Empty text has no spans.
func Boundaries(length, tokensPerChunk int, charsPerToken float64) ([]Span, error) {
	step := float64(tokensPerChunk) * charsPerToken
	if tokensPerChunk <= 0 || charsPerToken <= 0 || step < 1 {
		return nil, fmt.Errorf("%w: %d tokens x %g chars", ErrInvalidChunkSize, tokensPerChunk, charsPerToken)
	}
	if length <= 0 {
		return nil, nil
	}

	n := int(math.Ceil(float64(length) / step))
	spans := make([]Span, 0, n)
	for i := 0; i < n; i++ {
		start := int(math.Floor(float64(i) * step))
		end := min(int(math.Floor(float64(i+1)*step)), length)
		spans = append(spans, Span{Start: start, End: end})
	}
	return spans, nil
}

// Config controls chunk sizing and the deployment chunks are embedded with.
type Config struct {
	TokensPerChunk int
	CharsPerToken  float64
	Deployment     string
}

// DefaultConfig returns 4096 tokens of 2.5 characters per chunk.
func DefaultConfig() Config {
	return Config{TokensPerChunk: 4096, CharsPerToken: 2.5}
}

// EmitFunc receives each embedded span in document order. A returned error
// aborts the document.
type EmitFunc func(span Span, v embedding.Vector) error

// Stats counts what happened to a document's spans.
type Stats struct {
	Chunks   int // spans produced by Boundaries
	Embedded int // spans and halves handed to emit
	Bisected int // spans rejected and split
	Dropped  int // halves (or unsplittable spans) lost after rejection
}

// Chunker embeds documents span by span.
type Chunker struct {
	client embedding.Client
	config Config
	logger *slog.Logger
}

// New creates a Chunker. A nil logger uses slog.Default().
func New(client embedding.Client, cfg Config, logger *slog.Logger) (*Chunker, error) {
	if client == nil {
		return nil, errors.New("chunker: nil embedding client")
	}
	if _, err := Boundaries(1, cfg.TokensPerChunk, cfg.CharsPerToken); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{client: client, config: cfg, logger: logger}, nil
}

// Config returns the chunker configuration.
func (c *Chunker) Config() Config { return c.config }

// Embed embeds every span of text and passes each vector to emit. A span the
// service rejects with a RequestFailedError is split once at its midpoint and
// each half is submitted on its own; a half that fails again is logged and
// dropped. Any other error stops processing and is returned.
func (c *Chunker) Embed(ctx context.Context, source string, text []rune, emit EmitFunc) (Stats, error) {
	var stats Stats
	spans, err := Boundaries(len(text), c.config.TokensPerChunk, c.config.CharsPerToken)
	if err != nil {
		return stats, err
	}
	stats.Chunks = len(spans)

	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		v, err := c.embed(ctx, text, span)
		if err == nil {
			if err := emit(span, v); err != nil {
				return stats, err
			}
			stats.Embedded++
			continue
		}
		if !embedding.IsRequestFailed(err) {
			return stats, err
		}

		left, right, ok := span.Bisect()
		if !ok {
			c.logger.Warn("dropping chunk", "file", source, "span", span.String(), "error", err)
			stats.Dropped++
			continue
		}
		c.logger.Info("chunk rejected, bisecting", "file", source, "span", span.String(), "error", err)
		stats.Bisected++

		for _, half := range []Span{left, right} {
			v, err := c.embed(ctx, text, half)
			if err != nil {
				if !embedding.IsRequestFailed(err) {
					return stats, err
				}
				c.logger.Warn("dropping sub-chunk", "file", source, "span", half.String(), "error", err)
				stats.Dropped++
				continue
			}
			if err := emit(half, v); err != nil {
				return stats, err
			}
			stats.Embedded++
		}
	}
	return stats, nil
}

func (c *Chunker) embed(ctx context.Context, text []rune, span Span) (embedding.Vector, error) {
	return c.client.Embed(ctx, string(text[span.Start:span.End]), c.config.Deployment)
}
