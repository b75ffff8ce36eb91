package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/efebarandurmaz/docindex/internal/lifecycle"
	"github.com/efebarandurmaz/docindex/internal/metadata"
	"github.com/efebarandurmaz/docindex/internal/search"
	"github.com/efebarandurmaz/docindex/internal/tui"
	"github.com/efebarandurmaz/docindex/internal/vector"
)

// tuiExcerptLength is how much text the terminal UI shows per result.
const tuiExcerptLength = 1500

type searchMode struct {
	tui     bool
	json    bool
	queries []string
}

func (a *app) runSearch(in io.Reader, out io.Writer, mode searchMode) error {
	indexPath := filepath.Join(a.cfg.Index.DocumentsDir(), vector.FileName)
	start := time.Now()
	idx, err := a.backend.Load(a.ctx(), indexPath)
	if err != nil {
		return err
	}
	a.shutdown.Register(lifecycle.IndexHook(idx.Close))
	a.logger.Info("loaded index", "path", indexPath, "duration", time.Since(start))

	engine, err := search.NewEngine(a.client, idx, search.Options{
		Deployment: a.cfg.Embedding.Deployment,
		Top:        a.cfg.Search.Top,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	base := a.cfg.Index.Folder
	if mode.tui {
		return tui.RunSearch(a.ctx(), engine, excerptFunc(base, tuiExcerptLength), a.cfg.Search.Top, indexPath)
	}

	p := &resultPrinter{
		out:     out,
		json:    mode.json,
		top:     a.cfg.Search.Top,
		excerpt: excerptFunc(base, search.ExcerptLength),
	}
	if len(mode.queries) > 0 {
		for _, q := range mode.queries {
			if err := p.answer(a.ctx(), engine, q); err != nil {
				return err
			}
		}
		return nil
	}
	return p.repl(a.ctx(), in, engine, a.logger.Error)
}

func excerptFunc(base string, n int) tui.ExcerptFunc {
	return func(r search.Result) (string, error) {
		return search.Excerpt(base, r.Path, r.Offset, n)
	}
}

// resultPrinter writes query results as text blocks or JSON lines.
type resultPrinter struct {
	out     io.Writer
	json    bool
	top     int
	excerpt tui.ExcerptFunc
}

type jsonResult struct {
	search.Result
	Excerpt      string `json:"excerpt,omitempty"`
	ExcerptError string `json:"excerpt_error,omitempty"`
}

type jsonAnswer struct {
	Query   string       `json:"query"`
	Results []jsonResult `json:"results"`
}

// answer runs one query. Corrupt index metadata is returned; other
// failures are returned too and the REPL decides whether to continue.
func (p *resultPrinter) answer(ctx context.Context, s tui.Searcher, query string) error {
	results, err := s.Search(ctx, query, p.top)
	if err != nil {
		return err
	}

	if p.json {
		ans := jsonAnswer{Query: query, Results: make([]jsonResult, 0, len(results))}
		for _, r := range results {
			jr := jsonResult{Result: r}
			if text, err := p.excerpt(r); err != nil {
				jr.ExcerptError = err.Error()
			} else {
				jr.Excerpt = text
			}
			ans.Results = append(ans.Results, jr)
		}
		return json.NewEncoder(p.out).Encode(ans)
	}

	fmt.Fprintln(p.out, strings.Repeat("*", 66))
	for _, r := range results {
		fmt.Fprintf(p.out, "Result #%d - %s - distance=%g\n", r.Rank, r.Title, r.Distance)
		text, err := p.excerpt(r)
		if err != nil {
			fmt.Fprintf(p.out, "...(excerpt unavailable: %v)\n", err)
			continue
		}
		fmt.Fprintf(p.out, "...%s\n", text)
	}
	return nil
}

// repl answers one query per input line until input ends or ctx is
// cancelled. Query failures are reported and the loop continues, except
// for corrupt index metadata and unreadable input.
func (p *resultPrinter) repl(ctx context.Context, in io.Reader, s tui.Searcher, logError func(msg string, args ...any)) error {
	lines := make(chan string)
	// readErr is written before lines is closed.
	var readErr error
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr = scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if readErr != nil {
					return fmt.Errorf("reading queries: %w", readErr)
				}
				return nil
			}
			query := strings.TrimSpace(line)
			if query == "" {
				continue
			}
			if err := p.answer(ctx, s, query); err != nil {
				var malformed *metadata.MalformedMetadataError
				if errors.As(err, &malformed) || ctx.Err() != nil {
					return err
				}
				logError("query failed", "query", query, "error", err)
			}
		}
	}
}
