package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	temporalclient "go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/docindex/internal/indexer"
	temporalmod "github.com/efebarandurmaz/docindex/internal/temporal"
)

func (a *app) runIndex(out io.Writer, jsonReport bool) error {
	var indexed indexer.IndexedFunc
	if !jsonReport {
		indexed = func(d indexer.Indexed) {
			fmt.Fprintln(out, progressLine(d))
		}
	}

	b, err := indexer.NewBuilder(a.client, a.backend, indexer.Options{
		BaseFolder: a.cfg.Index.Folder,
		Chunker:    a.chunkerConfig(),
		OnIndexed:  indexed,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	report, err := b.Build(a.ctx(), a.cfg.Index.DocumentsDir())
	if err != nil {
		return err
	}

	if jsonReport {
		data, err := report.JSON()
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	report.PrintSummary(out)
	return nil
}

// progressLine formats one finished document, with the percentage rounded
// to one decimal and trailing zeros dropped.
func progressLine(d indexer.Indexed) string {
	pct := strconv.FormatFloat(math.Round(d.Percent*10)/10, 'f', -1, 64)
	return fmt.Sprintf("✅ %s - %d chunks - %d/%d (%s%%)", d.File, d.Embedded, d.Index, d.Total, pct)
}

func (a *app) dialTemporal() (temporalclient.Client, error) {
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  a.cfg.Temporal.Host,
		Namespace: a.cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(a.logger),
	})
	if err != nil {
		return nil, fmt.Errorf("temporal client: %w", err)
	}
	return c, nil
}

// submitIndex starts the build on a Temporal worker and optionally waits
// for its result.
func (a *app) submitIndex(out io.Writer, wait bool) error {
	c, err := a.dialTemporal()
	if err != nil {
		return err
	}
	defer c.Close()

	input := temporalmod.IndexFolderInput{
		Folder:         a.cfg.Index.DocumentsDir(),
		BaseFolder:     a.cfg.Index.Folder,
		TokensPerChunk: a.cfg.Index.TokensPerChunk,
		CharsPerToken:  a.cfg.Index.CharsPerToken,
		Deployment:     a.cfg.Embedding.Deployment,
	}
	run, err := temporalmod.StartIndexWorkflow(a.ctx(), c, a.cfg.Temporal.TaskQueue, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Started workflow %s (run %s)\n", run.GetID(), run.GetRunID())
	if !wait {
		return nil
	}

	var result temporalmod.IndexFolderOutput
	if err := run.Get(a.ctx(), &result); err != nil {
		return fmt.Errorf("index workflow: %w", err)
	}
	fmt.Fprintf(out, "Index saved to %s: %d files, %d chunks stored, %d dropped, %d skipped in %s\n",
		result.IndexPath, result.Files, result.Stored, result.Dropped, result.Skipped, result.Duration.Round(time.Millisecond))
	return nil
}
