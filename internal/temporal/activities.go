package temporal

import (
	"context"
	"errors"
	"log/slog"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/docindex/internal/chunker"
	"github.com/efebarandurmaz/docindex/internal/embedding"
	"github.com/efebarandurmaz/docindex/internal/indexer"
	"github.com/efebarandurmaz/docindex/internal/vector"
)

// ErrTypeConfiguration marks activity failures that retrying cannot fix.
const ErrTypeConfiguration = "Configuration"

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Client     embedding.Client
	Backend    vector.Backend
	Chunker    chunker.Config // defaults for inputs that leave chunking unset
	Dimensions int
	Logger     *slog.Logger
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// BuildIndexActivity builds and saves the index for input.Folder. Progress
// is reported as heartbeats carrying the index of the current document,
// sent when a document starts and after every chunk.
func BuildIndexActivity(ctx context.Context, input IndexFolderInput) (*IndexFolderOutput, error) {
	if deps == nil {
		return nil, temporal.NewNonRetryableApplicationError("activity dependencies not set", ErrTypeConfiguration, nil)
	}

	cfg := deps.Chunker
	if input.TokensPerChunk > 0 {
		cfg.TokensPerChunk = input.TokensPerChunk
	}
	if input.CharsPerToken > 0 {
		cfg.CharsPerToken = input.CharsPerToken
	}
	if input.Deployment != "" {
		cfg.Deployment = input.Deployment
	}

	var current int
	builder, err := indexer.NewBuilder(deps.Client, deps.Backend, indexer.Options{
		BaseFolder: input.BaseFolder,
		Chunker:    cfg,
		Dimensions: deps.Dimensions,
		Logger:     deps.Logger,
		OnProgress: func(p indexer.Progress) {
			current = p.Index
			activity.RecordHeartbeat(ctx, current)
		},
		// The SDK throttles heartbeats, so one per chunk is cheap and keeps
		// long documents alive.
		OnChunk: func(string, chunker.Span) {
			activity.RecordHeartbeat(ctx, current)
		},
	})
	if err != nil {
		if errors.Is(err, chunker.ErrInvalidChunkSize) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeConfiguration, err)
		}
		return nil, err
	}

	report, err := builder.Build(ctx, input.Folder)
	if err != nil {
		return nil, err
	}
	return &IndexFolderOutput{
		IndexPath: report.IndexPath,
		Files:     report.Totals.Files,
		Skipped:   report.Totals.Skipped,
		Stored:    report.Totals.Stored(),
		Bisected:  report.Totals.Bisected,
		Dropped:   report.Totals.Dropped,
		Duration:  report.Duration,
	}, nil
}
