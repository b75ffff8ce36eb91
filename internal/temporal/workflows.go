package temporal

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// IndexFolderInput holds the workflow parameters.
type IndexFolderInput struct {
	Folder     string
	BaseFolder string

	// Chunking overrides; zero values use the worker's configuration.
	TokensPerChunk int
	CharsPerToken  float64
	Deployment     string
}

// IndexFolderOutput summarises a finished build.
type IndexFolderOutput struct {
	IndexPath string
	Files     int
	Skipped   int
	Stored    int
	Bisected  int
	Dropped   int
	Duration  time.Duration
}

// IndexFolderWorkflow builds the index for one folder as a single durable
// activity. A build is all-or-nothing, so a retried attempt starts over.
func IndexFolderWorkflow(ctx workflow.Context, input IndexFolderInput) (*IndexFolderOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 6 * time.Hour,
		HeartbeatTimeout:    10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        10 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeConfiguration},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("index workflow started", "folder", input.Folder)

	var out IndexFolderOutput
	if err := workflow.ExecuteActivity(ctx, BuildIndexActivity, input).Get(ctx, &out); err != nil {
		logger.Error("index workflow failed", "folder", input.Folder, "error", err)
		return nil, err
	}

	logger.Info("index workflow finished", "index", out.IndexPath, "stored", out.Stored, "dropped", out.Dropped)
	return &out, nil
}
