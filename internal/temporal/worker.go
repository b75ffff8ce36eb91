package temporal

import (
	"context"
	"fmt"
	"path/filepath"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(IndexFolderWorkflow)
	w.RegisterActivity(BuildIndexActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// WorkflowID names the build workflow for a folder so that only one build
// per folder runs at a time.
func WorkflowID(folder string) string {
	abs, err := filepath.Abs(folder)
	if err != nil {
		abs = folder
	}
	return "docindex-build:" + filepath.ToSlash(abs)
}

// StartIndexWorkflow submits an IndexFolderWorkflow run.
func StartIndexWorkflow(ctx context.Context, c client.Client, taskQueue string, input IndexFolderInput) (client.WorkflowRun, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(input.Folder),
		TaskQueue: taskQueue,
	}, IndexFolderWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("starting index workflow: %w", err)
	}
	return run, nil
}
