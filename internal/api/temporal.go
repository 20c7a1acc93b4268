package api

import (
	"context"
	"errors"
	"fmt"

	"lexrag/internal/workflows"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
)

// TemporalIngest starts IngestWorkflow under its fixed workflow id.
type TemporalIngest struct {
	client    tclient.Client
	taskQueue string
}

func NewTemporalIngest(c tclient.Client, taskQueue string) *TemporalIngest {
	return &TemporalIngest{client: c, taskQueue: taskQueue}
}

func (t *TemporalIngest) StartIngest(ctx context.Context, reset bool) (IngestStarted, error) {
	we, err := t.client.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       workflows.IngestWorkflowID,
		TaskQueue:                                t.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.IngestWorkflow, workflows.IngestInput{Reset: reset})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return IngestStarted{}, fmt.Errorf("%w: %s", ErrIngestRunning, workflows.IngestWorkflowID)
		}
		return IngestStarted{}, fmt.Errorf("start ingest workflow: %w", err)
	}
	return IngestStarted{WorkflowID: we.GetID(), RunID: we.GetRunID()}, nil
}

// Progress queries the running workflow for its step and batch progress.
func (t *TemporalIngest) Progress(ctx context.Context) (workflows.IngestProgress, error) {
	val, err := t.client.QueryWorkflow(ctx, workflows.IngestWorkflowID, "", workflows.QueryGetProgress)
	if err != nil {
		return workflows.IngestProgress{}, fmt.Errorf("query ingest progress: %w", err)
	}
	var p workflows.IngestProgress
	if err := val.Get(&p); err != nil {
		return workflows.IngestProgress{}, fmt.Errorf("decode ingest progress: %w", err)
	}
	return p, nil
}
