package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// WorkflowTarget names a Cloud Workflow that receives executions.
type WorkflowTarget struct {
	ProjectID  string
	Location   string
	WorkflowID string
}

// Parent returns the resource name executions are created under.
func (t WorkflowTarget) Parent() string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", t.ProjectID, t.Location, t.WorkflowID)
}

// NewExecutionsClient creates a Workflows Executions client.
func NewExecutionsClient(ctx context.Context) (*executions.Client, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return client, nil
}

// TriggerExecution starts the workflow with payload marshalled as its argument and
// returns the execution name.
func TriggerExecution(ctx context.Context, client *executions.Client, target WorkflowTarget, payload any) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: target.Parent(),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return exec.GetName(), nil
}
