package workflow

import (
	"context"

	"github.com/thelittleladyinc/empire-system/id"
)

// ListOpts controls pagination and filtering for workflow list queries.
type ListOpts struct {
	// Limit is the maximum number of workflows to return. Zero means no limit.
	Limit int
	// Offset is the number of workflows to skip.
	Offset int
	// Status filters by workflow status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for workflows.
type Store interface {
	// CreateWorkflow persists a new workflow.
	CreateWorkflow(ctx context.Context, w *Workflow) error

	// GetWorkflow retrieves a workflow by ID.
	// Returns empire.ErrWorkflowNotFound if it does not exist.
	GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*Workflow, error)

	// UpdateWorkflow persists changes to an existing workflow.
	UpdateWorkflow(ctx context.Context, w *Workflow) error

	// TransitionWorkflow atomically moves a workflow from one status to
	// another and returns the updated record. The swap succeeds only if
	// the stored status equals from; otherwise it returns
	// empire.ErrInvalidTransition. When to is terminal, CompletedAt is
	// set. Returns empire.ErrWorkflowNotFound if the workflow does not
	// exist.
	TransitionWorkflow(ctx context.Context, workflowID id.WorkflowID, from, to Status) (*Workflow, error)

	// ListWorkflows returns workflows matching the given options, newest
	// first.
	ListWorkflows(ctx context.Context, opts ListOpts) ([]*Workflow, error)

	// CountWorkflows returns the number of workflows whose status is one
	// of the given statuses. No statuses means all workflows.
	CountWorkflows(ctx context.Context, statuses ...Status) (int64, error)
}
