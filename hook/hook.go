package hook

import (
	"context"
	"time"

	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// Hook is the base interface all lifecycle hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ──────────────────────────────────────────────────
// Workflow lifecycle hooks
// ──────────────────────────────────────────────────

// WorkflowCreatedHook is called after a workflow is persisted as pending.
type WorkflowCreatedHook interface {
	OnWorkflowCreated(ctx context.Context, w *workflow.Workflow) error
}

// WorkflowQueuedHook is called after a workflow is claimed and its job
// sequence persisted.
type WorkflowQueuedHook interface {
	OnWorkflowQueued(ctx context.Context, w *workflow.Workflow) error
}

// WorkflowStartedHook is called when a workflow's first job begins
// executing.
type WorkflowStartedHook interface {
	OnWorkflowStarted(ctx context.Context, w *workflow.Workflow) error
}

// WorkflowCompletedHook is called after every job of a workflow has
// finished successfully.
type WorkflowCompletedHook interface {
	OnWorkflowCompleted(ctx context.Context, w *workflow.Workflow, elapsed time.Duration) error
}

// WorkflowFailedHook is called when a job fails and the workflow halts.
type WorkflowFailedHook interface {
	OnWorkflowFailed(ctx context.Context, w *workflow.Workflow, err error) error
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobDispatchedHook is called after a job message is handed to the
// work queue.
type JobDispatchedHook interface {
	OnJobDispatched(ctx context.Context, j *job.Job) error
}

// JobStartedHook is called when a consumer claims a job and begins
// executing its node.
type JobStartedHook interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompletedHook is called after a job finishes successfully.
type JobCompletedHook interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailedHook is called when a job fails. Jobs are never retried, so
// this is always terminal.
type JobFailedHook interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// AlertRaisedHook is called when the health monitor persists an alert.
type AlertRaisedHook interface {
	OnAlertRaised(ctx context.Context, a *health.Alert) error
}

// ShutdownHook is called during graceful shutdown.
type ShutdownHook interface {
	OnShutdown(ctx context.Context) error
}
