package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// Named entry types pair a hook implementation with the hook name
// captured at registration time. This avoids type-asserting back to
// Hook inside the emit methods.
type workflowCreatedEntry struct {
	name string
	hook WorkflowCreatedHook
}

type workflowQueuedEntry struct {
	name string
	hook WorkflowQueuedHook
}

type workflowStartedEntry struct {
	name string
	hook WorkflowStartedHook
}

type workflowCompletedEntry struct {
	name string
	hook WorkflowCompletedHook
}

type workflowFailedEntry struct {
	name string
	hook WorkflowFailedHook
}

type jobDispatchedEntry struct {
	name string
	hook JobDispatchedHook
}

type jobStartedEntry struct {
	name string
	hook JobStartedHook
}

type jobCompletedEntry struct {
	name string
	hook JobCompletedHook
}

type jobFailedEntry struct {
	name string
	hook JobFailedHook
}

type alertRaisedEntry struct {
	name string
	hook AlertRaisedHook
}

type shutdownEntry struct {
	name string
	hook ShutdownHook
}

// Registry holds registered hooks and dispatches lifecycle events to
// them. It type-caches hooks at registration time so emit calls iterate
// only over hooks that implement the relevant interface.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	// Type-cached slices for each lifecycle event.
	workflowCreated   []workflowCreatedEntry
	workflowQueued    []workflowQueuedEntry
	workflowStarted   []workflowStartedEntry
	workflowCompleted []workflowCompletedEntry
	workflowFailed    []workflowFailedEntry
	jobDispatched     []jobDispatchedEntry
	jobStarted        []jobStartedEntry
	jobCompleted      []jobCompletedEntry
	jobFailed         []jobFailedEntry
	alertRaised       []alertRaisedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if hk, ok := h.(WorkflowCreatedHook); ok {
		r.workflowCreated = append(r.workflowCreated, workflowCreatedEntry{name, hk})
	}
	if hk, ok := h.(WorkflowQueuedHook); ok {
		r.workflowQueued = append(r.workflowQueued, workflowQueuedEntry{name, hk})
	}
	if hk, ok := h.(WorkflowStartedHook); ok {
		r.workflowStarted = append(r.workflowStarted, workflowStartedEntry{name, hk})
	}
	if hk, ok := h.(WorkflowCompletedHook); ok {
		r.workflowCompleted = append(r.workflowCompleted, workflowCompletedEntry{name, hk})
	}
	if hk, ok := h.(WorkflowFailedHook); ok {
		r.workflowFailed = append(r.workflowFailed, workflowFailedEntry{name, hk})
	}
	if hk, ok := h.(JobDispatchedHook); ok {
		r.jobDispatched = append(r.jobDispatched, jobDispatchedEntry{name, hk})
	}
	if hk, ok := h.(JobStartedHook); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, hk})
	}
	if hk, ok := h.(JobCompletedHook); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, hk})
	}
	if hk, ok := h.(JobFailedHook); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, hk})
	}
	if hk, ok := h.(AlertRaisedHook); ok {
		r.alertRaised = append(r.alertRaised, alertRaisedEntry{name, hk})
	}
	if hk, ok := h.(ShutdownHook); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, hk})
	}
}

// Hooks returns all registered hooks.
func (r *Registry) Hooks() []Hook { return r.hooks }

// ──────────────────────────────────────────────────
// Workflow event emitters
// ──────────────────────────────────────────────────

// EmitWorkflowCreated notifies all hooks that implement WorkflowCreatedHook.
func (r *Registry) EmitWorkflowCreated(ctx context.Context, w *workflow.Workflow) {
	for _, e := range r.workflowCreated {
		r.call(ctx, "OnWorkflowCreated", e.name, func() error {
			return e.hook.OnWorkflowCreated(ctx, w)
		})
	}
}

// EmitWorkflowQueued notifies all hooks that implement WorkflowQueuedHook.
func (r *Registry) EmitWorkflowQueued(ctx context.Context, w *workflow.Workflow) {
	for _, e := range r.workflowQueued {
		r.call(ctx, "OnWorkflowQueued", e.name, func() error {
			return e.hook.OnWorkflowQueued(ctx, w)
		})
	}
}

// EmitWorkflowStarted notifies all hooks that implement WorkflowStartedHook.
func (r *Registry) EmitWorkflowStarted(ctx context.Context, w *workflow.Workflow) {
	for _, e := range r.workflowStarted {
		r.call(ctx, "OnWorkflowStarted", e.name, func() error {
			return e.hook.OnWorkflowStarted(ctx, w)
		})
	}
}

// EmitWorkflowCompleted notifies all hooks that implement WorkflowCompletedHook.
func (r *Registry) EmitWorkflowCompleted(ctx context.Context, w *workflow.Workflow, elapsed time.Duration) {
	for _, e := range r.workflowCompleted {
		r.call(ctx, "OnWorkflowCompleted", e.name, func() error {
			return e.hook.OnWorkflowCompleted(ctx, w, elapsed)
		})
	}
}

// EmitWorkflowFailed notifies all hooks that implement WorkflowFailedHook.
func (r *Registry) EmitWorkflowFailed(ctx context.Context, w *workflow.Workflow, wfErr error) {
	for _, e := range r.workflowFailed {
		r.call(ctx, "OnWorkflowFailed", e.name, func() error {
			return e.hook.OnWorkflowFailed(ctx, w, wfErr)
		})
	}
}

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobDispatched notifies all hooks that implement JobDispatchedHook.
func (r *Registry) EmitJobDispatched(ctx context.Context, j *job.Job) {
	for _, e := range r.jobDispatched {
		r.call(ctx, "OnJobDispatched", e.name, func() error {
			return e.hook.OnJobDispatched(ctx, j)
		})
	}
}

// EmitJobStarted notifies all hooks that implement JobStartedHook.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		r.call(ctx, "OnJobStarted", e.name, func() error {
			return e.hook.OnJobStarted(ctx, j)
		})
	}
}

// EmitJobCompleted notifies all hooks that implement JobCompletedHook.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		r.call(ctx, "OnJobCompleted", e.name, func() error {
			return e.hook.OnJobCompleted(ctx, j, elapsed)
		})
	}
}

// EmitJobFailed notifies all hooks that implement JobFailedHook.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		r.call(ctx, "OnJobFailed", e.name, func() error {
			return e.hook.OnJobFailed(ctx, j, jobErr)
		})
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitAlertRaised notifies all hooks that implement AlertRaisedHook.
func (r *Registry) EmitAlertRaised(ctx context.Context, a *health.Alert) {
	for _, e := range r.alertRaised {
		r.call(ctx, "OnAlertRaised", e.name, func() error {
			return e.hook.OnAlertRaised(ctx, a)
		})
	}
}

// EmitShutdown notifies all hooks that implement ShutdownHook.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		r.call(ctx, "OnShutdown", e.name, func() error {
			return e.hook.OnShutdown(ctx)
		})
	}
}

// call invokes one hook, logging errors and recovering panics. Hook
// failures are never propagated — they must not block the pipeline.
func (r *Registry) call(_ context.Context, event, hookName string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("hook panicked",
				slog.String("event", event),
				slog.String("hook", hookName),
				slog.Any("panic", rec),
			)
		}
	}()
	if err := fn(); err != nil {
		r.logger.Warn("hook error",
			slog.String("event", event),
			slog.String("hook", hookName),
			slog.String("error", err.Error()),
		)
	}
}
