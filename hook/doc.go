// Package hook defines the lifecycle observer seam for Empire.
//
// Hooks are notified of lifecycle events and can react to them —
// recording metrics, streaming updates to clients, writing audit logs,
// etc. Each lifecycle event is a separate interface so hooks opt in
// only to the events they care about.
//
// # Implementing a Hook
//
//	type MyHook struct{}
//
//	func (h *MyHook) Name() string { return "my-hook" }
//
//	// Opt in to specific events by implementing their interfaces.
//	func (h *MyHook) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Workflow Lifecycle Hooks
//
//   - [WorkflowCreatedHook] — workflow persisted as pending
//   - [WorkflowQueuedHook] — workflow claimed and expanded into jobs
//   - [WorkflowStartedHook] — first job began executing
//   - [WorkflowCompletedHook] — every job finished successfully
//   - [WorkflowFailedHook] — a job failed and the sequence halted
//
// # Job Lifecycle Hooks
//
//   - [JobDispatchedHook] — job handed to the work queue
//   - [JobStartedHook] — job claimed by a consumer and executing
//   - [JobCompletedHook] — job finished successfully
//   - [JobFailedHook] — job failed terminally
//
// # Other Hooks
//
//   - [AlertRaisedHook] — the health monitor persisted an alert
//   - [ShutdownHook] — the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered hooks that
// implement the corresponding interface. Hook errors are logged and
// never propagated; hook panics are recovered. Lifecycle observers must
// not be able to stall or fail the pipeline.
package hook
