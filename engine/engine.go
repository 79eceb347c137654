package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/hook"
	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/middleware"
	"github.com/thelittleladyinc/empire-system/node"
	"github.com/thelittleladyinc/empire-system/observability"
	"github.com/thelittleladyinc/empire-system/plan"
	"github.com/thelittleladyinc/empire-system/queue"
	"github.com/thelittleladyinc/empire-system/schedule"
	"github.com/thelittleladyinc/empire-system/store"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// Engine is the workflow orchestrator. It owns the workflow and job
// lifecycle: expanding workflows into job sequences, dispatching the
// next runnable job through the queue, and reacting to completion and
// failure. Use Build to create one from an Orchestrator.
type Engine struct {
	store  store.Store
	queue  queue.Queue
	nodes  *node.Registry
	plans  *plan.Resolver
	hooks  *hook.Registry
	config empire.Config
	logger *slog.Logger

	// execute is the assembled middleware chain around node execution.
	execute middleware.Middleware

	monitor   *health.Monitor
	scheduler *schedule.Scheduler

	// extraMws are appended after the default middleware chain.
	extraMws []middleware.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu      sync.Mutex
	started bool

	// active is the advisory set of in-flight workflow ids, keyed by
	// string form. Instance-local bookkeeping; the store is the single
	// source of truth.
	activeMu sync.Mutex
	active   map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithMiddleware appends middleware to the node execution chain, after
// the built-in recover/tracing/metrics/logging/timeout stack.
func WithMiddleware(m middleware.Middleware) Option {
	return func(eng *Engine) {
		eng.extraMws = append(eng.extraMws, m)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability hook use
// this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// CreateOption customizes a workflow at creation time.
type CreateOption func(*workflow.Workflow)

// WithMetadata merges the given metadata into the created workflow.
func WithMetadata(md map[string]string) CreateOption {
	return func(w *workflow.Workflow) {
		if len(md) == 0 {
			return
		}
		if w.Metadata == nil {
			w.Metadata = make(map[string]string, len(md))
		}
		for k, v := range md {
			w.Metadata[k] = v
		}
	}
}

// Build assembles an Engine from an Orchestrator. The orchestrator's
// store must implement store.Store and its queue queue.Queue; Build
// registers the engine's ProcessJob as the queue consumer.
func Build(o *empire.Orchestrator, opts ...Option) (*Engine, error) {
	logger := o.Logger()

	if o.Store() == nil {
		return nil, empire.ErrNoStore
	}
	st, ok := o.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("empire: store %T does not implement store.Store", o.Store())
	}

	if o.Queue() == nil {
		return nil, empire.ErrNoQueue
	}
	q, ok := o.Queue().(queue.Queue)
	if !ok {
		return nil, fmt.Errorf("empire: queue %T does not implement queue.Queue", o.Queue())
	}

	eng := &Engine{
		store:  st,
		queue:  q,
		nodes:  o.Nodes(),
		plans:  o.Plans(),
		config: o.Config(),
		logger: logger,
		active: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(eng)
	}

	// Register user hooks, then the built-in observability hook.
	eng.hooks = hook.NewRegistry(logger)
	for _, h := range o.Hooks() {
		hk, ok := h.(hook.Hook)
		if !ok {
			return nil, fmt.Errorf("empire: hook %T does not implement hook.Hook", h)
		}
		eng.hooks.Register(hk)
	}
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/thelittleladyinc/empire-system/observability")
		eng.hooks.Register(observability.NewMetricsHookWithMeter(meter))
	} else {
		eng.hooks.Register(observability.NewMetricsHook())
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw middleware.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/thelittleladyinc/empire-system")
		tracingMw = middleware.TracingWithTracer(tracer)
	} else {
		tracingMw = middleware.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw middleware.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/thelittleladyinc/empire-system")
		metricsMw = middleware.MetricsWithMeter(meter)
	} else {
		metricsMw = middleware.Metrics()
	}

	// Default execution chain: recover → tracing → metrics → logging →
	// timeout, then any user middleware.
	mws := []middleware.Middleware{
		middleware.Recover(logger),
		tracingMw,
		metricsMw,
		middleware.Logging(logger),
		middleware.Timeout(eng.config.NodeTimeout),
	}
	mws = append(mws, eng.extraMws...)
	eng.execute = middleware.Chain(mws...)

	// Health monitor, alerting through the hook registry.
	monOpts := []health.MonitorOption{
		health.WithAlertFunc(func(ctx context.Context, a *health.Alert) {
			eng.hooks.EmitAlertRaised(ctx, a)
		}),
	}
	if eng.config.HealthInterval > 0 {
		monOpts = append(monOpts, health.WithInterval(eng.config.HealthInterval))
	}
	if eng.config.MemoryThreshold > 0 {
		monOpts = append(monOpts, health.WithMemoryThreshold(eng.config.MemoryThreshold))
	}
	eng.monitor = health.NewMonitor(st, q, logger, monOpts...)

	// Scheduler creating recurring workflows through the engine.
	eng.scheduler = schedule.New(func(ctx context.Context, e schedule.Entry) (id.WorkflowID, error) {
		w, err := eng.CreateWorkflow(ctx, e.PropertyID, e.WorkflowType, WithMetadata(e.Metadata))
		if err != nil {
			return id.WorkflowID{}, err
		}
		return w.ID, nil
	}, logger)

	// Register the consumer callback.
	if err := q.Consume(eng.ProcessJob); err != nil {
		return nil, fmt.Errorf("empire: register queue consumer: %w", err)
	}

	return eng, nil
}

// ──────────────────────────────────────────────────
// Orchestrator operations
// ──────────────────────────────────────────────────

// CreateWorkflow persists a pending workflow for the given property and
// type label, then immediately queues it. The returned workflow
// reflects the post-queue state.
func (eng *Engine) CreateWorkflow(ctx context.Context, propertyID, workflowType string, opts ...CreateOption) (*workflow.Workflow, error) {
	w := workflow.New(workflowType, propertyID)
	for _, opt := range opts {
		opt(w)
	}

	if err := eng.store.CreateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	eng.trackActive(w.ID)
	eng.hooks.EmitWorkflowCreated(ctx, w)
	eng.logger.Info("workflow created",
		slog.String("workflow_id", w.ID.String()),
		slog.String("type", w.Name),
		slog.String("property_id", w.PropertyID),
	)

	if err := eng.QueueWorkflow(ctx, w.ID); err != nil {
		return nil, err
	}
	return eng.store.GetWorkflow(ctx, w.ID)
}

// QueueWorkflow claims a pending workflow, expands its execution plan
// into one job per step, and dispatches the first. A workflow that is
// no longer pending returns ErrWorkflowAlreadyQueued and nothing is
// created — the duplicate-queue guard.
func (eng *Engine) QueueWorkflow(ctx context.Context, workflowID id.WorkflowID) error {
	w, err := eng.store.TransitionWorkflow(ctx, workflowID, workflow.StatusPending, workflow.StatusQueued)
	if err != nil {
		if errors.Is(err, empire.ErrInvalidTransition) {
			return empire.ErrWorkflowAlreadyQueued
		}
		return err
	}

	steps := eng.plans.Resolve(w.Name)
	jobs := make([]*job.Job, 0, len(steps))
	for i, step := range steps {
		jobs = append(jobs, job.New(w.ID, step, i+1))
	}
	if err := eng.store.CreateJobs(ctx, jobs); err != nil {
		return fmt.Errorf("empire: create jobs for workflow %s: %w", w.ID, err)
	}

	eng.trackActive(w.ID)
	eng.hooks.EmitWorkflowQueued(ctx, w)
	eng.logger.Info("workflow queued",
		slog.String("workflow_id", w.ID.String()),
		slog.String("type", w.Name),
		slog.Int("jobs", len(jobs)),
	)

	return eng.ProcessNextJob(ctx, w.ID)
}

// ProcessNextJob advances a workflow: it selects the lowest-priority
// pending job and dispatches it, or completes the workflow when none
// remain. A workflow already in a terminal state is left alone.
func (eng *Engine) ProcessNextJob(ctx context.Context, workflowID id.WorkflowID) error {
	w, err := eng.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	next, err := eng.store.NextPendingJob(ctx, workflowID)
	if err != nil {
		return err
	}

	switch decide(w.Status, next) {
	case actionHalt:
		eng.logger.Debug("workflow is terminal, not advancing",
			slog.String("workflow_id", workflowID.String()),
			slog.String("status", string(w.Status)),
		)
		return nil
	case actionComplete:
		return eng.CompleteWorkflow(ctx, workflowID)
	}

	msg := queue.Message{
		JobID:      next.ID,
		WorkflowID: workflowID,
		Node:       next.NodeName,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := eng.queue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("empire: enqueue job %s: %w", next.ID, err)
	}

	eng.hooks.EmitJobDispatched(ctx, next)
	eng.logger.Info("job dispatched",
		slog.String("workflow_id", workflowID.String()),
		slog.String("job_id", next.ID.String()),
		slog.String("node", next.NodeName),
		slog.Int("priority", next.Priority),
	)
	return nil
}

// ProcessJob is the queue consumer callback. It claims the job, runs
// its node through the middleware chain, records the outcome, and
// advances or halts the owning workflow. A redelivered message whose
// job is no longer pending is an acknowledged no-op.
func (eng *Engine) ProcessJob(ctx context.Context, msg queue.Message) error {
	j, err := eng.store.ClaimJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, empire.ErrJobNotPending) {
			eng.logger.Warn("duplicate delivery ignored",
				slog.String("job_id", msg.JobID.String()),
				slog.String("workflow_id", msg.WorkflowID.String()),
			)
			return nil
		}
		return err
	}
	eng.hooks.EmitJobStarted(ctx, j)

	w, err := eng.store.GetWorkflow(ctx, j.WorkflowID)
	if err != nil {
		return err
	}

	// The first job of the sequence moves the workflow to running.
	if w.Status == workflow.StatusQueued {
		updated, terr := eng.store.TransitionWorkflow(ctx, j.WorkflowID, workflow.StatusQueued, workflow.StatusRunning)
		switch {
		case terr == nil:
			w = updated
			eng.hooks.EmitWorkflowStarted(ctx, w)
			eng.logger.Info("workflow started",
				slog.String("workflow_id", w.ID.String()),
			)
		case errors.Is(terr, empire.ErrInvalidTransition):
			// A concurrent delivery already advanced it.
		default:
			return terr
		}
	}

	req := node.Request{
		WorkflowID: j.WorkflowID,
		JobID:      j.ID,
		Node:       j.NodeName,
		PropertyID: w.PropertyID,
		Metadata:   w.Metadata,
	}

	start := time.Now()
	result, execErr := eng.execute(ctx, &req, func(ctx context.Context) ([]byte, error) {
		return eng.nodes.Execute(ctx, req)
	})
	elapsed := time.Since(start)

	if execErr != nil {
		return eng.failJob(ctx, j, execErr)
	}
	return eng.completeJob(ctx, j, result, elapsed)
}

// completeJob records a successful node execution and advances the
// workflow to its next job.
func (eng *Engine) completeJob(ctx context.Context, j *job.Job, result []byte, elapsed time.Duration) error {
	now := time.Now().UTC()
	j.Status = job.StatusCompleted
	j.Result = result
	j.CompletedAt = &now
	j.Touch()
	if err := eng.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("empire: record job %s completion: %w", j.ID, err)
	}

	eng.hooks.EmitJobCompleted(ctx, j, elapsed)
	eng.logger.Info("job completed",
		slog.String("workflow_id", j.WorkflowID.String()),
		slog.String("job_id", j.ID.String()),
		slog.String("node", j.NodeName),
		slog.Duration("elapsed", elapsed),
	)

	return eng.ProcessNextJob(ctx, j.WorkflowID)
}

// failJob records a failed node execution and halts the owning
// workflow. Jobs are never retried; later jobs stay pending.
func (eng *Engine) failJob(ctx context.Context, j *job.Job, execErr error) error {
	now := time.Now().UTC()
	j.Status = job.StatusFailed
	j.Error = execErr.Error()
	j.CompletedAt = &now
	j.Touch()
	if err := eng.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("empire: record job %s failure: %w", j.ID, err)
	}
	eng.hooks.EmitJobFailed(ctx, j, execErr)

	w, terr := eng.store.TransitionWorkflow(ctx, j.WorkflowID, workflow.StatusRunning, workflow.StatusFailed)
	if terr != nil {
		eng.logger.Error("workflow failure transition error",
			slog.String("workflow_id", j.WorkflowID.String()),
			slog.String("error", terr.Error()),
		)
	} else {
		eng.dropActive(w.ID)
		eng.hooks.EmitWorkflowFailed(ctx, w, execErr)
	}

	eng.logger.Error("job failed",
		slog.String("workflow_id", j.WorkflowID.String()),
		slog.String("job_id", j.ID.String()),
		slog.String("node", j.NodeName),
		slog.String("error", execErr.Error()),
	)

	// Returning the node error hands the message to the queue's
	// failure channel.
	return fmt.Errorf("empire: job %s (%s): %w", j.ID, j.NodeName, execErr)
}

// CompleteWorkflow marks a workflow whose job sequence is exhausted as
// completed and drops it from the advisory active set.
func (eng *Engine) CompleteWorkflow(ctx context.Context, workflowID id.WorkflowID) error {
	w, err := eng.store.TransitionWorkflow(ctx, workflowID, workflow.StatusRunning, workflow.StatusCompleted)
	if err != nil {
		return err
	}
	eng.dropActive(w.ID)

	elapsed := time.Since(w.CreatedAt)
	if w.CompletedAt != nil {
		elapsed = w.CompletedAt.Sub(w.CreatedAt)
	}
	eng.hooks.EmitWorkflowCompleted(ctx, w, elapsed)
	eng.logger.Info("workflow completed",
		slog.String("workflow_id", w.ID.String()),
		slog.String("type", w.Name),
		slog.Duration("elapsed", elapsed),
	)
	return nil
}

// WorkflowStatus is the read-only join of a workflow and its jobs.
type WorkflowStatus struct {
	Workflow *workflow.Workflow `json:"workflow"`
	Jobs     []*job.Job         `json:"jobs"`
}

// GetWorkflowStatus returns a workflow and its jobs ordered by
// priority. Returns empire.ErrWorkflowNotFound if the workflow does
// not exist.
func (eng *Engine) GetWorkflowStatus(ctx context.Context, workflowID id.WorkflowID) (*WorkflowStatus, error) {
	w, err := eng.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	jobs, err := eng.store.ListJobsByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return &WorkflowStatus{Workflow: w, Jobs: jobs}, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the queue consumers, the health monitor, and the
// scheduler.
func (eng *Engine) Start(ctx context.Context) error {
	eng.mu.Lock()
	if eng.started {
		eng.mu.Unlock()
		return empire.ErrEngineStarted
	}
	eng.started = true
	eng.mu.Unlock()

	if err := eng.queue.Start(ctx); err != nil {
		eng.mu.Lock()
		eng.started = false
		eng.mu.Unlock()
		return fmt.Errorf("empire: start queue: %w", err)
	}
	if err := eng.monitor.Start(ctx); err != nil {
		return fmt.Errorf("empire: start health monitor: %w", err)
	}
	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("empire: start scheduler: %w", err)
	}

	eng.logger.Info("engine started",
		slog.String("queue", eng.config.QueueName),
		slog.Int("nodes", len(eng.nodes.Names())),
		slog.Int("plans", len(eng.plans.Labels())),
	)
	return nil
}

// Stop gracefully shuts down: scheduler and monitor first, then the
// queue bounded by ShutdownTimeout, then the shutdown hooks.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	if !eng.started {
		eng.mu.Unlock()
		return empire.ErrEngineStopped
	}
	eng.started = false
	eng.mu.Unlock()

	if eng.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.config.ShutdownTimeout)
		defer cancel()
	}

	if err := eng.scheduler.Stop(ctx); err != nil {
		eng.logger.Error("scheduler stop error", slog.String("error", err.Error()))
	}
	if err := eng.monitor.Stop(ctx); err != nil {
		eng.logger.Error("health monitor stop error", slog.String("error", err.Error()))
	}

	stopErr := eng.queue.Stop(ctx)
	if stopErr != nil {
		eng.logger.Error("queue stop error", slog.String("error", stopErr.Error()))
	}

	eng.hooks.EmitShutdown(ctx)
	eng.logger.Info("engine stopped")
	return stopErr
}

// ──────────────────────────────────────────────────
// Advisory active set
// ──────────────────────────────────────────────────

func (eng *Engine) trackActive(workflowID id.WorkflowID) {
	eng.activeMu.Lock()
	eng.active[workflowID.String()] = struct{}{}
	eng.activeMu.Unlock()
}

func (eng *Engine) dropActive(workflowID id.WorkflowID) {
	eng.activeMu.Lock()
	delete(eng.active, workflowID.String())
	eng.activeMu.Unlock()
}

// ActiveCount returns the size of the advisory active-workflow set.
// Never consulted for correctness decisions; diagnostic only.
func (eng *Engine) ActiveCount() int {
	eng.activeMu.Lock()
	defer eng.activeMu.Unlock()
	return len(eng.active)
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Store returns the engine's composite store.
func (eng *Engine) Store() store.Store { return eng.store }

// Queue returns the work queue.
func (eng *Engine) Queue() queue.Queue { return eng.queue }

// Nodes returns the node registry.
func (eng *Engine) Nodes() *node.Registry { return eng.nodes }

// Plans returns the execution plan resolver.
func (eng *Engine) Plans() *plan.Resolver { return eng.plans }

// Hooks returns the hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Monitor returns the health monitor.
func (eng *Engine) Monitor() *health.Monitor { return eng.monitor }

// Scheduler returns the recurring-workflow scheduler.
func (eng *Engine) Scheduler() *schedule.Scheduler { return eng.scheduler }

// Config returns the engine configuration.
func (eng *Engine) Config() empire.Config { return eng.config }
