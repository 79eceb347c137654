package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thelittleladyinc/empire-system/hook"
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// meterName is the instrumentation scope for lifecycle metrics.
const meterName = "github.com/thelittleladyinc/empire-system/observability"

// Compile-time interface checks.
var (
	_ hook.Hook                  = (*MetricsHook)(nil)
	_ hook.WorkflowCreatedHook   = (*MetricsHook)(nil)
	_ hook.WorkflowCompletedHook = (*MetricsHook)(nil)
	_ hook.WorkflowFailedHook    = (*MetricsHook)(nil)
	_ hook.JobCompletedHook      = (*MetricsHook)(nil)
	_ hook.JobFailedHook         = (*MetricsHook)(nil)
)

// MetricsHook records system-wide lifecycle metrics via OpenTelemetry.
// Register it as a hook to automatically track workflow creation,
// completion and failure rates, job outcomes, and end-to-end workflow
// duration.
type MetricsHook struct {
	workflowsCreated   metric.Int64Counter
	workflowsCompleted metric.Int64Counter
	workflowsFailed    metric.Int64Counter
	jobsCompleted      metric.Int64Counter
	jobsFailed         metric.Int64Counter
	workflowDuration   metric.Float64Histogram
}

// NewMetricsHook creates a MetricsHook using the global OTel
// MeterProvider. Without a configured provider the instruments are
// noops, so registration is always safe.
func NewMetricsHook() *MetricsHook {
	return NewMetricsHookWithMeter(otel.Meter(meterName))
}

// NewMetricsHookWithMeter creates a MetricsHook with the provided
// meter. This variant allows injecting a specific MeterProvider for
// testing.
func NewMetricsHookWithMeter(meter metric.Meter) *MetricsHook {
	h := &MetricsHook{}

	// On instrument-creation error the OTel API returns noops, so the
	// hook degrades gracefully.
	h.workflowsCreated, _ = meter.Int64Counter(
		"empire.workflows.created",
		metric.WithDescription("Total number of workflows created"),
		metric.WithUnit("{workflow}"),
	)
	h.workflowsCompleted, _ = meter.Int64Counter(
		"empire.workflows.completed",
		metric.WithDescription("Total number of workflows completed"),
		metric.WithUnit("{workflow}"),
	)
	h.workflowsFailed, _ = meter.Int64Counter(
		"empire.workflows.failed",
		metric.WithDescription("Total number of workflows failed"),
		metric.WithUnit("{workflow}"),
	)
	h.jobsCompleted, _ = meter.Int64Counter(
		"empire.jobs.completed",
		metric.WithDescription("Total number of jobs completed"),
		metric.WithUnit("{job}"),
	)
	h.jobsFailed, _ = meter.Int64Counter(
		"empire.jobs.failed",
		metric.WithDescription("Total number of jobs failed"),
		metric.WithUnit("{job}"),
	)
	h.workflowDuration, _ = meter.Float64Histogram(
		"empire.workflow.duration",
		metric.WithDescription("End-to-end workflow duration in seconds"),
		metric.WithUnit("s"),
	)

	return h
}

// Name implements hook.Hook.
func (h *MetricsHook) Name() string { return "observability-metrics" }

func workflowAttrs(w *workflow.Workflow) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("type", w.Name))
}

func jobAttrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("node", j.NodeName))
}

// ── Workflow lifecycle ──────────────────────────────

// OnWorkflowCreated implements hook.WorkflowCreatedHook.
func (h *MetricsHook) OnWorkflowCreated(ctx context.Context, w *workflow.Workflow) error {
	h.workflowsCreated.Add(ctx, 1, workflowAttrs(w))
	return nil
}

// OnWorkflowCompleted implements hook.WorkflowCompletedHook.
func (h *MetricsHook) OnWorkflowCompleted(ctx context.Context, w *workflow.Workflow, elapsed time.Duration) error {
	h.workflowsCompleted.Add(ctx, 1, workflowAttrs(w))
	h.workflowDuration.Record(ctx, elapsed.Seconds(), workflowAttrs(w))
	return nil
}

// OnWorkflowFailed implements hook.WorkflowFailedHook.
func (h *MetricsHook) OnWorkflowFailed(ctx context.Context, w *workflow.Workflow, _ error) error {
	h.workflowsFailed.Add(ctx, 1, workflowAttrs(w))
	return nil
}

// ── Job lifecycle ───────────────────────────────────

// OnJobCompleted implements hook.JobCompletedHook.
func (h *MetricsHook) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	h.jobsCompleted.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements hook.JobFailedHook.
func (h *MetricsHook) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	h.jobsFailed.Add(ctx, 1, jobAttrs(j))
	return nil
}
