package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/thelittleladyinc/empire-system/node"
)

// tracerName is the instrumentation scope name for empire tracing.
const tracerName = "github.com/thelittleladyinc/empire-system"

// Tracing returns middleware that wraps node execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop tracer
// is used and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: empire.job.id, empire.workflow.id, empire.node.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, req *node.Request, next Handler) ([]byte, error) {
		ctx, span := tracer.Start(ctx, "empire.node.execute",
			trace.WithAttributes(
				attribute.String("empire.job.id", req.JobID.String()),
				attribute.String("empire.workflow.id", req.WorkflowID.String()),
				attribute.String("empire.node", req.Node),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		result, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return result, err
	}
}
