// Package observability provides an OpenTelemetry-based metrics hook.
// MetricsHook implements the lifecycle hook interfaces to record
// system-wide counters for workflow creation, completion, and failure,
// job outcomes, and a histogram of end-to-end workflow duration.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
