// Package engine wires the Empire subsystems together and implements
// the workflow orchestrator: create, queue, advance, execute, complete.
//
// The engine package exists to break a fundamental import cycle: the
// root empire package defines Entity (imported by workflow, job, and
// health) and therefore cannot import those packages back. Engine sits
// above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	o, err := empire.New(
//	    empire.WithStore(pgStore),
//	    empire.WithQueue(redisQueue),
//	)
//
//	eng, err := engine.Build(o,
//	    engine.WithMiddleware(myMiddleware),
//	)
//
// Build registers the engine's ProcessJob as the queue consumer; Start
// launches the consumer loops, the health monitor, and the scheduler.
//
// # Running Workflows
//
//	eng.Nodes().Register("collect_data", collectData)
//
//	w, err := eng.CreateWorkflow(ctx, "prop-123", "full_listing")
//	status, err := eng.GetWorkflowStatus(ctx, w.ID)
//
// # Options
//
//   - [WithMiddleware] — append middleware to the node execution chain
//   - [WithTracerProvider] — set the OpenTelemetry tracer provider
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
