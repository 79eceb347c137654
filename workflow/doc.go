// Package workflow defines the workflow entity, its status machine, and
// the workflow store interface.
//
// A [Workflow] is a single end-to-end unit of orchestrated work tied to
// one property. It embeds [empire.Entity] for timestamps and progresses
// through a monotonic status chain:
//
//	pending → queued → running → completed
//	pending → queued → running → failed
//
// A workflow never re-enters pending after leaving it. The engine is the
// only writer of these fields; transitions happen through the store's
// compare-and-swap [Store.TransitionWorkflow].
package workflow
