// Package job defines the job entity, its status machine, and the job
// store interface.
//
// A [Job] is one scheduled step within a workflow's execution plan. Jobs
// are created in a batch when a workflow is queued, with priorities 1..N
// in plan order, and progress through:
//
//	pending → running → completed
//	pending → running → failed
//
// Each job transitions exactly once; failed jobs are not retried. The
// pending → running edge is taken through the atomic [Store.ClaimJob],
// which is what makes redelivered queue messages safe to ignore.
package job
