package engine

import (
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// action is the next-step decision for a workflow.
type action int

const (
	// actionDispatch enqueues the next pending job.
	actionDispatch action = iota
	// actionComplete marks the workflow completed.
	actionComplete
	// actionHalt leaves the workflow alone.
	actionHalt
)

func (a action) String() string {
	switch a {
	case actionDispatch:
		return "dispatch"
	case actionComplete:
		return "complete"
	case actionHalt:
		return "halt"
	}
	return "unknown"
}

// decide is the pure sequencing rule: given a workflow's status and its
// lowest-priority pending job (nil when none remain), pick the next
// action. Terminal workflows halt, exhausted sequences complete,
// anything else dispatches. All side effects (enqueue, transitions)
// happen in the engine after the decision.
func decide(status workflow.Status, next *job.Job) action {
	if status.Terminal() {
		return actionHalt
	}
	if next == nil {
		return actionComplete
	}
	return actionDispatch
}
