package engine

import (
	"testing"

	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

func TestDecide(t *testing.T) {
	next := job.New(id.NewWorkflowID(), "collect_data", 1)

	tests := []struct {
		name   string
		status workflow.Status
		next   *job.Job
		want   action
	}{
		{"queued with pending job", workflow.StatusQueued, next, actionDispatch},
		{"running with pending job", workflow.StatusRunning, next, actionDispatch},
		{"running exhausted", workflow.StatusRunning, nil, actionComplete},
		{"queued exhausted", workflow.StatusQueued, nil, actionComplete},
		{"completed halts", workflow.StatusCompleted, next, actionHalt},
		{"failed halts", workflow.StatusFailed, next, actionHalt},
		{"failed exhausted still halts", workflow.StatusFailed, nil, actionHalt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decide(tt.status, tt.next); got != tt.want {
				t.Errorf("decide(%s, hasNext=%v) = %s, want %s", tt.status, tt.next != nil, got, tt.want)
			}
		})
	}
}
