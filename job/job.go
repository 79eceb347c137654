package job

import (
	"time"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/id"
)

// Status represents the lifecycle status of a job.
type Status string

const (
	// StatusPending means the job is waiting for its turn in the sequence.
	StatusPending Status = "pending"
	// StatusRunning means the job's node is currently executing.
	StatusRunning Status = "running"
	// StatusCompleted means the node finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the node failed; the job will not be retried.
	StatusFailed Status = "failed"
)

// Statuses lists every valid job status.
var Statuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}

// Terminal reports whether the status is a final one.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job represents one step of a workflow's execution plan, tracked
// independently for status and result.
type Job struct {
	empire.Entity

	ID          id.JobID      `json:"id"`
	WorkflowID  id.WorkflowID `json:"workflow_id"`
	NodeName    string        `json:"node_name"`
	Status      Status        `json:"status"`
	Priority    int           `json:"priority"`
	Result      []byte        `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// New creates a pending job for the given workflow, node, and execution
// priority (lower runs first).
func New(workflowID id.WorkflowID, nodeName string, priority int) *Job {
	return &Job{
		Entity:     empire.NewEntity(),
		ID:         id.NewJobID(),
		WorkflowID: workflowID,
		NodeName:   nodeName,
		Status:     StatusPending,
		Priority:   priority,
	}
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Result != nil {
		cp.Result = append([]byte(nil), j.Result...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
