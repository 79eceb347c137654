package workflow

import (
	"time"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/id"
)

// Status represents the lifecycle status of a workflow.
type Status string

const (
	// StatusPending means the workflow is persisted but not yet expanded
	// into jobs.
	StatusPending Status = "pending"
	// StatusQueued means the job sequence exists and the first job has
	// been dispatched.
	StatusQueued Status = "queued"
	// StatusRunning means at least one job has started executing.
	StatusRunning Status = "running"
	// StatusCompleted means every job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means a job failed and the sequence halted.
	StatusFailed Status = "failed"
)

// Statuses lists every valid workflow status.
var Statuses = []Status{StatusPending, StatusQueued, StatusRunning, StatusCompleted, StatusFailed}

// ActiveStatuses lists the non-terminal statuses.
var ActiveStatuses = []Status{StatusPending, StatusQueued, StatusRunning}

// Terminal reports whether the status is a final one.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether the status is one of the defined constants.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether from → to is a legal step on the
// monotonic status chain. Store implementations consult this before
// applying a compare-and-swap transition.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusQueued
	case StatusQueued:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Workflow represents a single orchestrated unit of work: one property
// request expanded into an ordered sequence of jobs.
type Workflow struct {
	empire.Entity

	ID          id.WorkflowID     `json:"id"`
	Name        string            `json:"name"`
	Status      Status            `json:"status"`
	PropertyID  string            `json:"property_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// New creates a pending workflow for the given type label and property
// reference, with a freshly generated ID.
func New(name, propertyID string) *Workflow {
	return &Workflow{
		Entity:     empire.NewEntity(),
		ID:         id.NewWorkflowID(),
		Name:       name,
		Status:     StatusPending,
		PropertyID: propertyID,
	}
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	cp := *w
	if w.Metadata != nil {
		cp.Metadata = make(map[string]string, len(w.Metadata))
		for k, v := range w.Metadata {
			cp.Metadata[k] = v
		}
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
