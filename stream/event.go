// Package stream provides a real-time broker for workflow lifecycle
// events. The Broker implements the hook interfaces, so registering it
// on the engine turns every lifecycle emission into an Event fanned out
// to subscribers via topic-based pub/sub. The admin API's websocket
// endpoint and the client's Watch consume it.
package stream

import "time"

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Workflow events.
	EventWorkflowCreated   EventType = "workflow.created"
	EventWorkflowQueued    EventType = "workflow.queued"
	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"

	// Job events.
	EventJobDispatched EventType = "job.dispatched"
	EventJobStarted    EventType = "job.started"
	EventJobCompleted  EventType = "job.completed"
	EventJobFailed     EventType = "job.failed"

	// Health events.
	EventAlertRaised EventType = "alert.raised"
)

// Event is the envelope delivered to subscribers. Fields not relevant
// to the event type are left empty: workflow events carry no JobID or
// Node, alert events carry neither.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// WorkflowID is the owning workflow, when the event concerns one.
	WorkflowID string `json:"workflow_id,omitempty"`

	// JobID is set on job events.
	JobID string `json:"job_id,omitempty"`

	// Node is the node name, set on job events.
	Node string `json:"node,omitempty"`

	// Status is the entity status after the event, or the alert kind
	// for alert events.
	Status string `json:"status,omitempty"`

	// Error carries the failure or alert message, when there is one.
	Error string `json:"error,omitempty"`

	// At is when the event was emitted.
	At time.Time `json:"at"`
}
