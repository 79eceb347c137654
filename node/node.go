// Package node defines the pluggable step-execution seam of the engine.
//
// A node is an opaque unit of business logic identified by name — data
// collection, description generation, publishing, and so on. The engine
// resolves node names from a [Registry] at dispatch time and is agnostic
// to what the handlers do. Unknown names fail the specific job, never
// the process.
package node

import (
	"context"
	"errors"

	"github.com/thelittleladyinc/empire-system/id"
)

// ErrNotRegistered is returned when a job names a node that has no
// registered handler.
var ErrNotRegistered = errors.New("node: handler not registered")

// Request carries the execution context a node handler receives.
type Request struct {
	WorkflowID id.WorkflowID     `json:"workflow_id"`
	JobID      id.JobID          `json:"job_id"`
	Node       string            `json:"node"`
	PropertyID string            `json:"property_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Handler is a type-erased node handler. The returned payload is stored
// as the job's result; a non-nil error fails the job and halts the
// owning workflow.
type Handler func(ctx context.Context, req Request) ([]byte, error)
