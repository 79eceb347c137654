package empire

import "errors"

var (
	// Configuration errors.
	ErrNoStore = errors.New("empire: no store configured")
	ErrNoQueue = errors.New("empire: no queue configured")

	// Not found errors.
	ErrWorkflowNotFound = errors.New("empire: workflow not found")
	ErrJobNotFound      = errors.New("empire: job not found")

	// Conflict errors.
	ErrWorkflowExists = errors.New("empire: workflow already exists")
	ErrJobExists      = errors.New("empire: job already exists")

	// State errors.
	ErrInvalidTransition     = errors.New("empire: invalid status transition")
	ErrWorkflowAlreadyQueued = errors.New("empire: workflow already queued")
	ErrJobNotPending         = errors.New("empire: job is not pending")

	// Lifecycle errors.
	ErrEngineStarted = errors.New("empire: engine already started")
	ErrEngineStopped = errors.New("empire: engine not started")
)
