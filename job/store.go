package job

import (
	"context"

	"github.com/thelittleladyinc/empire-system/id"
)

// Store defines the persistence contract for jobs.
type Store interface {
	// CreateJobs persists a batch of new jobs in pending status. The
	// batch is the full job set of one workflow, created together.
	CreateJobs(ctx context.Context, jobs []*Job) error

	// GetJob retrieves a job by ID.
	// Returns empire.ErrJobNotFound if it does not exist.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// ClaimJob atomically moves a pending job to running, sets StartedAt,
	// and returns the updated record. If the job exists but is not
	// pending it returns empire.ErrJobNotPending; this is how duplicate
	// queue deliveries are detected. Returns empire.ErrJobNotFound if
	// the job does not exist.
	ClaimJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// NextPendingJob returns the pending job with the lowest priority
	// for the given workflow, or (nil, nil) when the workflow has no
	// pending jobs left.
	NextPendingJob(ctx context.Context, workflowID id.WorkflowID) (*Job, error)

	// ListJobsByWorkflow returns all jobs for a workflow ordered by
	// ascending priority.
	ListJobsByWorkflow(ctx context.Context, workflowID id.WorkflowID) ([]*Job, error)

	// CountJobs returns the number of jobs whose status is one of the
	// given statuses. No statuses means all jobs.
	CountJobs(ctx context.Context, statuses ...Status) (int64, error)
}
