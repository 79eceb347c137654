package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect/pgdialect"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/job"
)

// CreateJobs persists a batch of jobs as a single multi-row INSERT, so
// a workflow's plan is either fully recorded or not at all.
func (s *Store) CreateJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	models := make([]*jobModel, 0, len(jobs))
	for _, j := range jobs {
		models = append(models, toJobModel(j))
	}

	_, err := s.db.NewInsert().Model(&models).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return empire.ErrJobExists
		}
		return fmt.Errorf("empire/bun: create jobs: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, empire.ErrJobNotFound
		}
		return nil, fmt.Errorf("empire/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("empire/bun: update job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return empire.ErrJobNotFound
	}
	return nil
}

// ClaimJob atomically moves a pending job to running. The UPDATE
// matches on both id and pending status, so a duplicate delivery
// affects zero rows and surfaces as ErrJobNotPending.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	res, err := s.db.NewUpdate().
		TableExpr("empire_jobs").
		Set("status = 'running'").
		Set("started_at = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", jobID.String()).
		Where("status = 'pending'").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("empire/bun: claim job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		// Zero rows means either the job is missing or it is no longer
		// pending. Re-read to tell them apart.
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return nil, getErr
		}
		return nil, empire.ErrJobNotPending
	}

	return s.GetJob(ctx, jobID)
}

// NextPendingJob returns the workflow's pending job with the lowest
// priority, or (nil, nil) when none remain.
func (s *Store) NextPendingJob(ctx context.Context, workflowID id.WorkflowID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("workflow_id = ?", workflowID.String()).
		Where("status = 'pending'").
		Order("priority ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("empire/bun: next pending job: %w", err)
	}
	return fromJobModel(m)
}

// ListJobsByWorkflow returns all jobs for a workflow in priority order.
func (s *Store) ListJobsByWorkflow(ctx context.Context, workflowID id.WorkflowID) ([]*job.Job, error) {
	var models []jobModel
	err := s.db.NewSelect().Model(&models).
		Where("workflow_id = ?", workflowID.String()).
		Order("priority ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("empire/bun: list jobs by workflow: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("empire/bun: list jobs convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs in the given statuses.
func (s *Store) CountJobs(ctx context.Context, statuses ...job.Status) (int64, error) {
	q := s.db.NewSelect().TableExpr("empire_jobs")

	if len(statuses) > 0 {
		ss := make([]string, len(statuses))
		for i, st := range statuses {
			ss[i] = string(st)
		}
		q = q.Where("status = ANY(?)", pgdialect.Array(ss))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("empire/bun: count jobs: %w", err)
	}
	return int64(count), nil
}
