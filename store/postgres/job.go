package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/job"
)

const jobColumns = `id, workflow_id, node_name, status, priority, result, error, started_at, completed_at, created_at, updated_at`

// CreateJobs persists a batch of jobs in a single transaction, so a
// workflow's plan is either fully recorded or not at all.
func (s *Store) CreateJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("empire/postgres: begin create jobs: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, j := range jobs {
		_, err := tx.Exec(ctx, `
			INSERT INTO empire_jobs (
				id, workflow_id, node_name, status, priority,
				result, error, started_at, completed_at, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5,
				$6, $7, $8, $9, $10, $11
			)`,
			j.ID.String(), j.WorkflowID.String(), j.NodeName, string(j.Status), j.Priority,
			j.Result, j.Error, j.StartedAt, j.CompletedAt, j.CreatedAt, j.UpdatedAt,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return empire.ErrJobExists
			}
			return fmt.Errorf("empire/postgres: create job: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("empire/postgres: commit create jobs: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM empire_jobs
		WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, empire.ErrJobNotFound
		}
		return nil, fmt.Errorf("empire/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE empire_jobs SET
			workflow_id = $2, node_name = $3, status = $4, priority = $5,
			result = $6, error = $7, started_at = $8, completed_at = $9,
			updated_at = NOW()
		WHERE id = $1`,
		j.ID.String(), j.WorkflowID.String(), j.NodeName, string(j.Status), j.Priority,
		j.Result, j.Error, j.StartedAt, j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("empire/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return empire.ErrJobNotFound
	}
	return nil
}

// ClaimJob atomically moves a pending job to running. The UPDATE
// matches on both id and pending status, so a duplicate delivery
// affects zero rows and surfaces as ErrJobNotPending.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE empire_jobs
		SET status = 'running', started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+jobColumns,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			// Zero rows means either the job is missing or it is no
			// longer pending. Re-read to tell them apart.
			if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
				return nil, getErr
			}
			return nil, empire.ErrJobNotPending
		}
		return nil, fmt.Errorf("empire/postgres: claim job: %w", err)
	}
	return j, nil
}

// NextPendingJob returns the workflow's pending job with the lowest
// priority, or (nil, nil) when none remain.
func (s *Store) NextPendingJob(ctx context.Context, workflowID id.WorkflowID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM empire_jobs
		WHERE workflow_id = $1 AND status = 'pending'
		ORDER BY priority ASC
		LIMIT 1`,
		workflowID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("empire/postgres: next pending job: %w", err)
	}
	return j, nil
}

// ListJobsByWorkflow returns all jobs for a workflow in priority order.
func (s *Store) ListJobsByWorkflow(ctx context.Context, workflowID id.WorkflowID) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM empire_jobs
		WHERE workflow_id = $1
		ORDER BY priority ASC`,
		workflowID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("empire/postgres: list jobs by workflow: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs in the given statuses.
func (s *Store) CountJobs(ctx context.Context, statuses ...job.Status) (int64, error) {
	query := `SELECT COUNT(*) FROM empire_jobs`
	args := []interface{}{}

	if len(statuses) > 0 {
		ss := make([]string, len(statuses))
		for i, st := range statuses {
			ss[i] = string(st)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, ss)
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("empire/postgres: count jobs: %w", err)
	}
	return count, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j           job.Job
		idStr       string
		workflowStr string
		statusStr   string
	)
	err := row.Scan(
		&idStr, &workflowStr, &j.NodeName, &statusStr, &j.Priority,
		&j.Result, &j.Error, &j.StartedAt, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Status = job.Status(statusStr)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("empire/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	parsedWorkflow, workflowErr := id.ParseWorkflowID(workflowStr)
	if workflowErr != nil {
		return nil, fmt.Errorf("empire/postgres: parse workflow id %q: %w", workflowStr, workflowErr)
	}
	j.WorkflowID = parsedWorkflow

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("empire/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("empire/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
