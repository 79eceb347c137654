package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/workflow"
)

const workflowColumns = `id, name, status, property_id, metadata, completed_at, created_at, updated_at`

// CreateWorkflow persists a new workflow.
func (s *Store) CreateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	metadata := w.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO empire_workflows (
			id, name, status, property_id, metadata,
			completed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8
		)`,
		w.ID.String(), w.Name, string(w.Status), w.PropertyID, metadata,
		w.CompletedAt, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		// Check for unique violation (duplicate ID).
		if isDuplicateKey(err) {
			return empire.ErrWorkflowExists
		}
		return fmt.Errorf("empire/postgres: create workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+workflowColumns+`
		FROM empire_workflows
		WHERE id = $1`,
		workflowID.String(),
	)

	w, err := scanWorkflow(row)
	if err != nil {
		if isNoRows(err) {
			return nil, empire.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("empire/postgres: get workflow: %w", err)
	}
	return w, nil
}

// UpdateWorkflow persists changes to an existing workflow.
func (s *Store) UpdateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	metadata := w.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE empire_workflows SET
			name = $2, status = $3, property_id = $4, metadata = $5,
			completed_at = $6, updated_at = NOW()
		WHERE id = $1`,
		w.ID.String(), w.Name, string(w.Status), w.PropertyID, metadata,
		w.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("empire/postgres: update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return empire.ErrWorkflowNotFound
	}
	return nil
}

// TransitionWorkflow atomically moves a workflow from one status to
// another. The UPDATE matches on both id and the expected status, so a
// concurrent transition makes the swap affect zero rows.
func (s *Store) TransitionWorkflow(ctx context.Context, workflowID id.WorkflowID, from, to workflow.Status) (*workflow.Workflow, error) {
	if !workflow.CanTransition(from, to) {
		return nil, empire.ErrInvalidTransition
	}

	query := `
		UPDATE empire_workflows
		SET status = $3, updated_at = NOW()`
	if to.Terminal() {
		query = `
		UPDATE empire_workflows
		SET status = $3, completed_at = NOW(), updated_at = NOW()`
	}
	query += `
		WHERE id = $1 AND status = $2
		RETURNING ` + workflowColumns

	row := s.pool.QueryRow(ctx, query, workflowID.String(), string(from), string(to))

	w, err := scanWorkflow(row)
	if err != nil {
		if isNoRows(err) {
			// Zero rows means either the workflow is missing or its
			// status no longer matches. Re-read to tell them apart.
			if _, getErr := s.GetWorkflow(ctx, workflowID); getErr != nil {
				return nil, getErr
			}
			return nil, empire.ErrInvalidTransition
		}
		return nil, fmt.Errorf("empire/postgres: transition workflow: %w", err)
	}
	return w, nil
}

// ListWorkflows returns workflows matching the given options, newest first.
func (s *Store) ListWorkflows(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM empire_workflows`
	args := []interface{}{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("empire/postgres: list workflows: %w", err)
	}
	defer rows.Close()

	return collectWorkflows(rows)
}

// CountWorkflows returns the number of workflows in the given statuses.
func (s *Store) CountWorkflows(ctx context.Context, statuses ...workflow.Status) (int64, error) {
	query := `SELECT COUNT(*) FROM empire_workflows`
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
		return 0, fmt.Errorf("empire/postgres: count workflows: %w", err)
	}
	return count, nil
}

// scanWorkflow scans a single workflow row.
func scanWorkflow(row pgx.Row) (*workflow.Workflow, error) {
	var (
		w         workflow.Workflow
		idStr     string
		statusStr string
	)
	err := row.Scan(
		&idStr, &w.Name, &statusStr, &w.PropertyID, &w.Metadata,
		&w.CompletedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Status = workflow.Status(statusStr)

	parsedID, parseErr := id.ParseWorkflowID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("empire/postgres: parse workflow id %q: %w", idStr, parseErr)
	}
	w.ID = parsedID

	return &w, nil
}

// collectWorkflows collects all workflows from query rows.
func collectWorkflows(rows pgx.Rows) ([]*workflow.Workflow, error) {
	var workflows []*workflow.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("empire/postgres: scan workflow row: %w", err)
		}
		workflows = append(workflows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("empire/postgres: iterate workflow rows: %w", err)
	}
	return workflows, nil
}
