package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect/pgdialect"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// CreateWorkflow persists a new workflow.
func (s *Store) CreateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	m := toWorkflowModel(w)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return empire.ErrWorkflowExists
		}
		return fmt.Errorf("empire/bun: create workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	m := new(workflowModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", workflowID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, empire.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("empire/bun: get workflow: %w", err)
	}
	return fromWorkflowModel(m)
}

// UpdateWorkflow persists changes to an existing workflow.
func (s *Store) UpdateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	m := toWorkflowModel(w)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("empire/bun: update workflow: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
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

	q := s.db.NewUpdate().
		TableExpr("empire_workflows").
		Set("status = ?", string(to)).
		Set("updated_at = NOW()").
		Where("id = ?", workflowID.String()).
		Where("status = ?", string(from))
	if to.Terminal() {
		q = q.Set("completed_at = NOW()")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("empire/bun: transition workflow: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		// Zero rows means either the workflow is missing or its status
		// no longer matches. Re-read to tell them apart.
		if _, getErr := s.GetWorkflow(ctx, workflowID); getErr != nil {
			return nil, getErr
		}
		return nil, empire.ErrInvalidTransition
	}

	return s.GetWorkflow(ctx, workflowID)
}

// ListWorkflows returns workflows matching the given options, newest first.
func (s *Store) ListWorkflows(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Workflow, error) {
	var models []workflowModel
	q := s.db.NewSelect().Model(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	q = q.Order("created_at DESC", "id DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("empire/bun: list workflows: %w", err)
	}

	workflows := make([]*workflow.Workflow, 0, len(models))
	for i := range models {
		w, convErr := fromWorkflowModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("empire/bun: list workflows convert: %w", convErr)
		}
		workflows = append(workflows, w)
	}
	return workflows, nil
}

// CountWorkflows returns the number of workflows in the given statuses.
func (s *Store) CountWorkflows(ctx context.Context, statuses ...workflow.Status) (int64, error) {
	q := s.db.NewSelect().TableExpr("empire_workflows")

	if len(statuses) > 0 {
		ss := make([]string, len(statuses))
		for i, st := range statuses {
			ss[i] = string(st)
		}
		q = q.Where("status = ANY(?)", pgdialect.Array(ss))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("empire/bun: count workflows: %w", err)
	}
	return int64(count), nil
}
