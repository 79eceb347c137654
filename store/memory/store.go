// Package memory provides a fully in-memory store.Store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ workflow.Store = (*Store)(nil)
	_ job.Store      = (*Store)(nil)
	_ health.Store   = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store. All reads
// and writes copy records, so callers can mutate returned values without
// racing with the store.
type Store struct {
	mu sync.RWMutex

	workflows map[string]*workflow.Workflow
	jobs      map[string]*job.Job
	alerts    []*health.Alert
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		workflows: make(map[string]*workflow.Workflow),
		jobs:      make(map[string]*job.Job),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Workflow Store
// ──────────────────────────────────────────────────

// CreateWorkflow persists a new workflow.
func (m *Store) CreateWorkflow(_ context.Context, w *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.ID.String()
	if _, exists := m.workflows[key]; exists {
		return empire.ErrWorkflowExists
	}
	m.workflows[key] = w.Clone()
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (m *Store) GetWorkflow(_ context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workflows[workflowID.String()]
	if !ok {
		return nil, empire.ErrWorkflowNotFound
	}
	return w.Clone(), nil
}

// UpdateWorkflow persists changes to an existing workflow.
func (m *Store) UpdateWorkflow(_ context.Context, w *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.ID.String()
	if _, ok := m.workflows[key]; !ok {
		return empire.ErrWorkflowNotFound
	}
	cp := w.Clone()
	cp.Touch()
	m.workflows[key] = cp
	return nil
}

// TransitionWorkflow atomically moves a workflow from one status to
// another. The swap succeeds only if the stored status equals from.
func (m *Store) TransitionWorkflow(_ context.Context, workflowID id.WorkflowID, from, to workflow.Status) (*workflow.Workflow, error) {
	if !workflow.CanTransition(from, to) {
		return nil, empire.ErrInvalidTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workflows[workflowID.String()]
	if !ok {
		return nil, empire.ErrWorkflowNotFound
	}
	if w.Status != from {
		return nil, empire.ErrInvalidTransition
	}

	w.Status = to
	w.Touch()
	if to.Terminal() {
		now := time.Now().UTC()
		w.CompletedAt = &now
	}
	return w.Clone(), nil
}

// ListWorkflows returns workflows matching the given options, newest first.
func (m *Store) ListWorkflows(_ context.Context, opts workflow.ListOpts) ([]*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Workflow, 0, len(m.workflows))
	for _, w := range m.workflows {
		if opts.Status != "" && w.Status != opts.Status {
			continue
		}
		result = append(result, w.Clone())
	}

	// Newest first. TypeIDs are K-sortable, so the ID breaks CreatedAt ties
	// deterministically.
	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.After(result[k].CreatedAt)
		}
		return result[i].ID.String() > result[k].ID.String()
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountWorkflows returns the number of workflows in any of the given
// statuses. No statuses means all workflows.
func (m *Store) CountWorkflows(_ context.Context, statuses ...workflow.Status) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(statuses) == 0 {
		return int64(len(m.workflows)), nil
	}

	var count int64
	for _, w := range m.workflows {
		for _, s := range statuses {
			if w.Status == s {
				count++
				break
			}
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJobs persists a batch of new jobs.
func (m *Store) CreateJobs(_ context.Context, jobs []*job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range jobs {
		if _, exists := m.jobs[j.ID.String()]; exists {
			return empire.ErrJobExists
		}
	}
	for _, j := range jobs {
		m.jobs[j.ID.String()] = j.Clone()
	}
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, empire.ErrJobNotFound
	}
	return j.Clone(), nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return empire.ErrJobNotFound
	}
	cp := j.Clone()
	cp.Touch()
	m.jobs[key] = cp
	return nil
}

// ClaimJob atomically moves a pending job to running and stamps
// StartedAt. A job in any other status returns ErrJobNotPending, which
// is how duplicate queue deliveries are detected.
func (m *Store) ClaimJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, empire.ErrJobNotFound
	}
	if j.Status != job.StatusPending {
		return nil, empire.ErrJobNotPending
	}

	now := time.Now().UTC()
	j.Status = job.StatusRunning
	j.StartedAt = &now
	j.Touch()
	return j.Clone(), nil
}

// NextPendingJob returns the pending job with the lowest priority for
// the workflow, or (nil, nil) when none remain.
func (m *Store) NextPendingJob(_ context.Context, workflowID id.WorkflowID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var next *job.Job
	for _, j := range m.jobs {
		if j.WorkflowID != workflowID || j.Status != job.StatusPending {
			continue
		}
		if next == nil || j.Priority < next.Priority {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}
	return next.Clone(), nil
}

// ListJobsByWorkflow returns all jobs for a workflow ordered by
// ascending priority.
func (m *Store) ListJobsByWorkflow(_ context.Context, workflowID id.WorkflowID) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, 8)
	for _, j := range m.jobs {
		if j.WorkflowID != workflowID {
			continue
		}
		result = append(result, j.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].Priority < result[k].Priority
	})

	return result, nil
}

// CountJobs returns the number of jobs in any of the given statuses.
// No statuses means all jobs.
func (m *Store) CountJobs(_ context.Context, statuses ...job.Status) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(statuses) == 0 {
		return int64(len(m.jobs)), nil
	}

	var count int64
	for _, j := range m.jobs {
		for _, s := range statuses {
			if j.Status == s {
				count++
				break
			}
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Health Store
// ──────────────────────────────────────────────────

// CreateAlert persists a new health alert.
func (m *Store) CreateAlert(_ context.Context, a *health.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.alerts = append(m.alerts, &cp)
	return nil
}

// ListAlerts returns the most recent alerts, newest first.
func (m *Store) ListAlerts(_ context.Context, limit int) ([]*health.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = health.DefaultListLimit
	}

	// Alerts are appended in creation order; walk backwards for newest
	// first.
	n := len(m.alerts)
	if limit > n {
		limit = n
	}
	result := make([]*health.Alert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := *m.alerts[i]
		result = append(result, &cp)
	}
	return result, nil
}
