package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Workflow Store tests
// ──────────────────────────────────────────────────

func TestWorkflowCreateAndGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	w := workflow.New("full_listing", "prop-1")

	tests := []struct {
		name    string
		fn      func() error
		wantErr error
	}{
		{
			name:    "create new workflow",
			fn:      func() error { return s.CreateWorkflow(ctx, w) },
			wantErr: nil,
		},
		{
			name:    "create duplicate workflow",
			fn:      func() error { return s.CreateWorkflow(ctx, w) },
			wantErr: empire.ErrWorkflowExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}

	got, err := s.GetWorkflow(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got.Name != "full_listing" || got.PropertyID != "prop-1" {
		t.Fatalf("got %q/%q, want full_listing/prop-1", got.Name, got.PropertyID)
	}
	if got.Status != workflow.StatusPending {
		t.Fatalf("new workflow status = %q, want pending", got.Status)
	}

	_, err = s.GetWorkflow(ctx, id.NewWorkflowID())
	if !errors.Is(err, empire.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestWorkflowCopySemantics(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	w := workflow.New("test", "prop-1")
	w.Metadata = map[string]string{"region": "us-east"}
	if err := s.CreateWorkflow(ctx, w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	// Mutating the original after insert must not affect the store.
	w.Name = "mutated"
	w.Metadata["region"] = "mars"

	got, err := s.GetWorkflow(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got.Name != "test" {
		t.Errorf("stored name = %q, want %q", got.Name, "test")
	}
	if got.Metadata["region"] != "us-east" {
		t.Errorf("stored metadata = %q, want %q", got.Metadata["region"], "us-east")
	}

	// Mutating a read result must not affect the store either.
	got.Status = workflow.StatusFailed
	again, _ := s.GetWorkflow(ctx, w.ID)
	if again.Status != workflow.StatusPending {
		t.Errorf("store status mutated through read copy: %q", again.Status)
	}
}

func TestWorkflowUpdate(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	w := workflow.New("test", "")
	if err := s.CreateWorkflow(ctx, w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	w.Metadata = map[string]string{"note": "updated"}
	if err := s.UpdateWorkflow(ctx, w); err != nil {
		t.Fatalf("UpdateWorkflow: %v", err)
	}

	got, _ := s.GetWorkflow(ctx, w.ID)
	if got.Metadata["note"] != "updated" {
		t.Errorf("metadata not persisted: %v", got.Metadata)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Errorf("UpdatedAt went backwards: %v < %v", got.UpdatedAt, got.CreatedAt)
	}

	if err := s.UpdateWorkflow(ctx, workflow.New("ghost", "")); !errors.Is(err, empire.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestWorkflowTransition(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	w := workflow.New("test", "")
	if err := s.CreateWorkflow(ctx, w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	// Walk the full happy chain.
	steps := []struct{ from, to workflow.Status }{
		{workflow.StatusPending, workflow.StatusQueued},
		{workflow.StatusQueued, workflow.StatusRunning},
		{workflow.StatusRunning, workflow.StatusCompleted},
	}
	for _, step := range steps {
		got, err := s.TransitionWorkflow(ctx, w.ID, step.from, step.to)
		if err != nil {
			t.Fatalf("transition %s→%s: %v", step.from, step.to, err)
		}
		if got.Status != step.to {
			t.Fatalf("status = %q, want %q", got.Status, step.to)
		}
	}

	got, _ := s.GetWorkflow(ctx, w.ID)
	if got.CompletedAt == nil {
		t.Fatal("CompletedAt not set on terminal transition")
	}
}

func TestWorkflowTransitionConflicts(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	w := workflow.New("test", "")
	if err := s.CreateWorkflow(ctx, w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	if _, err := s.TransitionWorkflow(ctx, w.ID, workflow.StatusPending, workflow.StatusQueued); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	tests := []struct {
		name     string
		from, to workflow.Status
		wantErr  error
	}{
		{"stale from", workflow.StatusPending, workflow.StatusQueued, empire.ErrInvalidTransition},
		{"illegal pair", workflow.StatusQueued, workflow.StatusPending, empire.ErrInvalidTransition},
		{"skip a step", workflow.StatusPending, workflow.StatusRunning, empire.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.TransitionWorkflow(ctx, w.ID, tt.from, tt.to); !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Unknown workflow.
	if _, err := s.TransitionWorkflow(ctx, id.NewWorkflowID(), workflow.StatusPending, workflow.StatusQueued); !errors.Is(err, empire.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestWorkflowList(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	for i := range 5 {
		w := workflow.New(fmt.Sprintf("wf-%d", i), "")
		w.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
		if err := s.CreateWorkflow(ctx, w); err != nil {
			t.Fatalf("CreateWorkflow: %v", err)
		}
		if i >= 3 {
			if _, err := s.TransitionWorkflow(ctx, w.ID, workflow.StatusPending, workflow.StatusQueued); err != nil {
				t.Fatalf("transition: %v", err)
			}
		}
	}

	all, err := s.ListWorkflows(ctx, workflow.ListOpts{})
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 workflows, got %d", len(all))
	}
	// Newest first.
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("list not newest-first at index %d", i)
		}
	}

	queued, err := s.ListWorkflows(ctx, workflow.ListOpts{Status: workflow.StatusQueued})
	if err != nil {
		t.Fatalf("ListWorkflows(queued): %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("expected 2 queued workflows, got %d", len(queued))
	}

	page, err := s.ListWorkflows(ctx, workflow.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListWorkflows(page): %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 workflows in page, got %d", len(page))
	}

	empty, err := s.ListWorkflows(ctx, workflow.ListOpts{Offset: 99})
	if err != nil {
		t.Fatalf("ListWorkflows(offset past end): %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty))
	}
}

func TestWorkflowCount(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	for i := range 4 {
		w := workflow.New("test", "")
		if err := s.CreateWorkflow(ctx, w); err != nil {
			t.Fatalf("CreateWorkflow: %v", err)
		}
		if i == 0 {
			if _, err := s.TransitionWorkflow(ctx, w.ID, workflow.StatusPending, workflow.StatusQueued); err != nil {
				t.Fatalf("transition: %v", err)
			}
		}
	}

	total, err := s.CountWorkflows(ctx)
	if err != nil {
		t.Fatalf("CountWorkflows: %v", err)
	}
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}

	active, err := s.CountWorkflows(ctx, workflow.ActiveStatuses...)
	if err != nil {
		t.Fatalf("CountWorkflows(active): %v", err)
	}
	if active != 4 {
		t.Fatalf("active = %d, want 4", active)
	}

	queued, err := s.CountWorkflows(ctx, workflow.StatusQueued)
	if err != nil {
		t.Fatalf("CountWorkflows(queued): %v", err)
	}
	if queued != 1 {
		t.Fatalf("queued = %d, want 1", queued)
	}
}

// ──────────────────────────────────────────────────
// Job Store tests
// ──────────────────────────────────────────────────

func seedJobs(t *testing.T, s *Store, workflowID id.WorkflowID, nodes ...string) []*job.Job {
	t.Helper()
	jobs := make([]*job.Job, len(nodes))
	for i, n := range nodes {
		jobs[i] = job.New(workflowID, n, i+1)
	}
	if err := s.CreateJobs(context.Background(), jobs); err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}
	return jobs
}

func TestJobCreateAndGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	wfID := id.NewWorkflowID()
	jobs := seedJobs(t, s, wfID, "collect_data", "publish_listing")

	got, err := s.GetJob(ctx, jobs[0].ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.NodeName != "collect_data" || got.Priority != 1 {
		t.Fatalf("got %q/%d, want collect_data/1", got.NodeName, got.Priority)
	}

	// Duplicate batch fails and inserts nothing new.
	if err := s.CreateJobs(ctx, jobs); !errors.Is(err, empire.ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}

	_, err = s.GetJob(ctx, id.NewJobID())
	if !errors.Is(err, empire.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobUpdate(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	jobs := seedJobs(t, s, id.NewWorkflowID(), "test_node")
	j := jobs[0]

	j.Status = job.StatusCompleted
	j.Result = []byte(`{"ok":true}`)
	if err := s.UpdateJob(ctx, j); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Status != job.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if string(got.Result) != `{"ok":true}` {
		t.Errorf("result = %q", got.Result)
	}

	ghost := job.New(id.NewWorkflowID(), "ghost", 1)
	if err := s.UpdateJob(ctx, ghost); !errors.Is(err, empire.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobClaim(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	jobs := seedJobs(t, s, id.NewWorkflowID(), "test_node")
	j := jobs[0]

	claimed, err := s.ClaimJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if claimed.Status != job.StatusRunning {
		t.Fatalf("status = %q, want running", claimed.Status)
	}
	if claimed.StartedAt == nil {
		t.Fatal("StartedAt not set")
	}

	// A second claim is the duplicate-delivery signal.
	if _, err := s.ClaimJob(ctx, j.ID); !errors.Is(err, empire.ErrJobNotPending) {
		t.Fatalf("expected ErrJobNotPending, got %v", err)
	}

	if _, err := s.ClaimJob(ctx, id.NewJobID()); !errors.Is(err, empire.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestNextPendingJob(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	wfID := id.NewWorkflowID()
	jobs := seedJobs(t, s, wfID, "collect_data", "generate_description", "publish_listing")

	// Lowest priority first.
	next, err := s.NextPendingJob(ctx, wfID)
	if err != nil {
		t.Fatalf("NextPendingJob: %v", err)
	}
	if next == nil || next.ID != jobs[0].ID {
		t.Fatalf("next = %v, want first job", next)
	}

	// Completing the first exposes the second.
	if _, err := s.ClaimJob(ctx, jobs[0].ID); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	jobs[0].Status = job.StatusCompleted
	if err := s.UpdateJob(ctx, jobs[0]); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	next, err = s.NextPendingJob(ctx, wfID)
	if err != nil {
		t.Fatalf("NextPendingJob: %v", err)
	}
	if next == nil || next.NodeName != "generate_description" {
		t.Fatalf("next = %v, want generate_description", next)
	}

	// Exhausted workflow returns (nil, nil).
	other := id.NewWorkflowID()
	next, err = s.NextPendingJob(ctx, other)
	if err != nil {
		t.Fatalf("NextPendingJob(empty): %v", err)
	}
	if next != nil {
		t.Fatalf("expected nil job for empty workflow, got %v", next)
	}
}

func TestListJobsByWorkflow(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	wfID := id.NewWorkflowID()
	seedJobs(t, s, wfID, "a", "b", "c")
	seedJobs(t, s, id.NewWorkflowID(), "unrelated")

	got, err := s.ListJobsByWorkflow(ctx, wfID)
	if err != nil {
		t.Fatalf("ListJobsByWorkflow: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(got))
	}
	for i, j := range got {
		if j.Priority != i+1 {
			t.Errorf("jobs[%d].Priority = %d, want %d", i, j.Priority, i+1)
		}
	}
}

func TestJobCount(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	wfID := id.NewWorkflowID()
	jobs := seedJobs(t, s, wfID, "a", "b", "c")
	if _, err := s.ClaimJob(ctx, jobs[0].ID); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}

	total, err := s.CountJobs(ctx)
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}

	pending, err := s.CountJobs(ctx, job.StatusPending)
	if err != nil {
		t.Fatalf("CountJobs(pending): %v", err)
	}
	if pending != 2 {
		t.Fatalf("pending = %d, want 2", pending)
	}

	running, err := s.CountJobs(ctx, job.StatusRunning)
	if err != nil {
		t.Fatalf("CountJobs(running): %v", err)
	}
	if running != 1 {
		t.Fatalf("running = %d, want 1", running)
	}
}

// ──────────────────────────────────────────────────
// Health Store tests
// ──────────────────────────────────────────────────

func TestAlerts(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	for i := range 5 {
		a := health.NewAlert(health.KindMemoryPressure, fmt.Sprintf("alert-%d", i), float64(i)/10)
		if err := s.CreateAlert(ctx, a); err != nil {
			t.Fatalf("CreateAlert: %v", err)
		}
	}

	got, err := s.ListAlerts(ctx, 3)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(got))
	}
	// Newest first.
	if got[0].Message != "alert-4" || got[2].Message != "alert-2" {
		t.Fatalf("unexpected order: %s .. %s", got[0].Message, got[2].Message)
	}

	all, err := s.ListAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("ListAlerts(default): %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 alerts with default limit, got %d", len(all))
	}
}
