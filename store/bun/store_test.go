//go:build integration

package bunstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/job"
	bunstore "github.com/thelittleladyinc/empire-system/store/bun"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// setupTestStore creates a Postgres container and returns a connected Bun Store.
func setupTestStore(t *testing.T) *bunstore.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("empire_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	// Create Bun DB from pgdriver.
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	db := bun.NewDB(sqldb, pgdialect.New())

	t.Cleanup(func() {
		_ = db.Close()
	})

	store := bunstore.New(db, bunstore.WithLogger(slog.Default()))

	if migErr := store.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}

	return store
}

// seedWorkflow creates and persists a fresh workflow for job tests.
func seedWorkflow(t *testing.T, s *bunstore.Store) *workflow.Workflow {
	t.Helper()
	w := workflow.New("full_analysis", "prop-1")
	if err := s.CreateWorkflow(context.Background(), w); err != nil {
		t.Fatalf("seed workflow: %v", err)
	}
	return w
}

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestStore_MigrateIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	// Second migrate should be a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Workflow Store tests
// ──────────────────────────────────────────────────

func TestWorkflowStore_CreateAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	w := workflow.New("full_analysis", "prop-42")
	w.Metadata = map[string]string{"region": "downtown"}

	if err := s.CreateWorkflow(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Duplicate should fail.
	if dupErr := s.CreateWorkflow(ctx, w); !errors.Is(dupErr, empire.ErrWorkflowExists) {
		t.Fatalf("expected ErrWorkflowExists, got: %v", dupErr)
	}

	got, err := s.GetWorkflow(ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "full_analysis" {
		t.Fatalf("expected name full_analysis, got %s", got.Name)
	}
	if got.Status != workflow.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if got.Metadata["region"] != "downtown" {
		t.Fatalf("expected metadata round trip, got %v", got.Metadata)
	}
}

func TestWorkflowStore_GetMissing(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetWorkflow(context.Background(), id.NewWorkflowID())
	if !errors.Is(err, empire.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got: %v", err)
	}
}

func TestWorkflowStore_Transition(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	w := seedWorkflow(t, s)

	got, err := s.TransitionWorkflow(ctx, w.ID, workflow.StatusPending, workflow.StatusQueued)
	if err != nil {
		t.Fatalf("pending->queued: %v", err)
	}
	if got.Status != workflow.StatusQueued {
		t.Fatalf("expected queued, got %s", got.Status)
	}

	if _, err = s.TransitionWorkflow(ctx, w.ID, workflow.StatusQueued, workflow.StatusRunning); err != nil {
		t.Fatalf("queued->running: %v", err)
	}

	got, err = s.TransitionWorkflow(ctx, w.ID, workflow.StatusRunning, workflow.StatusCompleted)
	if err != nil {
		t.Fatalf("running->completed: %v", err)
	}
	if got.Status != workflow.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestWorkflowStore_TransitionConflict(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	w := seedWorkflow(t, s)

	if _, err := s.TransitionWorkflow(ctx, w.ID, workflow.StatusPending, workflow.StatusQueued); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	// Second swap from pending must fail: status is now queued.
	_, err := s.TransitionWorkflow(ctx, w.ID, workflow.StatusPending, workflow.StatusQueued)
	if !errors.Is(err, empire.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}

	// Unknown workflow surfaces as not found.
	_, err = s.TransitionWorkflow(ctx, id.NewWorkflowID(), workflow.StatusPending, workflow.StatusQueued)
	if !errors.Is(err, empire.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got: %v", err)
	}
}

func TestWorkflowStore_ListAndCount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		w := workflow.New(fmt.Sprintf("wf-%d", i), "prop-1")
		if err := s.CreateWorkflow(ctx, w); err != nil {
			t.Fatalf("create wf-%d: %v", i, err)
		}
	}

	all, err := s.ListWorkflows(ctx, workflow.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}

	pending, err := s.ListWorkflows(ctx, workflow.ListOpts{Status: workflow.StatusPending})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}

	page, err := s.ListWorkflows(ctx, workflow.ListOpts{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected 1 on last page, got %d", len(page))
	}

	count, err := s.CountWorkflows(ctx, workflow.ActiveStatuses...)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

// ──────────────────────────────────────────────────
// Job Store tests
// ──────────────────────────────────────────────────

func TestJobStore_CreateBatchAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	w := seedWorkflow(t, s)
	jobs := []*job.Job{
		job.New(w.ID, "collect_data", 1),
		job.New(w.ID, "analyze_market", 2),
		job.New(w.ID, "generate_report", 3),
	}

	if err := s.CreateJobs(ctx, jobs); err != nil {
		t.Fatalf("create jobs: %v", err)
	}

	// Re-inserting the same batch should fail.
	if dupErr := s.CreateJobs(ctx, jobs); !errors.Is(dupErr, empire.ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got: %v", dupErr)
	}

	got, err := s.GetJob(ctx, jobs[1].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.NodeName != "analyze_market" {
		t.Fatalf("expected analyze_market, got %s", got.NodeName)
	}
	if got.Priority != 2 {
		t.Fatalf("expected priority 2, got %d", got.Priority)
	}
	if got.WorkflowID.String() != w.ID.String() {
		t.Fatalf("expected workflow %s, got %s", w.ID, got.WorkflowID)
	}
}

func TestJobStore_Claim(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	w := seedWorkflow(t, s)
	j := job.New(w.ID, "collect_data", 1)
	if err := s.CreateJobs(ctx, []*job.Job{j}); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := s.ClaimJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != job.StatusRunning {
		t.Fatalf("expected running, got %s", claimed.Status)
	}
	if claimed.StartedAt == nil {
		t.Fatal("expected started_at to be set")
	}

	// A duplicate delivery must not claim again.
	_, err = s.ClaimJob(ctx, j.ID)
	if !errors.Is(err, empire.ErrJobNotPending) {
		t.Fatalf("expected ErrJobNotPending, got: %v", err)
	}

	_, err = s.ClaimJob(ctx, id.NewJobID())
	if !errors.Is(err, empire.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got: %v", err)
	}
}

func TestJobStore_NextPending(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	w := seedWorkflow(t, s)
	first := job.New(w.ID, "collect_data", 1)
	second := job.New(w.ID, "analyze_market", 2)
	if err := s.CreateJobs(ctx, []*job.Job{second, first}); err != nil {
		t.Fatalf("create: %v", err)
	}

	next, err := s.NextPendingJob(ctx, w.ID)
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if next.ID.String() != first.ID.String() {
		t.Fatalf("expected lowest priority job first, got %s", next.NodeName)
	}

	// Completing the first exposes the second.
	first.Status = job.StatusCompleted
	if err = s.UpdateJob(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}

	next, err = s.NextPendingJob(ctx, w.ID)
	if err != nil {
		t.Fatalf("next pending after complete: %v", err)
	}
	if next.ID.String() != second.ID.String() {
		t.Fatalf("expected second job, got %s", next.NodeName)
	}

	// Exhausted sequence returns nil without error.
	second.Status = job.StatusCompleted
	if err = s.UpdateJob(ctx, second); err != nil {
		t.Fatalf("update second: %v", err)
	}
	next, err = s.NextPendingJob(ctx, w.ID)
	if err != nil {
		t.Fatalf("next pending exhausted: %v", err)
	}
	if next != nil {
		t.Fatalf("expected nil, got %v", next)
	}
}

func TestJobStore_ListByWorkflowAndCount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	w := seedWorkflow(t, s)
	jobs := []*job.Job{
		job.New(w.ID, "generate_report", 3),
		job.New(w.ID, "collect_data", 1),
		job.New(w.ID, "analyze_market", 2),
	}
	if err := s.CreateJobs(ctx, jobs); err != nil {
		t.Fatalf("create: %v", err)
	}

	listed, err := s.ListJobsByWorkflow(ctx, w.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3, got %d", len(listed))
	}
	for i, want := range []string{"collect_data", "analyze_market", "generate_report"} {
		if listed[i].NodeName != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, listed[i].NodeName)
		}
	}

	count, err := s.CountJobs(ctx, job.StatusPending)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 pending, got %d", count)
	}
}

// ──────────────────────────────────────────────────
// Health Store tests
// ──────────────────────────────────────────────────

func TestAlertStore_CreateAndList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a := health.NewAlert(health.KindMemoryPressure, fmt.Sprintf("memory at %d%%", 91+i), float64(91+i)/100)
		if err := s.CreateAlert(ctx, a); err != nil {
			t.Fatalf("create alert %d: %v", i, err)
		}
	}

	alerts, err := s.ListAlerts(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2, got %d", len(alerts))
	}
	// Newest first.
	if alerts[0].Value != 0.93 {
		t.Fatalf("expected newest alert first, got value %v", alerts[0].Value)
	}
}
