package health_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/store/memory"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// stubQueue fakes the queue transport ping.
type stubQueue struct {
	err error
}

func (q *stubQueue) Ping(context.Context) error { return q.err }

// stubStore wraps the memory store with an injectable ping failure.
type stubStore struct {
	*memory.Store
	pingErr error
}

func (s *stubStore) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.Store.Ping(ctx)
}

// alertSpy records alerts delivered through the callback.
type alertSpy struct {
	mu   sync.Mutex
	seen []*health.Alert
}

func (a *alertSpy) Fn() health.AlertFunc {
	return func(_ context.Context, alert *health.Alert) {
		a.mu.Lock()
		a.seen = append(a.seen, alert)
		a.mu.Unlock()
	}
}

func (a *alertSpy) Kinds() []health.Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]health.Kind, len(a.seen))
	for i, alert := range a.seen {
		out[i] = alert.Kind
	}
	return out
}

func flatMemSampler(ratio float64) health.MemSampler {
	return func(context.Context) (float64, error) { return ratio, nil }
}

func newTestMonitor(t *testing.T, store *stubStore, queue *stubQueue, opts ...health.MonitorOption) (*health.Monitor, *alertSpy) {
	t.Helper()

	spy := &alertSpy{}
	base := []health.MonitorOption{
		health.WithMemSampler(flatMemSampler(0.42)),
		health.WithAlertFunc(spy.Fn()),
	}
	m := health.NewMonitor(store, queue, nil, append(base, opts...)...)
	return m, spy
}

func TestMonitor_HealthyReport(t *testing.T) {
	t.Parallel()

	m, spy := newTestMonitor(t, &stubStore{Store: memory.New()}, &stubQueue{})

	report := m.Sample(context.Background())
	if !report.Healthy {
		t.Fatal("expected healthy report")
	}
	if !report.StoreUp || !report.QueueUp {
		t.Fatalf("expected store and queue up, got store=%v queue=%v", report.StoreUp, report.QueueUp)
	}
	if report.MemoryRatio != 0.42 {
		t.Fatalf("MemoryRatio = %v, want 0.42", report.MemoryRatio)
	}
	if report.SampledAt.IsZero() {
		t.Fatal("expected SampledAt to be set")
	}
	if len(spy.Kinds()) != 0 {
		t.Fatalf("expected no alerts, got %v", spy.Kinds())
	}
}

func TestMonitor_CountsWorkload(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	// Two active workflows, one terminal.
	running := workflow.New("full_listing", "prop-1")
	running.Status = workflow.StatusRunning
	queued := workflow.New("test", "prop-2")
	queued.Status = workflow.StatusQueued
	done := workflow.New("full_listing", "prop-3")
	done.Status = workflow.StatusCompleted
	for _, w := range []*workflow.Workflow{running, queued, done} {
		if err := s.CreateWorkflow(ctx, w); err != nil {
			t.Fatalf("CreateWorkflow: %v", err)
		}
	}

	// Three pending jobs, one completed.
	jobs := []*job.Job{
		job.New(running.ID, "collect_data", 1),
		job.New(running.ID, "generate_description", 2),
		job.New(queued.ID, "test_node", 1),
		job.New(done.ID, "collect_data", 1),
	}
	jobs[3].Status = job.StatusCompleted
	if err := s.CreateJobs(ctx, jobs); err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}

	m, _ := newTestMonitor(t, &stubStore{Store: s}, &stubQueue{})

	report := m.Sample(ctx)
	if report.ActiveWorkflows != 2 {
		t.Fatalf("ActiveWorkflows = %d, want 2", report.ActiveWorkflows)
	}
	if report.PendingJobs != 3 {
		t.Fatalf("PendingJobs = %d, want 3", report.PendingJobs)
	}
}

func TestMonitor_StoreDown(t *testing.T) {
	t.Parallel()

	store := &stubStore{Store: memory.New(), pingErr: errors.New("connection refused")}
	m, spy := newTestMonitor(t, store, &stubQueue{})

	report := m.Sample(context.Background())
	if report.Healthy {
		t.Fatal("expected unhealthy report")
	}
	if report.StoreUp {
		t.Fatal("expected store down")
	}

	kinds := spy.Kinds()
	if len(kinds) != 1 || kinds[0] != health.KindStoreUnreachable {
		t.Fatalf("expected one store_unreachable alert, got %v", kinds)
	}

	// The alert is persisted through the store as well.
	alerts, err := store.ListAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Kind != health.KindStoreUnreachable {
		t.Fatalf("expected persisted store_unreachable alert, got %v", alerts)
	}
}

func TestMonitor_QueueDown(t *testing.T) {
	t.Parallel()

	store := &stubStore{Store: memory.New()}
	m, spy := newTestMonitor(t, store, &stubQueue{err: errors.New("broken pipe")})

	report := m.Sample(context.Background())
	if report.Healthy {
		t.Fatal("expected unhealthy report")
	}
	if !report.StoreUp {
		t.Fatal("expected store up")
	}
	if report.QueueUp {
		t.Fatal("expected queue down")
	}

	kinds := spy.Kinds()
	if len(kinds) != 1 || kinds[0] != health.KindQueueUnreachable {
		t.Fatalf("expected one queue_unreachable alert, got %v", kinds)
	}
}

func TestMonitor_MemoryPressure(t *testing.T) {
	t.Parallel()

	store := &stubStore{Store: memory.New()}
	m, spy := newTestMonitor(t, store, &stubQueue{},
		health.WithMemSampler(flatMemSampler(0.95)),
	)

	report := m.Sample(context.Background())
	if report.Healthy {
		t.Fatal("expected unhealthy report")
	}
	if report.MemoryRatio != 0.95 {
		t.Fatalf("MemoryRatio = %v, want 0.95", report.MemoryRatio)
	}

	kinds := spy.Kinds()
	if len(kinds) != 1 || kinds[0] != health.KindMemoryPressure {
		t.Fatalf("expected one memory_pressure alert, got %v", kinds)
	}

	alerts, err := store.ListAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Value != 0.95 {
		t.Fatalf("expected persisted alert with value 0.95, got %v", alerts)
	}
}

func TestMonitor_MemoryAtThresholdIsHealthy(t *testing.T) {
	t.Parallel()

	m, spy := newTestMonitor(t, &stubStore{Store: memory.New()}, &stubQueue{},
		health.WithMemSampler(flatMemSampler(0.90)),
	)

	report := m.Sample(context.Background())
	if !report.Healthy {
		t.Fatal("ratio equal to the threshold should not alert")
	}
	if len(spy.Kinds()) != 0 {
		t.Fatalf("expected no alerts, got %v", spy.Kinds())
	}
}

func TestMonitor_LastReport(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, &stubStore{Store: memory.New()}, &stubQueue{})

	if m.LastReport() != nil {
		t.Fatal("expected nil before first sample")
	}

	want := m.Sample(context.Background())
	got := m.LastReport()
	if got == nil {
		t.Fatal("expected report after sample")
	}
	if got.SampledAt != want.SampledAt {
		t.Fatalf("LastReport SampledAt = %v, want %v", got.SampledAt, want.SampledAt)
	}
}

func TestMonitor_StartStopLoop(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, &stubStore{Store: memory.New()}, &stubQueue{},
		health.WithInterval(20*time.Millisecond),
	)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for m.LastReport() == nil {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first sample")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
