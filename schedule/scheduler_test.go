package schedule_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/schedule"
)

// createSpy records create calls with thread safety. A non-nil err is
// returned to the scheduler after the call is recorded.
type createSpy struct {
	mu    sync.Mutex
	calls []schedule.Entry
	err   error
}

func (c *createSpy) Fn() schedule.CreateFunc {
	return func(_ context.Context, e schedule.Entry) (id.WorkflowID, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.calls = append(c.calls, e)
		if c.err != nil {
			return id.WorkflowID{}, c.err
		}
		return id.NewWorkflowID(), nil
	}
}

func (c *createSpy) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *createSpy) Calls() []schedule.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schedule.Entry, len(c.calls))
	copy(out, c.calls)
	return out
}

func waitForCalls(t *testing.T, spy *createSpy, n int) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for spy.Count() < n {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d create calls, got %d", n, spy.Count())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestScheduler_FiresOnSchedule(t *testing.T) {
	spy := &createSpy{}
	s := schedule.New(spy.Fn(), nil, schedule.WithTickInterval(5*time.Millisecond))

	err := s.Register(schedule.Entry{
		Name:         "hourly-listing",
		Spec:         "@every 10ms",
		WorkflowType: "full_listing",
		PropertyID:   "prop-42",
		Metadata:     map[string]string{"source": "schedule"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForCalls(t, spy, 1)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	calls := spy.Calls()
	if calls[0].WorkflowType != "full_listing" {
		t.Errorf("created workflow type = %q, want %q", calls[0].WorkflowType, "full_listing")
	}
	if calls[0].PropertyID != "prop-42" {
		t.Errorf("created property id = %q, want %q", calls[0].PropertyID, "prop-42")
	}
	if calls[0].Metadata["source"] != "schedule" {
		t.Errorf("created metadata = %v, want source=schedule", calls[0].Metadata)
	}
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := schedule.New((&createSpy{}).Fn(), nil)

	if err := s.Register(schedule.Entry{Name: "bad", Spec: "not a cron", WorkflowType: "test"}); err == nil {
		t.Error("expected error for invalid cron spec")
	}
	if err := s.Register(schedule.Entry{Name: "typeless", Spec: "* * * * *"}); err == nil {
		t.Error("expected error for missing workflow type")
	}
	if err := s.Register(schedule.Entry{Name: "ok", Spec: "0 3 * * *", WorkflowType: "test"}); err != nil {
		t.Errorf("valid entry rejected: %v", err)
	}
}

func TestScheduler_Entries(t *testing.T) {
	s := schedule.New((&createSpy{}).Fn(), nil)

	for _, e := range []schedule.Entry{
		{Name: "a", Spec: "@hourly", WorkflowType: "test"},
		{Name: "b", Spec: "@every 1h", WorkflowType: "full_listing"},
	} {
		if err := s.Register(e); err != nil {
			t.Fatalf("Register %q: %v", e.Name, err)
		}
	}

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() returned %d entries, want 2", len(entries))
	}
	if entries[0].Name != "a" || entries[1].Name != "b" {
		t.Errorf("entries = %v, want names a, b in order", entries)
	}
}

func TestScheduler_CreateErrorStillAdvances(t *testing.T) {
	spy := &createSpy{err: errors.New("store unavailable")}
	s := schedule.New(spy.Fn(), nil, schedule.WithTickInterval(5*time.Millisecond))

	err := s.Register(schedule.Entry{
		Name:         "flaky",
		Spec:         "@every 10ms",
		WorkflowType: "test",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The entry must keep firing even though every create fails.
	waitForCalls(t, spy, 2)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
