// Package schedule creates workflows on a recurring cron schedule.
//
// Entries pair a cron expression with a workflow type; on each due tick
// the scheduler asks the engine to create (and thereby queue) a fresh
// workflow. Entries live in process — they come from configuration or
// Register calls, not from the store.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/thelittleladyinc/empire-system/id"
)

// CreateFunc is the callback the scheduler uses to create workflows.
// This breaks the import cycle: the engine provides the implementation.
type CreateFunc func(ctx context.Context, e Entry) (id.WorkflowID, error)

// Entry is one recurring workflow definition.
type Entry struct {
	// Name identifies the entry in logs and configuration.
	Name string `json:"name" mapstructure:"name"`

	// Spec is the cron expression: standard 5-field syntax or a
	// descriptor like "@hourly" or "@every 30m".
	Spec string `json:"spec" mapstructure:"spec"`

	// WorkflowType is the plan label to create workflows with.
	WorkflowType string `json:"workflow_type" mapstructure:"workflow_type"`

	// PropertyID is the property reference passed to each created
	// workflow. Optional.
	PropertyID string `json:"property_id,omitempty" mapstructure:"property_id"`

	// Metadata is attached to each created workflow. Optional.
	Metadata map[string]string `json:"metadata,omitempty" mapstructure:"metadata"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSpec parses a cron expression and returns the schedule.
func ParseSpec(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// scheduled pairs an entry with its parsed schedule and next fire time.
type scheduled struct {
	entry Entry
	sched cronlib.Schedule
	next  time.Time
}

// Scheduler fires registered entries on a tick loop.
type Scheduler struct {
	create CreateFunc
	logger *slog.Logger

	tickInterval time.Duration

	mu      sync.Mutex
	entries []*scheduled

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Scheduler. The create callback must not be nil.
func New(create CreateFunc, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		create:       create,
		logger:       logger,
		tickInterval: 1 * time.Second,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates the entry's cron expression, computes its first
// fire time, and adds it to the schedule. Safe to call while running.
func (s *Scheduler) Register(e Entry) error {
	if e.WorkflowType == "" {
		return fmt.Errorf("schedule: entry %q has no workflow type", e.Name)
	}
	sched, err := ParseSpec(e.Spec)
	if err != nil {
		return fmt.Errorf("schedule: invalid spec %q for entry %q: %w", e.Spec, e.Name, err)
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.entries = append(s.entries, &scheduled{
		entry: e,
		sched: sched,
		next:  sched.Next(now),
	})
	s.mu.Unlock()

	s.logger.Info("schedule entry registered",
		slog.String("entry", e.Name),
		slog.String("spec", e.Spec),
		slog.String("workflow_type", e.WorkflowType),
	)
	return nil
}

// Entries returns a snapshot of the registered entries.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, se := range s.entries {
		out = append(out, se.entry)
	}
	return out
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// tickLoop fires on each tick interval and processes due entries.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick fires every entry whose next fire time has passed and advances
// its schedule. A failed create is logged; the entry still advances, so
// one bad tick never wedges the schedule.
func (s *Scheduler) tick() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.mu.Lock()
	var due []*scheduled
	for _, se := range s.entries {
		if se.next.After(now) {
			continue
		}
		due = append(due, se)
		se.next = se.sched.Next(now)
	}
	s.mu.Unlock()

	for _, se := range due {
		s.fire(ctx, se.entry)
	}
}

func (s *Scheduler) fire(ctx context.Context, e Entry) {
	workflowID, err := s.create(ctx, e)
	if err != nil {
		s.logger.Error("scheduled workflow create error",
			slog.String("entry", e.Name),
			slog.String("workflow_type", e.WorkflowType),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("scheduled workflow created",
		slog.String("entry", e.Name),
		slog.String("workflow_type", e.WorkflowType),
		slog.String("workflow_id", workflowID.String()),
	)
}
