package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/hook"
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// Compile-time interface checks.
var (
	_ hook.Hook                  = (*Broker)(nil)
	_ hook.WorkflowCreatedHook   = (*Broker)(nil)
	_ hook.WorkflowQueuedHook    = (*Broker)(nil)
	_ hook.WorkflowStartedHook   = (*Broker)(nil)
	_ hook.WorkflowCompletedHook = (*Broker)(nil)
	_ hook.WorkflowFailedHook    = (*Broker)(nil)
	_ hook.JobDispatchedHook     = (*Broker)(nil)
	_ hook.JobStartedHook        = (*Broker)(nil)
	_ hook.JobCompletedHook      = (*Broker)(nil)
	_ hook.JobFailedHook         = (*Broker)(nil)
	_ hook.AlertRaisedHook       = (*Broker)(nil)
	_ hook.ShutdownHook          = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker is the real-time stream broker. It implements the hook
// interfaces to receive lifecycle events and fans them out to
// subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64

	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:     NewTopicRegistry(),
		logger:     logger,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Hook.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	var dropped int64
	b.subscribers.Range(func(_, value any) bool {
		count++
		dropped += value.(*Subscriber).Dropped() //nolint:errcheck // sync.Map always stores *Subscriber
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    dropped,
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish broadcasts an event to all matching topics.
func (b *Broker) publish(evt Event) {
	delivered := b.topics.Broadcast(resolveTopics(evt), evt)
	b.totalPublished.Add(int64(delivered))
}

// ── Workflow lifecycle hooks ────────────────────────

func (b *Broker) OnWorkflowCreated(_ context.Context, w *workflow.Workflow) error {
	b.publish(Event{
		Type:       EventWorkflowCreated,
		WorkflowID: w.ID.String(),
		Status:     string(w.Status),
		At:         time.Now().UTC(),
	})
	return nil
}

func (b *Broker) OnWorkflowQueued(_ context.Context, w *workflow.Workflow) error {
	b.publish(Event{
		Type:       EventWorkflowQueued,
		WorkflowID: w.ID.String(),
		Status:     string(w.Status),
		At:         time.Now().UTC(),
	})
	return nil
}

func (b *Broker) OnWorkflowStarted(_ context.Context, w *workflow.Workflow) error {
	b.publish(Event{
		Type:       EventWorkflowStarted,
		WorkflowID: w.ID.String(),
		Status:     string(w.Status),
		At:         time.Now().UTC(),
	})
	return nil
}

func (b *Broker) OnWorkflowCompleted(_ context.Context, w *workflow.Workflow, _ time.Duration) error {
	b.publish(Event{
		Type:       EventWorkflowCompleted,
		WorkflowID: w.ID.String(),
		Status:     string(w.Status),
		At:         time.Now().UTC(),
	})
	return nil
}

func (b *Broker) OnWorkflowFailed(_ context.Context, w *workflow.Workflow, wErr error) error {
	b.publish(Event{
		Type:       EventWorkflowFailed,
		WorkflowID: w.ID.String(),
		Status:     string(w.Status),
		Error:      wErr.Error(),
		At:         time.Now().UTC(),
	})
	return nil
}

// ── Job lifecycle hooks ─────────────────────────────

func (b *Broker) OnJobDispatched(_ context.Context, j *job.Job) error {
	b.publish(Event{
		Type:       EventJobDispatched,
		WorkflowID: j.WorkflowID.String(),
		JobID:      j.ID.String(),
		Node:       j.NodeName,
		Status:     string(j.Status),
		At:         time.Now().UTC(),
	})
	return nil
}

func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.publish(Event{
		Type:       EventJobStarted,
		WorkflowID: j.WorkflowID.String(),
		JobID:      j.ID.String(),
		Node:       j.NodeName,
		Status:     string(j.Status),
		At:         time.Now().UTC(),
	})
	return nil
}

func (b *Broker) OnJobCompleted(_ context.Context, j *job.Job, _ time.Duration) error {
	b.publish(Event{
		Type:       EventJobCompleted,
		WorkflowID: j.WorkflowID.String(),
		JobID:      j.ID.String(),
		Node:       j.NodeName,
		Status:     string(j.Status),
		At:         time.Now().UTC(),
	})
	return nil
}

func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	b.publish(Event{
		Type:       EventJobFailed,
		WorkflowID: j.WorkflowID.String(),
		JobID:      j.ID.String(),
		Node:       j.NodeName,
		Status:     string(j.Status),
		Error:      jobErr.Error(),
		At:         time.Now().UTC(),
	})
	return nil
}

// ── Health hooks ────────────────────────────────────

func (b *Broker) OnAlertRaised(_ context.Context, a *health.Alert) error {
	b.publish(Event{
		Type:   EventAlertRaised,
		Status: string(a.Kind),
		Error:  a.Message,
		At:     time.Now().UTC(),
	})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		value.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
