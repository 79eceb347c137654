package stream

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBrokerSubscribeAndPublish(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-1", TopicJobs)

	b.publish(Event{
		Type:       EventJobDispatched,
		WorkflowID: "wf_123",
		JobID:      "job_123",
		Node:       "collect_data",
		At:         time.Now().UTC(),
	})

	select {
	case received := <-sub.C():
		if received.Type != EventJobDispatched {
			t.Errorf("Type = %q, want %q", received.Type, EventJobDispatched)
		}
		if received.Node != "collect_data" {
			t.Errorf("Node = %q, want %q", received.Node, "collect_data")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBrokerWorkflowScopedTopic(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// Watching one workflow covers its job events too.
	sub := b.Subscribe("wf-sub", WorkflowTopic("wf_abc"))

	b.publish(Event{
		Type:       EventJobCompleted,
		WorkflowID: "wf_abc",
		JobID:      "job_1",
		Node:       "generate_description",
		At:         time.Now().UTC(),
	})

	select {
	case received := <-sub.C():
		if received.Type != EventJobCompleted {
			t.Errorf("Type = %q, want %q", received.Type, EventJobCompleted)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for workflow-scoped job event")
	}

	// An event for a different workflow must not arrive.
	b.publish(Event{
		Type:       EventWorkflowStarted,
		WorkflowID: "wf_other",
		At:         time.Now().UTC(),
	})

	select {
	case <-sub.C():
		t.Fatal("should not receive event for different workflow")
	case <-time.After(50 * time.Millisecond):
		// ok — no event
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-rm", TopicFirehose)

	b.RemoveSubscriber("sub-rm")

	b.publish(Event{Type: EventWorkflowCreated, WorkflowID: "wf_1", At: time.Now().UTC()})

	// Channel should be closed.
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("channel should be closed after RemoveSubscriber")
		}
	case <-time.After(100 * time.Millisecond):
		// ok
	}
}

func TestBrokerStats(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	_ = b.Subscribe("s1", TopicJobs)
	_ = b.Subscribe("s2", TopicWorkflows, TopicFirehose)

	stats := b.Stats()
	if stats.SubscriberCount != 2 {
		t.Errorf("SubscriberCount = %d, want 2", stats.SubscriberCount)
	}
	if stats.TopicCount < 2 {
		t.Errorf("TopicCount = %d, want >= 2", stats.TopicCount)
	}
}

func TestSubscriberDropOldest(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("slow-sub", 2)

	for i, wfID := range []string{"wf_1", "wf_2", "wf_3"} {
		evt := Event{Type: EventWorkflowCreated, WorkflowID: wfID, At: time.Now().UTC()}
		if !sub.send(evt) {
			t.Fatalf("send %d should succeed", i+1)
		}
	}

	// The oldest event was evicted; the newest two remain in order.
	first := <-sub.C()
	if first.WorkflowID != "wf_2" {
		t.Errorf("first buffered event = %q, want wf_2 (wf_1 evicted)", first.WorkflowID)
	}
	second := <-sub.C()
	if second.WorkflowID != "wf_3" {
		t.Errorf("second buffered event = %q, want wf_3", second.WorkflowID)
	}

	if n := sub.Dropped(); n != 1 {
		t.Errorf("Dropped = %d, want 1", n)
	}
}

func TestSubscriberClosedSend(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("closed-sub", 4)
	sub.Close()
	sub.Close() // idempotent

	if sub.send(Event{Type: EventWorkflowCreated, At: time.Now().UTC()}) {
		t.Fatal("send to closed subscriber should fail")
	}
}

func TestTopicValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic string
		valid bool
	}{
		{TopicWorkflows, true},
		{TopicJobs, true},
		{TopicFirehose, true},
		{"workflow:wf_abc123", true},
		{"job:job_123", true},
		{"invalid", false},
		{"unknown:entity", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if tt.valid && err != nil {
				t.Errorf("ValidateTopic(%q) returned error: %v", tt.topic, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("ValidateTopic(%q) should return error", tt.topic)
			}
		})
	}
}

func TestTopicRegistry(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()

	sub1 := NewSubscriber("s1", 10)
	sub2 := NewSubscriber("s2", 10)

	tr.Subscribe("topic-a", sub1)
	tr.Subscribe("topic-a", sub2)
	tr.Subscribe("topic-b", sub1)

	if tr.TopicCount() != 2 {
		t.Errorf("TopicCount = %d, want 2", tr.TopicCount())
	}
	if tr.SubscriberCount("topic-a") != 2 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 2", tr.SubscriberCount("topic-a"))
	}

	tr.Unsubscribe("topic-a", "s2")
	if tr.SubscriberCount("topic-a") != 1 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 1", tr.SubscriberCount("topic-a"))
	}

	tr.UnsubscribeAll("s1")
	if tr.TopicCount() != 0 {
		t.Errorf("TopicCount after UnsubscribeAll = %d, want 0", tr.TopicCount())
	}
}

func TestBroadcastDeduplication(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()
	sub := NewSubscriber("dedup-sub", 10)

	tr.Subscribe("topic-x", sub)
	tr.Subscribe("topic-y", sub)

	evt := Event{Type: EventWorkflowCreated, At: time.Now().UTC()}

	delivered := tr.Broadcast([]string{"topic-x", "topic-y"}, evt)
	if delivered != 1 {
		t.Errorf("Broadcast delivered to %d subscribers, want 1 (deduplicated)", delivered)
	}
}

func TestResolveTopics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		evt      Event
		expected []string
	}{
		{
			name:     "job event",
			evt:      Event{Type: EventJobDispatched, WorkflowID: "wf_1", JobID: "job_1"},
			expected: []string{TopicFirehose, TopicJobs, "workflow:wf_1", "job:job_1"},
		},
		{
			name:     "workflow event",
			evt:      Event{Type: EventWorkflowStarted, WorkflowID: "wf_1"},
			expected: []string{TopicFirehose, TopicWorkflows, "workflow:wf_1"},
		},
		{
			name:     "alert event",
			evt:      Event{Type: EventAlertRaised},
			expected: []string{TopicFirehose},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topics := resolveTopics(tt.evt)
			if len(topics) != len(tt.expected) {
				t.Errorf("got %d topics, want %d: %v", len(topics), len(tt.expected), topics)
				return
			}
			for i, topic := range topics {
				if topic != tt.expected[i] {
					t.Errorf("topic[%d] = %q, want %q", i, topic, tt.expected[i])
				}
			}
		})
	}
}

func TestBrokerLifecycleHooks(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe("hook-sub", TopicFirehose)
	ctx := context.Background()

	w := workflow.New("full_listing", "prop-1")
	if err := b.OnWorkflowCreated(ctx, w); err != nil {
		t.Fatalf("OnWorkflowCreated: %v", err)
	}

	j := job.New(w.ID, "publish_listing", 3)
	j.Status = job.StatusFailed
	if err := b.OnJobFailed(ctx, j, errors.New("listing rejected")); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}

	created := <-sub.C()
	if created.Type != EventWorkflowCreated {
		t.Errorf("first event type = %q, want %q", created.Type, EventWorkflowCreated)
	}
	if created.WorkflowID != w.ID.String() {
		t.Errorf("workflow id = %q, want %q", created.WorkflowID, w.ID.String())
	}
	if created.Status != string(workflow.StatusPending) {
		t.Errorf("status = %q, want pending", created.Status)
	}

	failed := <-sub.C()
	if failed.Type != EventJobFailed {
		t.Errorf("second event type = %q, want %q", failed.Type, EventJobFailed)
	}
	if failed.JobID != j.ID.String() || failed.Node != "publish_listing" {
		t.Errorf("job event = id %q node %q, want %q / publish_listing", failed.JobID, failed.Node, j.ID.String())
	}
	if failed.Error != "listing rejected" {
		t.Errorf("error = %q, want node error carried", failed.Error)
	}

	// Shutdown closes every subscriber.
	if err := b.OnShutdown(ctx); err != nil {
		t.Fatalf("OnShutdown: %v", err)
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("subscriber channel should be closed after shutdown")
	}
}
