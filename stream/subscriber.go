package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber receives events from topics it is subscribed to. Each
// subscriber has a bounded buffer; when it fills, the oldest buffered
// event is dropped to make room, so a slow consumer always sees the
// newest events rather than a stale prefix.
type Subscriber struct {
	// id uniquely identifies this subscriber.
	id string

	// ch is the buffered channel events are sent on.
	ch chan Event

	// topics tracks which topics this subscriber is on.
	// mu also serializes send against Close so an event is never sent
	// on a closed channel.
	topics map[string]struct{}
	mu     sync.RWMutex

	// dropped counts events evicted from a full buffer.
	dropped atomic.Int64

	// closed prevents double-close of the channel.
	closed atomic.Bool
}

// NewSubscriber creates a subscriber with the given buffer size.
func NewSubscriber(id string, bufferSize int) *Subscriber {
	return &Subscriber{
		id:     id,
		ch:     make(chan Event, bufferSize),
		topics: make(map[string]struct{}),
	}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel.
func (s *Subscriber) C() <-chan Event { return s.ch }

// Dropped returns the number of events evicted from this subscriber's
// buffer because the consumer fell behind.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// addTopic records that this subscriber is on the given topic.
func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

// removeTopic removes a topic from the subscriber's tracked set.
func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// Topics returns a copy of all subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// send delivers an event to the subscriber, evicting the oldest
// buffered event if the buffer is full. Returns false only when the
// subscriber is closed or the buffer could not take the event.
func (s *Subscriber) send(evt Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed.Load() {
		return false
	}

	select {
	case s.ch <- evt:
		return true
	default:
	}

	// Buffer full: drop the oldest event to make room for the newest.
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}

	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// Close closes the subscriber channel. Safe to call multiple times.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
