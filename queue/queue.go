// Package queue defines the work queue contract that decouples "decide
// the next step" from "run the step".
//
// The engine enqueues one dispatch message per runnable job; a queue
// implementation delivers each message to the registered consumer
// handler on its own loop(s). Delivery is at-least-once: the engine's
// job claim makes duplicate deliveries safe, and handler failures are
// recorded on the queue's failure channel rather than redelivered.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/thelittleladyinc/empire-system/id"
)

var (
	// ErrNoHandler is returned by Start when no consumer is registered.
	ErrNoHandler = errors.New("queue: no consumer registered")
	// ErrStarted is returned when an operation requires a stopped queue.
	ErrStarted = errors.New("queue: already started")
	// ErrClosed is returned when the queue has been closed.
	ErrClosed = errors.New("queue: closed")
)

// Message is the dispatch unit carried by the queue: one runnable job.
type Message struct {
	JobID      id.JobID      `json:"job_id"`
	WorkflowID id.WorkflowID `json:"workflow_id"`
	Node       string        `json:"node"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// FailedMessage records a message whose handler returned an error. This
// is the queue's failure channel: failed dispatches are tracked for
// reporting, never redelivered.
type FailedMessage struct {
	Message  Message   `json:"message"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// Handler processes one delivered message. A non-nil error records the
// message on the failure channel.
type Handler func(ctx context.Context, msg Message) error

// Queue is the transport contract between the engine and its workers.
type Queue interface {
	// Enqueue publishes a dispatch message. It does not wait for the
	// message to be processed.
	Enqueue(ctx context.Context, msg Message) error

	// Consume registers the handler invoked for each delivered message.
	// It must be called once, before Start.
	Consume(h Handler) error

	// Start launches the consumer loop(s).
	Start(ctx context.Context) error

	// Stop gracefully stops the consumer loop(s), waiting for in-flight
	// handlers up to the context deadline.
	Stop(ctx context.Context) error

	// Ping reports transport liveness.
	Ping(ctx context.Context) error

	// Close releases transport resources.
	Close() error

	// Failed returns recorded handler failures, newest first. A
	// non-positive limit applies DefaultFailedLimit.
	Failed(ctx context.Context, limit int) ([]FailedMessage, error)
}

// Config defines consumer behaviour shared by queue implementations.
type Config struct {
	// Name is the queue identifier, used to derive transport keys.
	Name string

	// Concurrency is the number of consumer workers. Minimum 1.
	Concurrency int

	// BufferSize is the in-memory dispatch buffer (memory queue only).
	BufferSize int

	// PollInterval bounds how long a consumer blocks waiting for work
	// before re-checking for shutdown.
	PollInterval time.Duration

	// RateLimit is the maximum sustained messages per second delivered
	// to handlers. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:         "workflows",
		Concurrency:  4,
		BufferSize:   1024,
		PollInterval: 1 * time.Second,
	}
}

// DefaultFailedLimit is the failure-channel page size used when Failed
// is called with a non-positive limit.
const DefaultFailedLimit = 100
