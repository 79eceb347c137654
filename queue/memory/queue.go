// Package memqueue provides an in-process, channel-backed work queue.
//
// It is intended for tests and single-process deployments. Messages are
// held in a bounded buffer and are not persisted: anything undelivered
// when the process exits is lost.
package memqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/thelittleladyinc/empire-system/queue"
)

// Ensure Queue implements the queue contract at compile time.
var _ queue.Queue = (*Queue)(nil)

// Queue is a channel-backed queue.Queue implementation.
type Queue struct {
	config  queue.Config
	logger  *slog.Logger
	limiter *rate.Limiter

	ch chan queue.Message

	failedMu sync.Mutex
	failed   []queue.FailedMessage

	mu      sync.Mutex
	handler queue.Handler
	running bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures the Queue.
type Option func(*Queue)

// WithConfig replaces the queue configuration.
func WithConfig(cfg queue.Config) Option {
	return func(q *Queue) { q.config = cfg }
}

// WithLogger sets the logger for the queue.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// New creates an in-process queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		config: queue.DefaultConfig(),
		logger: slog.Default(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.config.Concurrency < 1 {
		q.config.Concurrency = 1
	}
	if q.config.BufferSize < 1 {
		q.config.BufferSize = 1
	}
	if q.config.RateLimit > 0 {
		burst := q.config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(q.config.RateLimit), burst)
	}
	q.ch = make(chan queue.Message, q.config.BufferSize)
	q.ctx, q.cancel = context.WithCancel(context.Background())
	return q
}

// Enqueue publishes a message to the buffer. It blocks only when the
// buffer is full.
func (q *Queue) Enqueue(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return queue.ErrClosed
	}

	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume registers the handler invoked for each delivered message.
func (q *Queue) Consume(h queue.Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return queue.ErrStarted
	}
	q.handler = h
	return nil
}

// Start launches the consumer workers. It returns immediately.
func (q *Queue) Start(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.ErrClosed
	}
	if q.running {
		return nil
	}
	if q.handler == nil {
		return queue.ErrNoHandler
	}
	q.running = true

	q.logger.Info("memory queue starting",
		slog.String("queue", q.config.Name),
		slog.Int("concurrency", q.config.Concurrency),
	)

	for range q.config.Concurrency {
		q.wg.Add(1)
		go q.deliverLoop()
	}

	return nil
}

// Stop signals the workers to stop and waits for in-flight handlers.
// If the context has a deadline, handlers are cancelled when time runs out.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.mu.Unlock()

	close(q.stopCh)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		q.logger.Warn("memory queue shutdown timed out, cancelling in-flight handlers")
		q.cancel()
		q.wg.Wait()
	}

	return nil
}

// Ping reports liveness.
func (q *Queue) Ping(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	return nil
}

// Close releases the queue. Buffered, undelivered messages are dropped.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.cancel()
	return nil
}

// Failed returns recorded handler failures, newest first.
func (q *Queue) Failed(_ context.Context, limit int) ([]queue.FailedMessage, error) {
	if limit <= 0 {
		limit = queue.DefaultFailedLimit
	}

	q.failedMu.Lock()
	defer q.failedMu.Unlock()

	n := len(q.failed)
	if limit > n {
		limit = n
	}
	out := make([]queue.FailedMessage, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, q.failed[i])
	}
	return out, nil
}

// deliverLoop is run by each consumer worker.
func (q *Queue) deliverLoop() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case msg := <-q.ch:
			q.deliver(msg)
		}
	}
}

func (q *Queue) deliver(msg queue.Message) {
	if q.limiter != nil {
		if err := q.limiter.Wait(q.ctx); err != nil {
			return
		}
	}

	if err := q.handler(q.ctx, msg); err != nil {
		q.recordFailure(msg, err)
		q.logger.Error("message handler failed",
			slog.String("job_id", msg.JobID.String()),
			slog.String("node", msg.Node),
			slog.String("error", err.Error()),
		)
	}
}

func (q *Queue) recordFailure(msg queue.Message, err error) {
	q.failedMu.Lock()
	q.failed = append(q.failed, queue.FailedMessage{
		Message:  msg,
		Error:    err.Error(),
		FailedAt: time.Now().UTC(),
	})
	q.failedMu.Unlock()
}
