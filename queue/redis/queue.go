// Package redisqueue implements queue.Queue on Redis lists.
//
// Messages are LPUSHed onto a pending list and consumers claim them
// atomically with BLMOVE into a per-queue processing list. Successful
// handling removes the entry from the processing list; handler failures
// are recorded on a capped failed list and acknowledged, never
// redelivered. Entries orphaned in the processing list by a crashed
// consumer are moved back to pending on Start, which is what makes
// delivery at-least-once.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	q := redisqueue.New(client)
//	_ = q.Consume(handler)
//	_ = q.Start(ctx)
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/thelittleladyinc/empire-system/backoff"
	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/queue"
)

// Ensure Queue implements the queue contract at compile time.
var _ queue.Queue = (*Queue)(nil)

// failedKeep caps the failed list length.
const failedKeep = 1000

// Queue is a Redis-backed queue.Queue implementation. The caller owns
// the Redis client lifecycle.
type Queue struct {
	client  redis.Cmdable
	config  queue.Config
	codec   queue.Codec
	retry   backoff.Strategy
	logger  *slog.Logger
	limiter *rate.Limiter

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

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithCodec sets the wire codec. Defaults to JSON.
func WithCodec(c queue.Codec) Option {
	return func(q *Queue) { q.codec = c }
}

// WithBackoff sets the strategy used to pace retries after transport
// errors.
func WithBackoff(s backoff.Strategy) Option {
	return func(q *Queue) { q.retry = s }
}

// New creates a Redis-backed queue. The caller owns the client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Queue {
	q := &Queue{
		client: client,
		config: queue.DefaultConfig(),
		codec:  queue.GetCodec(queue.CodecNameJSON),
		retry:  backoff.DefaultStrategy(),
		logger: slog.Default(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.config.Concurrency < 1 {
		q.config.Concurrency = 1
	}
	if q.config.PollInterval <= 0 {
		q.config.PollInterval = time.Second
	}
	if q.config.RateLimit > 0 {
		burst := q.config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(q.config.RateLimit), burst)
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	return q
}

// ──────────────────────────────────────────────────
// Keys and wire format
// ──────────────────────────────────────────────────

func (q *Queue) pendingKey() string    { return "empire:queue:" + q.config.Name }
func (q *Queue) processingKey() string { return q.pendingKey() + ":processing" }
func (q *Queue) failedKey() string     { return q.pendingKey() + ":failed" }

// wireMessage is the transport representation of a queue.Message. IDs
// travel as strings so any codec can carry them.
type wireMessage struct {
	JobID      string    `json:"job_id" msgpack:"job_id"`
	WorkflowID string    `json:"workflow_id" msgpack:"workflow_id"`
	Node       string    `json:"node" msgpack:"node"`
	EnqueuedAt time.Time `json:"enqueued_at" msgpack:"enqueued_at"`
}

type wireFailed struct {
	Message  wireMessage `json:"message" msgpack:"message"`
	Error    string      `json:"error" msgpack:"error"`
	FailedAt time.Time   `json:"failed_at" msgpack:"failed_at"`
}

func toWire(msg queue.Message) wireMessage {
	return wireMessage{
		JobID:      msg.JobID.String(),
		WorkflowID: msg.WorkflowID.String(),
		Node:       msg.Node,
		EnqueuedAt: msg.EnqueuedAt,
	}
}

func fromWire(w wireMessage) (queue.Message, error) {
	jobID, err := id.ParseJobID(w.JobID)
	if err != nil {
		return queue.Message{}, err
	}
	workflowID, err := id.ParseWorkflowID(w.WorkflowID)
	if err != nil {
		return queue.Message{}, err
	}
	return queue.Message{
		JobID:      jobID,
		WorkflowID: workflowID,
		Node:       w.Node,
		EnqueuedAt: w.EnqueuedAt,
	}, nil
}

// ──────────────────────────────────────────────────
// Queue interface
// ──────────────────────────────────────────────────

// Enqueue publishes a message onto the pending list.
func (q *Queue) Enqueue(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return queue.ErrClosed
	}

	data, err := q.codec.Encode(toWire(msg))
	if err != nil {
		return fmt.Errorf("empire/redisqueue: encode message: %w", err)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), data).Err(); err != nil {
		return fmt.Errorf("empire/redisqueue: enqueue: %w", err)
	}
	return nil
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

// Start recovers orphaned processing entries and launches the consumer
// workers. It returns immediately after recovery.
func (q *Queue) Start(ctx context.Context) error {
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

	if err := q.recoverProcessing(ctx); err != nil {
		return err
	}
	q.running = true

	q.logger.Info("redis queue starting",
		slog.String("queue", q.config.Name),
		slog.Int("concurrency", q.config.Concurrency),
		slog.String("codec", q.codec.Name()),
	)

	for range q.config.Concurrency {
		q.wg.Add(1)
		go q.consumeLoop()
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
		q.logger.Warn("redis queue shutdown timed out, cancelling in-flight handlers")
		q.cancel()
		q.wg.Wait()
	}

	return nil
}

// Ping verifies the Redis connection is alive.
func (q *Queue) Ping(ctx context.Context) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return queue.ErrClosed
	}
	return q.client.Ping(ctx).Err()
}

// Close releases the queue. The caller owns the Redis client.
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
func (q *Queue) Failed(ctx context.Context, limit int) ([]queue.FailedMessage, error) {
	if limit <= 0 {
		limit = queue.DefaultFailedLimit
	}

	entries, err := q.client.LRange(ctx, q.failedKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("empire/redisqueue: read failed list: %w", err)
	}

	out := make([]queue.FailedMessage, 0, len(entries))
	for _, raw := range entries {
		var w wireFailed
		if decErr := q.codec.Decode([]byte(raw), &w); decErr != nil {
			q.logger.Warn("skipping undecodable failed entry", slog.String("error", decErr.Error()))
			continue
		}
		msg, convErr := fromWire(w.Message)
		if convErr != nil {
			q.logger.Warn("skipping failed entry with invalid ids", slog.String("error", convErr.Error()))
			continue
		}
		out = append(out, queue.FailedMessage{Message: msg, Error: w.Error, FailedAt: w.FailedAt})
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Consumer internals
// ──────────────────────────────────────────────────

// recoverProcessing drains entries a crashed consumer left in the
// processing list back onto the pending tail for redelivery.
func (q *Queue) recoverProcessing(ctx context.Context) error {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey(), q.pendingKey(), "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return fmt.Errorf("empire/redisqueue: recover processing: %w", err)
		}
		moved++
	}
	if moved > 0 {
		q.logger.Info("recovered orphaned messages", slog.Int("count", moved), slog.String("queue", q.config.Name))
	}
	return nil
}

// consumeLoop is run by each consumer worker.
func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	attempt := 0
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		raw, err := q.client.BLMove(q.ctx, q.pendingKey(), q.processingKey(), "RIGHT", "LEFT", q.config.PollInterval).Result()
		if errors.Is(err, redis.Nil) {
			attempt = 0
			continue
		}
		if err != nil {
			select {
			case <-q.stopCh:
				return
			default:
			}
			attempt++
			q.logger.Error("queue transport error",
				slog.String("queue", q.config.Name),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			q.sleep(q.retry.Delay(attempt))
			continue
		}
		attempt = 0

		q.handleRaw(raw)
	}
}

// handleRaw decodes one claimed entry, runs the handler, records any
// failure, and acknowledges the entry.
func (q *Queue) handleRaw(raw string) {
	defer q.ack(raw)

	var w wireMessage
	if err := q.codec.Decode([]byte(raw), &w); err != nil {
		q.logger.Error("dropping undecodable message", slog.String("error", err.Error()))
		return
	}
	msg, err := fromWire(w)
	if err != nil {
		q.logger.Error("dropping message with invalid ids", slog.String("error", err.Error()))
		return
	}

	if q.limiter != nil {
		if waitErr := q.limiter.Wait(q.ctx); waitErr != nil {
			// Shutdown while throttled: put the message back for the
			// next consumer instead of dropping it.
			q.requeue(raw)
			return
		}
	}

	if handleErr := q.handler(q.ctx, msg); handleErr != nil {
		q.recordFailure(msg, handleErr)
		q.logger.Error("message handler failed",
			slog.String("job_id", msg.JobID.String()),
			slog.String("node", msg.Node),
			slog.String("error", handleErr.Error()),
		)
	}
}

func (q *Queue) ack(raw string) {
	if err := q.client.LRem(context.Background(), q.processingKey(), 1, raw).Err(); err != nil {
		q.logger.Warn("ack failed", slog.String("error", err.Error()))
	}
}

func (q *Queue) requeue(raw string) {
	if err := q.client.RPush(context.Background(), q.pendingKey(), raw).Err(); err != nil {
		q.logger.Warn("requeue failed", slog.String("error", err.Error()))
	}
}

func (q *Queue) recordFailure(msg queue.Message, handlerErr error) {
	entry := wireFailed{
		Message:  toWire(msg),
		Error:    handlerErr.Error(),
		FailedAt: time.Now().UTC(),
	}
	data, err := q.codec.Encode(entry)
	if err != nil {
		q.logger.Error("encode failed entry", slog.String("error", err.Error()))
		return
	}

	ctx := context.Background()
	if err := q.client.LPush(ctx, q.failedKey(), data).Err(); err != nil {
		q.logger.Error("record failure", slog.String("error", err.Error()))
		return
	}
	if err := q.client.LTrim(ctx, q.failedKey(), 0, failedKeep-1).Err(); err != nil {
		q.logger.Warn("trim failed list", slog.String("error", err.Error()))
	}
}

func (q *Queue) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-q.stopCh:
	}
}
