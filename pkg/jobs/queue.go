package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned by Submit before Start.
	ErrNotStarted = errors.New("queue not started")
	// ErrQueueFull is returned by Submit when the buffer has no room left.
	ErrQueueFull = errors.New("queue full")
)

// Job carries one payload through a Queue.
type Job[T comparable] struct {
	ID       string
	Payload  T
	Attempt  int
	Enqueued time.Time
}

// Handler processes one job. A returned error schedules a retry until MaxRetries is spent.
type Handler[T comparable] func(context.Context, Job[T]) error

// QueueConfig sizes a Queue. Zero values fall back to one worker, a buffer of 16 per worker and a
// one second first retry delay.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff step; each further attempt doubles it up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Logger        *zap.Logger
}

// Queue is an in-process worker pool. Submitting a payload that is already waiting returns the waiting
// job instead of adding a duplicate, so a burst of changes to one task yields a single regeneration.
// Once a worker picks a job up the payload can be queued again.
type Queue[T comparable] struct {
	name    string
	handler Handler[T]
	cfg     QueueConfig
	logger  *zap.Logger

	jobs chan Job[T]
	wg   sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	pending map[T]string
}

// NewQueue builds a stopped queue; call Start to launch its workers.
func NewQueue[T comparable](name string, handler Handler[T], cfg QueueConfig) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 32 * cfg.RetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue[T]{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("queue", name)),
		jobs:    make(chan Job[T], cfg.BufferSize),
		pending: make(map[T]string),
	}
}

// Start launches the workers. Later calls are no-ops.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx != nil {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels in-flight handlers and waits for the workers. Waiting jobs are dropped.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.cancel == nil {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped", zap.Int("dropped", q.Pending()))
}

// Submit queues payload and returns the job ID. It never blocks: a full buffer yields ErrQueueFull.
func (q *Queue[T]) Submit(payload T) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx == nil {
		return "", fmt.Errorf("%s: %w", q.name, ErrNotStarted)
	}
	if err := q.ctx.Err(); err != nil {
		return "", fmt.Errorf("%s stopped: %w", q.name, err)
	}
	if id, ok := q.pending[payload]; ok {
		return id, nil
	}
	job := Job[T]{ID: uuid.NewString(), Payload: payload, Enqueued: time.Now().UTC()}
	if !q.offer(job) {
		return "", fmt.Errorf("%s: %w", q.name, ErrQueueFull)
	}
	return job.ID, nil
}

// Pending counts jobs waiting for a worker.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// offer must be called with mu held.
func (q *Queue[T]) offer(job Job[T]) bool {
	select {
	case q.jobs <- job:
		q.pending[job.Payload] = job.ID
		return true
	default:
		return false
	}
}

func (q *Queue[T]) work() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.mu.Lock()
			if q.pending[job.Payload] == job.ID {
				delete(q.pending, job.Payload)
			}
			q.mu.Unlock()

			if err := q.handler(q.ctx, job); err != nil && q.ctx.Err() == nil {
				q.retry(job, err)
			}
		}
	}
}

func (q *Queue[T]) retry(job Job[T], err error) {
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.logger.Error("job exceeded retries", zap.String("job_id", job.ID), zap.Any("payload", job.Payload), zap.Error(err))
		return
	}
	delay := q.backoff(job.Attempt)
	q.logger.Warn("job failed, retrying", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt),
		zap.Duration("delay", delay), zap.Error(err))

	timer := time.NewTimer(delay)
	go func() {
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			q.mu.Lock()
			defer q.mu.Unlock()
			if _, queued := q.pending[job.Payload]; queued {
				// a fresh submission supersedes the retry
				return
			}
			if !q.offer(job) {
				q.logger.Error("failed to requeue job", zap.String("job_id", job.ID), zap.Error(ErrQueueFull))
			}
		}
	}()
}

func (q *Queue[T]) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt && delay < q.cfg.MaxRetryDelay; i++ {
		delay *= 2
	}
	if delay > q.cfg.MaxRetryDelay {
		delay = q.cfg.MaxRetryDelay
	}
	return delay
}
