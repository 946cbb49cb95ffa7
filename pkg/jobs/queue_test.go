package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesPayload(t *testing.T) {
	got := make(chan string, 1)
	q := NewQueue[string]("stats", func(_ context.Context, job Job[string]) error {
		got <- job.Payload
		return nil
	}, QueueConfig{Workers: 2})

	_, err := q.Submit("task-1")
	require.ErrorIs(t, err, ErrNotStarted)

	q.Start(context.Background())
	defer q.Stop()

	id, err := q.Submit("task-1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case payload := <-got:
		require.Equal(t, "task-1", payload)
	case <-time.After(time.Second):
		t.Fatal("job not processed")
	}
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	q := NewQueue[int]("stats", func(_ context.Context, job Job[int]) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("boom")
		}
		close(done)
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 5 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	_, err := q.Submit(42)
	require.NoError(t, err)

	select {
	case <-done:
		require.EqualValues(t, 3, atomic.LoadInt32(&attempts))
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
}

func TestQueueCoalescesWaitingPayloads(t *testing.T) {
	release := make(chan struct{})
	var runs int32
	q := NewQueue[string]("stats", func(ctx context.Context, job Job[string]) error {
		atomic.AddInt32(&runs, 1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4})
	q.Start(context.Background())
	defer q.Stop()

	_, err := q.Submit("busy")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, time.Millisecond)

	first, err := q.Submit("task-1")
	require.NoError(t, err)
	second, err := q.Submit("task-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, q.Pending())

	close(release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 2 && q.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestQueueRejectsWhenFull(t *testing.T) {
	block := make(chan struct{})
	var started int32
	q := NewQueue[int]("stats", func(ctx context.Context, job Job[int]) error {
		atomic.StoreInt32(&started, 1)
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	_, err := q.Submit(1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&started) == 1 }, time.Second, time.Millisecond)
	_, err = q.Submit(2)
	require.NoError(t, err)
	_, err = q.Submit(3)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueueBackoffDoublesUpToCap(t *testing.T) {
	q := NewQueue[int]("stats", nil, QueueConfig{RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second})
	assert.Equal(t, time.Second, q.backoff(1))
	assert.Equal(t, 2*time.Second, q.backoff(2))
	assert.Equal(t, 4*time.Second, q.backoff(3))
	assert.Equal(t, 5*time.Second, q.backoff(4))
	assert.Equal(t, 5*time.Second, q.backoff(10))
}

func TestQueueSubmitAfterStop(t *testing.T) {
	q := NewQueue[int]("stats", func(context.Context, Job[int]) error { return nil }, QueueConfig{})
	q.Start(context.Background())
	q.Stop()
	_, err := q.Submit(1)
	assert.ErrorIs(t, err, context.Canceled)
}
