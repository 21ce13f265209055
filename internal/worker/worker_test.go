package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/og-worker/internal/og"
	"github.com/JakeFAU/og-worker/internal/queue/memory"
)

type recordingHandler struct {
	mu      sync.Mutex
	jobs    []og.Job
	ctxErrs []error
	block   chan struct{}
}

func (h *recordingHandler) Handle(ctx context.Context, job og.Job) og.Outcome {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job)
	h.ctxErrs = append(h.ctxErrs, ctx.Err())
	return og.OutcomeStored
}

func (h *recordingHandler) handled() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.jobs)
}

type scriptedQueue struct {
	mu    sync.Mutex
	steps []func() (og.Job, error)
}

func (q *scriptedQueue) Enqueue(context.Context, og.Job) error { return nil }

func (q *scriptedQueue) Dequeue(ctx context.Context) (og.Job, error) {
	q.mu.Lock()
	if len(q.steps) > 0 {
		step := q.steps[0]
		q.steps = q.steps[1:]
		q.mu.Unlock()
		return step()
	}
	q.mu.Unlock()
	<-ctx.Done()
	return og.Job{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
}

func (q *scriptedQueue) Close() error { return nil }

func TestWorkerRunProcessesJobs(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(4)
	handler := &recordingHandler{}
	w := New(queue, handler, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.NoError(t, queue.Enqueue(ctx, og.Job{ID: "1", URL: "http://ex.com/a"}))
	require.NoError(t, queue.Enqueue(ctx, og.Job{ID: "2", URL: "http://ex.com/b"}))

	require.Eventually(t, func() bool { return handler.handled() == 2 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(1)
	w := New(queue, &recordingHandler{}, zap.NewNop())
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	require.NoError(t, queue.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

func TestWorkerSkipsInvalidPayloadsAndRetriesErrors(t *testing.T) {
	t.Parallel()

	queue := &scriptedQueue{steps: []func() (og.Job, error){
		func() (og.Job, error) { return og.Job{}, fmt.Errorf("%w: bad json", og.ErrInvalidJob) },
		func() (og.Job, error) { return og.Job{}, errors.New("connection refused") },
		func() (og.Job, error) { return og.Job{ID: "ok", URL: "http://ex.com/a"}, nil },
	}}
	handler := &recordingHandler{}
	w := New(queue, handler, zap.NewNop())
	w.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool { return handler.handled() == 1 }, time.Second, 5*time.Millisecond)
	handler.mu.Lock()
	assert.Equal(t, "ok", handler.jobs[0].ID)
	handler.mu.Unlock()
}

func TestWorkerFinishesInFlightJobAfterCancel(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(1)
	handler := &recordingHandler{block: make(chan struct{})}
	w := New(queue, handler, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.NoError(t, queue.Enqueue(context.Background(), og.Job{ID: "slow"}))
	require.Eventually(t, func() bool { return queue.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	close(handler.block)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.jobs, 1)
	assert.NoError(t, handler.ctxErrs[0])
}
