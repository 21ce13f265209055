// Package memory provides an in-process job queue for local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/og-worker/internal/og"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch        chan og.Job
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch:   make(chan og.Job, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a job into the queue, blocking while it is full.
func (q *Queue) Enqueue(ctx context.Context, job og.Job) error {
	if q.isClosed() {
		return og.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return og.ErrQueueClosed
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation. Once the queue
// is closed it returns og.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (og.Job, error) {
	if q.isClosed() {
		return og.Job{}, og.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return og.Job{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return og.Job{}, og.ErrQueueClosed
	case job := <-q.ch:
		return job, nil
	}
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue. Jobs still buffered are dropped.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

func (q *Queue) isClosed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}
