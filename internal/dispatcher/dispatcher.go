// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/og-worker/internal/og"
	"github.com/JakeFAU/og-worker/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   og.Queue
	workers []*worker.Worker
	ids     og.IDGenerator
}

// New creates a Dispatcher. ids may be nil, in which case jobs keep
// whatever ID they were enqueued with.
func New(queue og.Queue, workers []*worker.Worker, ids og.IDGenerator) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		ids:     ids,
	}
}

// NewPool builds concurrency workers sharing one queue and handler.
func NewPool(concurrency int, queue og.Queue, handler worker.JobHandler, logger *zap.Logger) ([]*worker.Worker, error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := make([]*worker.Worker, 0, concurrency)
	for i := range concurrency {
		workers = append(workers, worker.New(queue, handler, logger.With(zap.Int("worker", i))))
	}
	return workers, nil
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue validates a job, assigns it an ID and proxies to the queue.
func (d *Dispatcher) Enqueue(ctx context.Context, job og.Job) (og.Job, error) {
	job.URL = strings.TrimSpace(job.URL)
	if job.URL == "" {
		return og.Job{}, fmt.Errorf("%w: url is required", og.ErrInvalidJob)
	}
	if job.ID == "" && d.ids != nil {
		id, err := d.ids.NewID()
		if err != nil {
			return og.Job{}, fmt.Errorf("job id: %w", err)
		}
		job.ID = id
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		if errors.Is(err, og.ErrQueueClosed) {
			return og.Job{}, err
		}
		return og.Job{}, fmt.Errorf("queue enqueue: %w", err)
	}
	return job, nil
}
