// Package worker implements the per-job pipeline and the queue consumption loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/og-worker/internal/metrics"
	"github.com/JakeFAU/og-worker/internal/og"
)

const defaultRetryDelay = time.Second

// JobHandler processes a single dequeued job.
type JobHandler interface {
	Handle(ctx context.Context, job og.Job) og.Outcome
}

// Worker consumes queue items and hands each one to a JobHandler.
type Worker struct {
	queue      og.Queue
	handler    JobHandler
	retryDelay time.Duration
	logger     *zap.Logger
}

// New constructs a Worker.
func New(queue og.Queue, handler JobHandler, logger *zap.Logger) *Worker {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:      queue,
		handler:    handler,
		retryDelay: defaultRetryDelay,
		logger:     logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed. A job already in progress when ctx is canceled runs to its
// terminal outcome.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, og.ErrQueueClosed) {
				return
			}
			if errors.Is(err, og.ErrInvalidJob) {
				w.logger.Warn("skipping invalid job payload", zap.Error(err))
				metrics.ObserveQueueError("invalid_payload")
				continue
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			metrics.ObserveQueueError("dequeue")
			if !w.sleep(ctx) {
				return
			}
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", job.ID), zap.String("url", job.URL))

		metrics.IncActiveWorkers()
		outcome := w.handler.Handle(context.WithoutCancel(ctx), job)
		metrics.DecActiveWorkers()
		w.logger.Debug("job finished", zap.String("job_id", job.ID), zap.String("outcome", string(outcome)))
	}
}

func (w *Worker) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
