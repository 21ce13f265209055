// Package redisqueue implements og.Queue on a Redis list.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/og-worker/internal/og"
)

const (
	defaultKeyPrefix    = "queue:"
	defaultBlockTimeout = 5 * time.Second
	connectionTimeout   = 5 * time.Second
)

// ErrEmptyAddress is returned when no Redis address is configured.
var ErrEmptyAddress = errors.New("redis address is required")

// Config holds Redis connection and queue settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	QueueName    string
	BlockTimeout time.Duration
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Queue pushes JSON-encoded jobs onto the head of a list and pops them from
// the tail, so delivery is FIFO.
type Queue struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
	closed       atomic.Bool
}

// New wraps an existing client. The queue owns the client and closes it on Close.
func New(client *redis.Client, cfg Config) *Queue {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	name := cfg.QueueName
	if name == "" {
		name = "og"
	}
	timeout := cfg.BlockTimeout
	if timeout <= 0 {
		timeout = defaultBlockTimeout
	}
	return &Queue{
		client:       client,
		key:          prefix + name,
		blockTimeout: timeout,
	}
}

// Key returns the Redis list key backing the queue.
func (q *Queue) Key() string {
	return q.key
}

// Enqueue appends a job.
func (q *Queue) Enqueue(ctx context.Context, job og.Job) error {
	if q.closed.Load() {
		return og.ErrQueueClosed
	}
	data, err := og.EncodeJob(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", q.key, err)
	}
	return nil
}

// Dequeue blocks until a job is available. Payloads that do not decode are
// consumed and reported as og.ErrInvalidJob.
func (q *Queue) Dequeue(ctx context.Context) (og.Job, error) {
	for {
		if q.closed.Load() {
			return og.Job{}, og.ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return og.Job{}, fmt.Errorf("dequeue canceled: %w", err)
		}

		res, err := q.client.BRPop(ctx, q.blockTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return og.Job{}, fmt.Errorf("dequeue canceled: %w", ctxErr)
			}
			if q.closed.Load() {
				return og.Job{}, og.ErrQueueClosed
			}
			return og.Job{}, fmt.Errorf("redis brpop %s: %w", q.key, err)
		}
		// BRPOP replies with [key, value].
		if len(res) != 2 {
			return og.Job{}, fmt.Errorf("%w: unexpected brpop reply of %d elements", og.ErrInvalidJob, len(res))
		}
		return og.DecodeJob([]byte(res[1]))
	}
}

// Ping reports whether Redis is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close stops the queue and closes the client.
func (q *Queue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
