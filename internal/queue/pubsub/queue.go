// Package pubsubqueue implements og.Queue on Google Cloud Pub/Sub.
package pubsubqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/og-worker/internal/og"
)

// Config names the topic jobs are published to and the subscription workers
// receive from. Either may be a short ID or a full resource name.
type Config struct {
	ProjectID      string
	Topic          string
	Subscription   string
	MaxOutstanding int
}

// Queue publishes jobs to a topic and hands messages from a subscription to
// Dequeue callers. Messages are acked as soon as a caller takes them, so
// delivery is at-most-once.
type Queue struct {
	client     *pubsub.Client
	ownsClient bool
	publisher  *pubsub.Publisher
	subscriber *pubsub.Subscriber
	logger     *zap.Logger

	msgs    chan *pubsub.Message
	errs    chan error
	done    chan struct{}
	recvCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	receiving bool
	closed    bool
}

// New creates a Pub/Sub client using Application Default Credentials and
// wraps it in a Queue that closes the client on Close.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	q, err := NewWithClient(client, cfg, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	q.ownsClient = true
	return q, nil
}

// NewWithClient builds a Queue over an existing client.
func NewWithClient(client *pubsub.Client, cfg Config, logger *zap.Logger) (*Queue, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if cfg.Topic == "" && cfg.Subscription == "" {
		return nil, errors.New("pubsub topic or subscription is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		client: client,
		logger: logger,
		msgs:   make(chan *pubsub.Message),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	q.recvCtx, q.cancel = context.WithCancel(context.Background())
	if cfg.Topic != "" {
		q.publisher = client.Publisher(cfg.Topic)
	}
	if cfg.Subscription != "" {
		q.subscriber = client.Subscriber(cfg.Subscription)
		if cfg.MaxOutstanding > 0 {
			q.subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
		}
	}
	return q, nil
}

// Enqueue publishes a job and waits for the server to accept it. The
// caller's trace context travels in the message attributes.
func (q *Queue) Enqueue(ctx context.Context, job og.Job) error {
	if q.isClosed() {
		return og.ErrQueueClosed
	}
	if q.publisher == nil {
		return errors.New("pubsub topic is not configured")
	}
	data, err := og.EncodeJob(job)
	if err != nil {
		return err
	}

	msg := &pubsub.Message{Data: data, Attributes: make(map[string]string)}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	if _, err := q.publisher.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Dequeue waits for the next message on the subscription.
func (q *Queue) Dequeue(ctx context.Context) (og.Job, error) {
	if q.subscriber == nil {
		return og.Job{}, errors.New("pubsub subscription is not configured")
	}
	if err := q.ensureReceiving(); err != nil {
		return og.Job{}, err
	}

	select {
	case <-ctx.Done():
		return og.Job{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return og.Job{}, og.ErrQueueClosed
	case err := <-q.errs:
		return og.Job{}, fmt.Errorf("pubsub receive: %w", err)
	case msg := <-q.msgs:
		msg.Ack()
		job, err := og.DecodeJob(msg.Data)
		if err != nil {
			return og.Job{}, fmt.Errorf("message %s: %w", msg.ID, err)
		}
		return job, nil
	}
}

func (q *Queue) ensureReceiving() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return og.ErrQueueClosed
	}
	if q.receiving {
		return nil
	}
	q.receiving = true
	q.wg.Add(1)
	go q.receive()
	return nil
}

func (q *Queue) receive() {
	defer q.wg.Done()
	err := q.subscriber.Receive(q.recvCtx, func(ctx context.Context, msg *pubsub.Message) {
		select {
		case q.msgs <- msg:
		case <-ctx.Done():
			msg.Nack()
		}
	})

	q.mu.Lock()
	q.receiving = false
	q.mu.Unlock()

	if q.recvCtx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("receive stopped")
	}
	q.logger.Warn("pubsub receive stopped", zap.Error(err))
	select {
	case q.errs <- err:
	default:
	}
}

// Close stops receiving, flushes the publisher and, when the queue created
// the client, closes it.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	if q.publisher != nil {
		q.publisher.Stop()
	}
	if q.ownsClient {
		if err := q.client.Close(); err != nil {
			return fmt.Errorf("failed to close pubsub client: %w", err)
		}
	}
	return nil
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
