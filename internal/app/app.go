// Package app builds the long-lived services the worker runs on from
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/og-worker/internal/alert"
	"github.com/JakeFAU/og-worker/internal/api"
	"github.com/JakeFAU/og-worker/internal/clock/system"
	"github.com/JakeFAU/og-worker/internal/config"
	"github.com/JakeFAU/og-worker/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/og-worker/internal/fetcher/colly"
	"github.com/JakeFAU/og-worker/internal/id/uuid"
	"github.com/JakeFAU/og-worker/internal/logging"
	"github.com/JakeFAU/og-worker/internal/og"
	"github.com/JakeFAU/og-worker/internal/policy/ratelimit"
	queueMemory "github.com/JakeFAU/og-worker/internal/queue/memory"
	pubsubqueue "github.com/JakeFAU/og-worker/internal/queue/pubsub"
	redisqueue "github.com/JakeFAU/og-worker/internal/queue/redis"
	storageMemory "github.com/JakeFAU/og-worker/internal/storage/memory"
	"github.com/JakeFAU/og-worker/internal/storage/postgres"
	"github.com/JakeFAU/og-worker/internal/urlnorm"
	"github.com/JakeFAU/og-worker/internal/worker"
)

// App holds the shared services for one process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    og.RecordStore
	queue    og.Queue
	reporter og.Reporter
	checks   map[string]api.Checker
	closers  []func() error
}

// Option customizes App construction.
type Option func(*App)

// WithRecordStore overrides the configured record store.
func WithRecordStore(store og.RecordStore) Option {
	return func(a *App) { a.store = store }
}

// WithQueue overrides the configured queue.
func WithQueue(q og.Queue) Option {
	return func(a *App) { a.queue = q }
}

// New builds the record store, queue and reporter selected by cfg. Anything
// already opened is closed again when a later step fails.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		checks: map[string]api.Checker{},
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.initReporter(); err != nil {
		return nil, a.abort(err)
	}
	if err := a.initStore(ctx); err != nil {
		return nil, a.abort(err)
	}
	if err := a.initQueue(ctx); err != nil {
		return nil, a.abort(err)
	}
	return a, nil
}

func (a *App) abort(err error) error {
	if closeErr := a.Close(); closeErr != nil {
		a.logger.Warn("cleanup after failed init", zap.Error(closeErr))
	}
	return err
}

func (a *App) initReporter() error {
	if a.cfg.Sentry.DSN == "" {
		a.reporter = alert.Nop{}
		return nil
	}
	reporter, err := alert.NewSentry(alert.Config{DSN: a.cfg.Sentry.DSN, Environment: a.cfg.Sentry.Environment})
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	a.reporter = reporter
	a.closers = append(a.closers, reporter.Close)
	a.logger.Info("sentry reporting enabled", zap.String("environment", a.cfg.Sentry.Environment))
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		store, err := postgres.NewRecordStore(ctx, a.postgresConfig())
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.store = store
		a.checks["store"] = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		a.logger.Info("using postgres record store")
	case config.BackendMemory, "":
		store := storageMemory.NewRecordStore()
		a.store = store
		a.checks["store"] = api.CheckerFunc(store.Ping)
		a.logger.Warn("using in-memory record store; records are not persisted")
	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
	return nil
}

func (a *App) initQueue(ctx context.Context) error {
	if a.queue != nil {
		return nil
	}
	queueLogger := logging.Component(a.logger, "queue")
	switch a.cfg.Queue.Backend {
	case config.BackendRedis:
		rcfg := redisqueue.Config{
			Addr:         a.cfg.Redis.Addr,
			Password:     a.cfg.Redis.Password,
			DB:           a.cfg.Redis.DB,
			KeyPrefix:    a.cfg.Redis.KeyPrefix,
			QueueName:    a.cfg.Worker.QueueName,
			BlockTimeout: a.cfg.Redis.BlockTimeout,
		}
		client, err := redisqueue.NewClient(ctx, rcfg)
		if err != nil {
			return fmt.Errorf("init redis queue: %w", err)
		}
		q := redisqueue.New(client, rcfg)
		a.queue = q
		a.checks["queue"] = q
		queueLogger.Info("using redis queue", zap.String("key", q.Key()))
	case config.BackendPubSub:
		q, err := pubsubqueue.New(ctx, pubsubqueue.Config{
			ProjectID:      a.cfg.PubSub.ProjectID,
			Topic:          a.cfg.PubSub.Topic,
			Subscription:   a.cfg.PubSub.Subscription,
			MaxOutstanding: a.cfg.Worker.Concurrency,
		}, queueLogger)
		if err != nil {
			return fmt.Errorf("init pubsub queue: %w", err)
		}
		a.queue = q
		queueLogger.Info("using pubsub queue",
			zap.String("topic", a.cfg.PubSub.Topic),
			zap.String("subscription", a.cfg.PubSub.Subscription),
		)
	case config.BackendMemory, "":
		a.queue = queueMemory.NewQueue(a.cfg.Queue.Depth)
		queueLogger.Info("using in-memory queue", zap.Int("depth", a.cfg.Queue.Depth))
	default:
		return fmt.Errorf("unknown queue backend %q", a.cfg.Queue.Backend)
	}
	a.closers = append(a.closers, a.queue.Close)
	return nil
}

func (a *App) postgresConfig() postgres.Config {
	return postgres.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	}
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the record store.
func (a *App) Store() og.RecordStore { return a.store }

// Queue returns the job queue.
func (a *App) Queue() og.Queue { return a.queue }

// Reporter returns the failure reporter.
func (a *App) Reporter() og.Reporter { return a.reporter }

// FetchConfig translates the fetch settings into collector config.
func (a *App) FetchConfig() collyfetcher.Config {
	return collyfetcher.Config{
		UserAgent:         a.cfg.Fetch.UserAgent,
		Timeout:           a.cfg.Fetch.Timeout,
		MaxRedirects:      a.cfg.Fetch.MaxRedirects,
		ProbeMaxBytes:     a.cfg.Fetch.ProbeMaxBytes,
		MaxPageBytes:      a.cfg.Fetch.MaxPageBytes,
		BlockedExtensions: a.cfg.Fetch.BlockedExtensions,
		TwitterFallback:   a.cfg.Fetch.TwitterFallback,
	}
}

// NewHandler wires the job pipeline.
func (a *App) NewHandler() *worker.Handler {
	fetchLogger := logging.Component(a.logger, "fetcher")
	fetchCfg := a.FetchConfig()

	var gate og.Gatekeeper = collyfetcher.NewProbe(fetchCfg, fetchLogger)
	var fetcher og.MetadataFetcher = collyfetcher.New(fetchCfg, fetchLogger)
	limiter := ratelimit.New(ratelimit.Config{HostRPS: a.cfg.Fetch.HostRPS, HostBurst: a.cfg.Fetch.HostBurst})
	if limiter.Enabled() {
		gate = ratelimit.WrapGatekeeper(limiter, gate)
		fetcher = ratelimit.WrapFetcher(limiter, fetcher)
		fetchLogger.Info("per-host fetch limit enabled",
			zap.Float64("rps", a.cfg.Fetch.HostRPS),
			zap.Int("burst", a.cfg.Fetch.HostBurst),
		)
	}

	return worker.NewHandler(
		og.NewResolver(a.store),
		gate,
		fetcher,
		urlnorm.New(),
		a.reporter,
		system.New(),
		worker.Config{QueueName: a.cfg.Worker.QueueName},
		logging.Component(a.logger, "worker"),
	)
}

// NewDispatcher builds the worker pool over the queue.
func (a *App) NewDispatcher() (*dispatcher.Dispatcher, error) {
	workers, err := dispatcher.NewPool(
		a.cfg.Worker.Concurrency,
		a.queue,
		a.NewHandler(),
		logging.Component(a.logger, "worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("build worker pool: %w", err)
	}
	return dispatcher.New(a.queue, workers, uuid.New()), nil
}

// NewServer builds the HTTP server; enqueuer may be nil.
func (a *App) NewServer(enqueuer api.Enqueuer) *api.Server {
	return api.NewServer(enqueuer, a.checks, logging.Component(a.logger, "api"))
}

// Close shuts services down in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
