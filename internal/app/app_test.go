package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/og-worker/internal/alert"
	"github.com/JakeFAU/og-worker/internal/app"
	"github.com/JakeFAU/og-worker/internal/config"
	"github.com/JakeFAU/og-worker/internal/og"
	queueMemory "github.com/JakeFAU/og-worker/internal/queue/memory"
	redisqueue "github.com/JakeFAU/og-worker/internal/queue/redis"
	storageMemory "github.com/JakeFAU/og-worker/internal/storage/memory"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

type closingQueue struct {
	og.Queue
	closed int
	err    error
}

func (q *closingQueue) Close() error {
	q.closed++
	return q.err
}

func TestNewMemoryBackends(t *testing.T) {
	a, err := app.New(context.Background(), defaultConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.IsType(t, &storageMemory.RecordStore{}, a.Store())
	assert.IsType(t, &queueMemory.Queue{}, a.Queue())
	assert.IsType(t, alert.Nop{}, a.Reporter())
	assert.NotNil(t, a.Logger())
}

func TestNewNilLogger(t *testing.T) {
	a, err := app.New(context.Background(), defaultConfig(t), nil)
	require.NoError(t, err)
	assert.NotNil(t, a.Logger())
	require.NoError(t, a.Close())
}

func TestNewRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := defaultConfig(t)
	cfg.Queue.Backend = config.BackendRedis
	cfg.Redis.Addr = mr.Addr()
	cfg.Worker.QueueName = "og-test"

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	q, ok := a.Queue().(*redisqueue.Queue)
	require.True(t, ok)
	assert.Equal(t, "queue:og-test", q.Key())
}

func TestNewRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := defaultConfig(t)
	cfg.Queue.Backend = config.BackendRedis
	cfg.Redis.Addr = addr

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "init redis queue")
}

func TestNewUnknownBackends(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Storage.Backend = "sqlite"
	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, `unknown storage backend "sqlite"`)

	cfg = defaultConfig(t)
	cfg.Queue.Backend = "kafka"
	_, err = app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, `unknown queue backend "kafka"`)
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Storage.Backend = config.BackendPostgres

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "init postgres store")
}

func TestNewBadSentryDSN(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Sentry.DSN = "not a dsn"

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "init sentry")
}

func TestFailedInitClosesOpenedServices(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Storage.Backend = "sqlite"
	q := &closingQueue{Queue: queueMemory.NewQueue(1)}

	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithQueue(q))
	require.Error(t, err)
	// The injected queue is owned by the caller.
	assert.Zero(t, q.closed)
}

func TestCloseLeavesInjectedQueueOpen(t *testing.T) {
	q := &closingQueue{Queue: queueMemory.NewQueue(1), err: errors.New("boom")}
	a, err := app.New(context.Background(), defaultConfig(t), zap.NewNop(), app.WithQueue(q))
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.Zero(t, q.closed)
}

func TestFetchConfigMirrorsSettings(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Fetch.TwitterFallback = true
	cfg.Fetch.MaxRedirects = 4

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	fc := a.FetchConfig()
	assert.True(t, fc.TwitterFallback)
	assert.Equal(t, 4, fc.MaxRedirects)
	assert.Equal(t, cfg.Fetch.Timeout, fc.Timeout)
	assert.Equal(t, cfg.Fetch.BlockedExtensions, fc.BlockedExtensions)
}

func TestDispatcherProcessesEnqueuedJob(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><meta property="og:image" content="/img/cover.png"></head></html>`))
	}))
	t.Cleanup(page.Close)

	store := storageMemory.NewRecordStore()
	require.NoError(t, store.Put(og.Record{ID: "a1", Kind: og.KindArticle, Lookup: page.URL}))

	cfg := defaultConfig(t)
	cfg.Worker.Concurrency = 2
	a, err := app.New(context.Background(), cfg, zaptest.NewLogger(t), app.WithRecordStore(store))
	require.NoError(t, err)

	d, err := a.NewDispatcher()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	job, err := d.Enqueue(ctx, og.Job{URL: page.URL, Type: og.JobTypeArticle})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)

	require.Eventually(t, func() bool {
		rec, ok := store.Get("a1")
		return ok && rec.Images[og.ImageKindOG] != ""
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, a.Close())
	<-done
}

func TestServerReportsReadiness(t *testing.T) {
	a, err := app.New(context.Background(), defaultConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.NewServer(nil).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
