package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/og-worker/internal/dispatcher"
	"github.com/JakeFAU/og-worker/internal/og"
	"github.com/JakeFAU/og-worker/internal/queue/memory"
)

type fakeIDGen struct{}

func (fakeIDGen) NewID() (string, error) { return "job-1", nil }

type errEnqueuer struct{ err error }

func (e errEnqueuer) Enqueue(context.Context, og.Job) (og.Job, error) { return og.Job{}, e.err }

func serve(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, zap.NewNop()), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzAllHealthy(t *testing.T) {
	t.Parallel()

	checks := map[string]Checker{
		"queue": CheckerFunc(func(context.Context) error { return nil }),
		"store": CheckerFunc(func(context.Context) error { return nil }),
	}
	rec := serve(t, NewServer(nil, checks, nil), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestReadyzReportsFailures(t *testing.T) {
	t.Parallel()

	checks := map[string]Checker{
		"queue": CheckerFunc(func(context.Context) error { return nil }),
		"store": CheckerFunc(func(context.Context) error { return errors.New("connection refused") }),
	}
	rec := serve(t, NewServer(nil, checks, nil), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status   string            `json:"status"`
		Failures map[string]string `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, map[string]string{"store": "connection refused"}, body.Failures)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil)
	serve(t, s, http.MethodGet, "/healthz", nil)
	rec := serve(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestSubmitJob(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	s := NewServer(dispatcher.New(q, nil, fakeIDGen{}), nil, nil)

	rec := serve(t, s, http.MethodPost, "/v1/jobs", []byte(`{"url":"http://ex.com/ep","type":"episode","update":true}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"job_id":"job-1"}`, rec.Body.String())

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, og.Job{ID: "job-1", URL: "http://ex.com/ep", Type: og.JobTypeEpisode, Update: true}, job)
}

func TestSubmitJobErrors(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	s := NewServer(dispatcher.New(q, nil, fakeIDGen{}), nil, nil)

	rec := serve(t, s, http.MethodPost, "/v1/jobs", []byte(`{invalid`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, s, http.MethodPost, "/v1/jobs", []byte(`{"type":"article"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, q.Close())
	rec = serve(t, s, http.MethodPost, "/v1/jobs", []byte(`{"url":"http://ex.com"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	broken := NewServer(errEnqueuer{err: errors.New("redis down")}, nil, nil)
	rec = serve(t, broken, http.MethodPost, "/v1/jobs", []byte(`{"url":"http://ex.com"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"enqueue failed"}`, rec.Body.String())
}

func TestSubmitJobNotRoutedWithoutEnqueuer(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, nil), http.MethodPost, "/v1/jobs", []byte(`{}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDPassthrough(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	NewServer(nil, nil, nil).Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}
