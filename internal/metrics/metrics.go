// Package metrics exposes Prometheus collectors for the OG worker.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch phases.
const (
	PhaseProbe = "probe"
	PhasePage  = "page"
)

// Fetch results.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
	ResultNoImage  = "no_image"
)

var (
	ogJobsTotal                *prometheus.CounterVec
	ogJobDurationSeconds       *prometheus.HistogramVec
	ogFetchTotal               *prometheus.CounterVec
	ogActiveWorkers            prometheus.Gauge
	ogQueueErrorsTotal         *prometheus.CounterVec
	ogRateLimitWaitSeconds     prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ogJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "og_jobs_total",
				Help: "Total number of OG jobs handled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		ogJobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "og_job_duration_seconds",
				Help:    "Histogram of OG job handling latencies, labeled by outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"outcome"},
		)

		ogFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "og_fetch_total",
				Help: "Total number of outbound fetches, labeled by phase and result.",
			},
			[]string{"phase", "result"},
		)

		ogActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "og_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		ogQueueErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "og_queue_errors_total",
				Help: "Total number of queue receive errors, labeled by kind.",
			},
			[]string{"kind"},
		)

		ogRateLimitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "og_rate_limit_wait_seconds",
				Help:    "Histogram of time spent waiting on the per-host fetch limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob records a handled job and how long it took.
func ObserveJob(outcome string, duration time.Duration) {
	ogJobsTotal.WithLabelValues(outcome).Inc()
	ogJobDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveFetch increments the fetch counter for a phase and result.
func ObserveFetch(phase, result string) {
	ogFetchTotal.WithLabelValues(phase, result).Inc()
}

// ObserveQueueError increments the queue error counter.
func ObserveQueueError(kind string) {
	ogQueueErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveRateLimitWait records time spent blocked on the host limiter.
func ObserveRateLimitWait(d time.Duration) {
	ogRateLimitWaitSeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	ogActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	ogActiveWorkers.Dec()
}
