// Package ratelimit throttles outbound fetches per host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/og-worker/internal/metrics"
	"github.com/JakeFAU/og-worker/internal/og"
)

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// Config holds rate limiter configuration. A non-positive RPS disables
// throttling.
type Config struct {
	HostRPS   float64
	HostBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	metrics.Init()
	r := rate.Limit(cfg.HostRPS)
	if cfg.HostRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.HostBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Enabled reports whether the limiter ever blocks.
func (l *Limiter) Enabled() bool {
	return l.rate != rate.Inf
}

// Wait blocks until a token is available for the URL's host.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if !l.Enabled() {
		return nil
	}
	host := metrics.SanitizeHost(rawURL)
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(waited)
	}
	return nil
}

// Hosts returns how many hosts have a bucket.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Gatekeeper throttles the eligibility probe. A wait that fails rejects
// the URL.
type Gatekeeper struct {
	limiter *Limiter
	next    og.Gatekeeper
}

// WrapGatekeeper returns next throttled by l.
func WrapGatekeeper(l *Limiter, next og.Gatekeeper) *Gatekeeper {
	return &Gatekeeper{limiter: l, next: next}
}

// IsFetchEligible implements og.Gatekeeper.
func (g *Gatekeeper) IsFetchEligible(ctx context.Context, rawURL string) bool {
	if err := g.limiter.Wait(ctx, rawURL); err != nil {
		return false
	}
	return g.next.IsFetchEligible(ctx, rawURL)
}

// Fetcher throttles the page fetch.
type Fetcher struct {
	limiter *Limiter
	next    og.MetadataFetcher
}

// WrapFetcher returns next throttled by l.
func WrapFetcher(l *Limiter, next og.MetadataFetcher) *Fetcher {
	return &Fetcher{limiter: l, next: next}
}

// FetchPreviewImage implements og.MetadataFetcher. A failed wait is a
// fetch error so the job ends as fetch_error rather than failed.
func (f *Fetcher) FetchPreviewImage(ctx context.Context, rawURL string) (string, error) {
	if err := f.limiter.Wait(ctx, rawURL); err != nil {
		return "", &og.FetchError{URL: rawURL, Err: err}
	}
	return f.next.FetchPreviewImage(ctx, rawURL)
}
