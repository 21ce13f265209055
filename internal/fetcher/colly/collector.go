// Package collyfetcher implements the URL gatekeeper probe and the Open Graph
// page fetch on top of gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Defaults mirror the limits the worker has always applied.
const (
	DefaultTimeout       = 10 * time.Second
	DefaultMaxRedirects  = 10
	DefaultProbeMaxBytes = 1024 * 1024
	DefaultMaxPageBytes  = 10 * 1024 * 1024
	DefaultUserAgent     = "og-worker/1.0 (+https://github.com/JakeFAU/og-worker)"
)

// DefaultBlockedExtensions lists media file types that are never fetched.
var DefaultBlockedExtensions = []string{"mp3", "mp4", "mov", "m4a", "mpeg"}

var (
	errTooManyRedirects   = errors.New("too many redirects")
	errBodyTooLarge       = errors.New("response body too large")
	errMissingContentType = errors.New("missing content-type header")
)

// Config controls collector behavior for both the probe and the page fetch.
type Config struct {
	UserAgent         string
	Timeout           time.Duration
	MaxRedirects      int
	ProbeMaxBytes     int
	MaxPageBytes      int
	BlockedExtensions []string
	TwitterFallback   bool
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
	if c.ProbeMaxBytes <= 0 {
		c.ProbeMaxBytes = DefaultProbeMaxBytes
	}
	if c.MaxPageBytes < 0 {
		c.MaxPageBytes = 0
	}
	if c.BlockedExtensions == nil {
		c.BlockedExtensions = DefaultBlockedExtensions
	}
	return c
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// newBaseCollector builds a collector whose shared HTTP backend is fully
// configured up front. Per-request clones only attach callbacks, since
// clones share the backend client.
func newBaseCollector(cfg Config, maxBodySize int) *colly.Collector {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.UserAgent = cfg.UserAgent
	c.MaxBodySize = maxBodySize
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	maxRedirects := cfg.MaxRedirects
	c.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("%w: stopped after %d", errTooManyRedirects, len(via))
		}
		return nil
	})
	return c
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
