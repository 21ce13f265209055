package collyfetcher

import (
	"bytes"
	"context"
	"net/url"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/og-worker/internal/metrics"
	"github.com/JakeFAU/og-worker/internal/og"
	"github.com/JakeFAU/og-worker/internal/opengraph"
)

// Fetcher implements og.MetadataFetcher: a full GET that follows a bounded
// number of redirects, then Open Graph extraction.
type Fetcher struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

type page struct {
	url  *url.URL
	body []byte
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Fetcher{
		cfg:    cfg,
		base:   newBaseCollector(cfg, cfg.MaxPageBytes),
		logger: logger,
	}
}

// FetchPreviewImage returns the page's Open Graph image URL, or "" when the
// page declares none. Failures are returned as *og.FetchError.
func (f *Fetcher) FetchPreviewImage(ctx context.Context, rawURL string) (string, error) {
	var (
		result   page
		fetchErr error
	)
	collector := f.base.Clone()
	f.configureCollectorHooks(collector, &result, &fetchErr)
	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		metrics.ObserveFetch(metrics.PhasePage, metrics.ResultError)
		return "", &og.FetchError{URL: rawURL, Err: err}
	}

	image, err := opengraph.ExtractImage(bytes.NewReader(result.body), result.url, opengraph.Options{
		TwitterFallback: f.cfg.TwitterFallback,
	})
	if err != nil {
		metrics.ObserveFetch(metrics.PhasePage, metrics.ResultError)
		return "", &og.FetchError{URL: rawURL, Err: err}
	}
	if image == "" {
		metrics.ObserveFetch(metrics.PhasePage, metrics.ResultNoImage)
		return "", nil
	}
	f.logger.Debug("open graph image extracted", zap.String("url", rawURL), zap.String("image", image))
	metrics.ObserveFetch(metrics.PhasePage, metrics.ResultOK)
	return image, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = page{body: append([]byte(nil), r.Body...)}
		if r.Request != nil {
			result.url = r.Request.URL
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}
