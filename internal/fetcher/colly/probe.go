package collyfetcher

import (
	"context"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/og-worker/internal/metrics"
)

// Probe implements og.Gatekeeper: a cheap extension filter followed by a
// bounded GET whose content type must look like HTML.
type Probe struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// NewProbe builds a Probe.
func NewProbe(cfg Config, logger *zap.Logger) *Probe {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	// One byte over the cap lets an oversized body be told apart from one
	// that fits exactly.
	return &Probe{
		cfg:    cfg,
		base:   newBaseCollector(cfg, cfg.ProbeMaxBytes+1),
		logger: logger,
	}
}

// IsFetchEligible reports whether rawURL should be fetched in full. Any
// probe failure counts as ineligible.
func (p *Probe) IsFetchEligible(ctx context.Context, rawURL string) bool {
	if ext, blocked := p.blockedExtension(rawURL); blocked {
		p.logger.Warn("invalid file extension", zap.String("url", rawURL), zap.String("extension", ext))
		metrics.ObserveFetch(metrics.PhaseProbe, metrics.ResultRejected)
		return false
	}

	contentType, err := p.probe(ctx, rawURL)
	if err != nil {
		p.logger.Warn("probe request failed", zap.String("url", rawURL), zap.Error(err))
		metrics.ObserveFetch(metrics.PhaseProbe, metrics.ResultError)
		return false
	}
	if !strings.Contains(strings.ToLower(contentType), "html") {
		p.logger.Warn("content type is not html",
			zap.String("url", rawURL),
			zap.String("content_type", contentType),
		)
		metrics.ObserveFetch(metrics.PhaseProbe, metrics.ResultRejected)
		return false
	}
	metrics.ObserveFetch(metrics.PhaseProbe, metrics.ResultOK)
	return true
}

func (p *Probe) blockedExtension(rawURL string) (string, bool) {
	candidates := []string{strings.ToLower(rawURL)}
	if u, err := url.Parse(rawURL); err == nil {
		candidates = append(candidates, strings.ToLower(u.Path))
	}
	for _, ext := range p.cfg.BlockedExtensions {
		suffix := "." + strings.ToLower(strings.TrimPrefix(ext, "."))
		for _, c := range candidates {
			if strings.HasSuffix(c, suffix) {
				return ext, true
			}
		}
	}
	return "", false
}

func (p *Probe) probe(ctx context.Context, rawURL string) (string, error) {
	var (
		contentType string
		fetchErr    error
	)
	collector := p.base.Clone()
	p.configureCollectorHooks(collector, &contentType, &fetchErr)
	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return "", err
	}
	return contentType, nil
}

func (p *Probe) configureCollectorHooks(hooks collectorHooks, contentType *string, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		if len(r.Body) > p.cfg.ProbeMaxBytes {
			*fetchErr = errBodyTooLarge
			return
		}
		var ct string
		if r.Headers != nil {
			ct = r.Headers.Get("Content-Type")
		}
		if ct == "" {
			*fetchErr = errMissingContentType
			return
		}
		*contentType = ct
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}
