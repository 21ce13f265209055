package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/og-worker/internal/alert"
	"github.com/JakeFAU/og-worker/internal/clock/system"
	"github.com/JakeFAU/og-worker/internal/metrics"
	"github.com/JakeFAU/og-worker/internal/og"
)

// Config controls Handler behavior.
type Config struct {
	// QueueName tags failure reports with the queue the job came from.
	QueueName string
}

// Handler runs a single job through resolve, probe, fetch, canonicalize
// and persist.
type Handler struct {
	resolver *og.Resolver
	gate     og.Gatekeeper
	fetcher  og.MetadataFetcher
	canon    og.Canonicalizer
	reporter og.Reporter
	clock    og.Clock
	cfg      Config
	logger   *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(
	resolver *og.Resolver,
	gate og.Gatekeeper,
	fetcher og.MetadataFetcher,
	canon og.Canonicalizer,
	reporter og.Reporter,
	clock og.Clock,
	cfg Config,
	logger *zap.Logger,
) *Handler {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = alert.Nop{}
	}
	if clock == nil {
		clock = system.New()
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "og"
	}
	return &Handler{
		resolver: resolver,
		gate:     gate,
		fetcher:  fetcher,
		canon:    canon,
		reporter: reporter,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Handle processes one job and returns the outcome it ended in. It never
// panics and never returns an error: anything unexpected becomes
// og.OutcomeFailed and is reported.
func (h *Handler) Handle(ctx context.Context, job og.Job) (outcome og.Outcome) {
	start := h.clock.Now()
	logger := h.logger.With(
		zap.String("job_id", job.ID),
		zap.String("url", job.URL),
		zap.String("type", string(job.Type)),
	)
	logger.Info("scraping og image")

	defer func() {
		if r := recover(); r != nil {
			outcome = h.fail(ctx, job, logger, fmt.Errorf("panic while handling job: %v", r))
		}
		metrics.ObserveJob(string(outcome), h.clock.Now().Sub(start))
	}()

	outcome, err := h.process(ctx, job, logger)
	if err != nil {
		return h.fail(ctx, job, logger, err)
	}
	return outcome
}

func (h *Handler) process(ctx context.Context, job og.Job, logger *zap.Logger) (og.Outcome, error) {
	rec, err := h.resolver.Resolve(ctx, job.Type, job.URL)
	if err != nil {
		return og.OutcomeFailed, err
	}
	if rec == nil {
		kind := og.KindForJobType(job.Type)
		logger.Warn("record not found",
			zap.String("kind", kind.String()),
			zap.String("field", kind.LookupField()),
		)
		return og.OutcomeNotFound, nil
	}
	if !og.ShouldScrape(rec, job.Update) {
		logger.Info("record already has an og image",
			zap.String("record_id", rec.ID),
			zap.String("image", rec.Image(og.ImageKindOG)),
		)
		return og.OutcomeAlreadyEnriched, nil
	}

	if !h.gate.IsFetchEligible(ctx, job.URL) {
		logger.Info("url is not eligible for fetch")
		return og.OutcomeInvalidURL, nil
	}

	image, err := h.fetcher.FetchPreviewImage(ctx, job.URL)
	if err != nil {
		if errors.Is(err, og.ErrFetch) {
			logger.Info("page fetch failed", zap.Error(err))
			return og.OutcomeFetchError, nil
		}
		return og.OutcomeFailed, fmt.Errorf("fetch preview image: %w", err)
	}
	if image == "" {
		logger.Info("no og image found")
		return og.OutcomeNoImage, nil
	}

	canonical, err := h.canon.Canonicalize(image)
	if err != nil {
		return og.OutcomeFailed, fmt.Errorf("canonicalize image %q: %w", image, err)
	}
	if err := h.resolver.ApplyImage(ctx, rec, canonical); err != nil {
		return og.OutcomeFailed, err
	}
	logger.Info("stored og image",
		zap.String("record_id", rec.ID),
		zap.String("image", canonical),
	)
	return og.OutcomeStored, nil
}

func (h *Handler) fail(ctx context.Context, job og.Job, logger *zap.Logger, err error) og.Outcome {
	logger.Error("og job failed", zap.Error(err))
	h.reporter.Report(ctx, err,
		map[string]string{"queue": h.cfg.QueueName},
		map[string]any{"JobURL": job.URL, "JobType": string(job.Type)},
	)
	return og.OutcomeFailed
}
