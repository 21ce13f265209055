// Package alert forwards job failures to an error-tracking sink.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// Config configures the Sentry reporter. An empty DSN builds a client that
// processes events locally but sends nothing.
type Config struct {
	DSN         string
	Environment string
	// BeforeSend, when set, sees every event before transport.
	BeforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

// Sentry reports errors to Sentry on a dedicated hub.
type Sentry struct {
	hub *sentry.Hub
}

// NewSentry builds a Sentry reporter.
func NewSentry(cfg Config) (*Sentry, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		BeforeSend:  cfg.BeforeSend,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Report captures err with the given tags and extra context.
func (s *Sentry) Report(_ context.Context, err error, tags map[string]string, extra map[string]any) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetExtras(extra)
		s.hub.CaptureException(err)
	})
}

// Close flushes buffered events.
func (s *Sentry) Close() error {
	if !s.hub.Flush(flushTimeout) {
		return fmt.Errorf("sentry flush timed out after %s", flushTimeout)
	}
	return nil
}

// Nop discards every report.
type Nop struct{}

// Report does nothing.
func (Nop) Report(context.Context, error, map[string]string, map[string]any) {}
