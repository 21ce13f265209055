package og

import (
	"context"
	"time"
)

// RecordStore looks up content records and writes their images mapping.
// FindOne returns (nil, nil) when no record matches.
type RecordStore interface {
	FindOne(ctx context.Context, kind RecordKind, value string) (*Record, error)
	UpdateImages(ctx context.Context, kind RecordKind, id string, images map[string]string) error
}

// Gatekeeper decides whether a URL is worth a full fetch. It never fails;
// every rejection is reported as false.
type Gatekeeper interface {
	IsFetchEligible(ctx context.Context, rawURL string) bool
}

// MetadataFetcher fetches a page and returns its Open Graph image URL.
// An empty string with a nil error means the page declares no image.
type MetadataFetcher interface {
	FetchPreviewImage(ctx context.Context, rawURL string) (string, error)
}

// Canonicalizer normalizes URLs to a stable textual form.
type Canonicalizer interface {
	Canonicalize(rawURL string) (string, error)
}

// Queue delivers jobs to workers.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}

// Reporter forwards job failures to an alerting sink.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string, extra map[string]any)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
