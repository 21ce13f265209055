package og

import (
	"context"
	"fmt"
	"maps"
)

// Resolver finds the record a job targets and writes its preview image.
type Resolver struct {
	store RecordStore
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store RecordStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks up the single record matching the job type and lookup value.
// A missing record yields (nil, nil).
func (r *Resolver) Resolve(ctx context.Context, jobType JobType, value string) (*Record, error) {
	kind := KindForJobType(jobType)
	rec, err := r.store.FindOne(ctx, kind, value)
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", kind, kind.LookupField(), err)
	}
	return rec, nil
}

// ShouldScrape reports whether a record warrants fetching its page: it must
// exist, and either lack an Open Graph image or the caller must force it.
func ShouldScrape(rec *Record, force bool) bool {
	if rec == nil {
		return false
	}
	if rec.Image(ImageKindOG) != "" && !force {
		return false
	}
	return true
}

// ApplyImage stores canonicalURL as the record's Open Graph image. Other
// image kinds already on the record are kept; only the images field is
// written.
func (r *Resolver) ApplyImage(ctx context.Context, rec *Record, canonicalURL string) error {
	images := make(map[string]string, len(rec.Images)+1)
	maps.Copy(images, rec.Images)
	images[ImageKindOG] = canonicalURL

	if err := r.store.UpdateImages(ctx, rec.Kind, rec.ID, images); err != nil {
		return fmt.Errorf("update %s %s images: %w", rec.Kind, rec.ID, err)
	}
	rec.Images = images
	return nil
}
