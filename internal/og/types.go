package og

import "fmt"

// JobType is the content type a job declares.
type JobType string

// Job types understood by the worker. Anything else resolves like an article.
const (
	JobTypeArticle JobType = "article"
	JobTypeEpisode JobType = "episode"
	JobTypePodcast JobType = "podcast"
)

// Job is one unit of work taken off the queue.
type Job struct {
	ID     string  `json:"id,omitempty"`
	URL    string  `json:"url" validate:"required"`
	Type   JobType `json:"type"`
	Update bool    `json:"update"`
}

// RecordKind identifies which collection a content record lives in.
type RecordKind int

// Record kinds.
const (
	KindArticle RecordKind = iota
	KindEpisode
	KindPodcast
)

// KindForJobType maps a job type onto the record kind it enriches.
// Unknown job types, including the empty string, resolve to KindArticle.
func KindForJobType(t JobType) RecordKind {
	switch t {
	case JobTypeEpisode:
		return KindEpisode
	case JobTypePodcast:
		return KindPodcast
	case JobTypeArticle:
		return KindArticle
	default:
		return KindArticle
	}
}

// LookupField names the unique field used to find a record of this kind.
func (k RecordKind) LookupField() string {
	if k == KindEpisode {
		return "link"
	}
	return "url"
}

func (k RecordKind) String() string {
	switch k {
	case KindArticle:
		return "article"
	case KindEpisode:
		return "episode"
	case KindPodcast:
		return "podcast"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ImageKindOG is the images key holding the Open Graph preview image.
const ImageKindOG = "og"

// Record is a transient view of a persisted article, episode or podcast.
type Record struct {
	ID     string
	Kind   RecordKind
	Lookup string
	Images map[string]string
}

// Image returns the stored image URL for the given kind, or "".
func (r *Record) Image(kind string) string {
	if r == nil || r.Images == nil {
		return ""
	}
	return r.Images[kind]
}

// Outcome is the terminal state a job ends in.
type Outcome string

// Job outcomes.
const (
	OutcomeNotFound        Outcome = "not_found"
	OutcomeAlreadyEnriched Outcome = "already_enriched"
	OutcomeInvalidURL      Outcome = "invalid_url"
	OutcomeFetchError      Outcome = "fetch_error"
	OutcomeNoImage         Outcome = "no_image"
	OutcomeStored          Outcome = "stored"
	OutcomeFailed          Outcome = "failed"
)
