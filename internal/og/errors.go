package og

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed is returned by Dequeue once a queue has been shut down.
	ErrQueueClosed = errors.New("queue closed")
	// ErrInvalidJob marks a queue payload that could not be decoded into a Job.
	ErrInvalidJob = errors.New("invalid job payload")
	// ErrRecordNotFound is returned when an update targets a record that no longer exists.
	ErrRecordNotFound = errors.New("record not found")
	// ErrFetch is matched by every FetchError.
	ErrFetch = errors.New("fetch failed")
)

// FetchError reports a transport or extraction failure for a URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFetch) match any FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }
