// Package memory provides an in-memory record store for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/JakeFAU/og-worker/internal/og"
)

type recordKey struct {
	kind   og.RecordKind
	lookup string
}

// RecordStore implements og.RecordStore. Records are copied in and out, so
// callers never share maps with the store.
type RecordStore struct {
	mu       sync.RWMutex
	byID     map[string]og.Record
	byLookup map[recordKey]string
	writes   int
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		byID:     make(map[string]og.Record),
		byLookup: make(map[recordKey]string),
	}
}

// Put seeds a record. It fails if another record of the same kind already
// uses the lookup value.
func (s *RecordStore) Put(rec og.Record) error {
	if rec.ID == "" {
		return errors.New("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{kind: rec.Kind, lookup: rec.Lookup}
	if existing, ok := s.byLookup[key]; ok && existing != rec.ID {
		return fmt.Errorf("%s with %s %q already exists", rec.Kind, rec.Kind.LookupField(), rec.Lookup)
	}
	if old, ok := s.byID[rec.ID]; ok {
		delete(s.byLookup, recordKey{kind: old.Kind, lookup: old.Lookup})
	}
	s.byID[rec.ID] = cloneRecord(rec)
	s.byLookup[key] = rec.ID
	return nil
}

// Get returns a copy of the record with the given ID.
func (s *RecordStore) Get(id string) (og.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return og.Record{}, false
	}
	return cloneRecord(rec), true
}

// Writes reports how many UpdateImages calls have succeeded.
func (s *RecordStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// FindOne returns the record of the given kind whose lookup field equals value.
func (s *RecordStore) FindOne(_ context.Context, kind og.RecordKind, value string) (*og.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byLookup[recordKey{kind: kind, lookup: value}]
	if !ok {
		return nil, nil
	}
	rec := cloneRecord(s.byID[id])
	return &rec, nil
}

// UpdateImages replaces the images mapping of a record.
func (s *RecordStore) UpdateImages(_ context.Context, kind og.RecordKind, id string, images map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok || rec.Kind != kind {
		return fmt.Errorf("%s %s: %w", kind, id, og.ErrRecordNotFound)
	}
	rec.Images = maps.Clone(images)
	s.byID[id] = rec
	s.writes++
	return nil
}

// Ping always succeeds.
func (s *RecordStore) Ping(context.Context) error {
	return nil
}

func cloneRecord(rec og.Record) og.Record {
	rec.Images = maps.Clone(rec.Images)
	return rec
}
