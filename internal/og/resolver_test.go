package og

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records  map[RecordKind]map[string]*Record
	findErr  error
	writeErr error
	lookups  []string
	writes   []map[string]string
}

func (s *fakeStore) FindOne(_ context.Context, kind RecordKind, value string) (*Record, error) {
	s.lookups = append(s.lookups, kind.String()+":"+kind.LookupField()+"="+value)
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.records[kind][value], nil
}

func (s *fakeStore) UpdateImages(_ context.Context, _ RecordKind, _ string, images map[string]string) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, images)
	return nil
}

func TestResolveUsesKindAndField(t *testing.T) {
	t.Parallel()

	episode := &Record{ID: "e1", Kind: KindEpisode, Lookup: "http://ex.com/e"}
	store := &fakeStore{records: map[RecordKind]map[string]*Record{
		KindEpisode: {"http://ex.com/e": episode},
	}}
	r := NewResolver(store)

	got, err := r.Resolve(context.Background(), JobTypeEpisode, "http://ex.com/e")
	require.NoError(t, err)
	assert.Same(t, episode, got)

	got, err = r.Resolve(context.Background(), "bogus", "http://ex.com/e")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, []string{
		"episode:link=http://ex.com/e",
		"article:url=http://ex.com/e",
	}, store.lookups)
}

func TestResolveWrapsStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	r := NewResolver(&fakeStore{findErr: boom})
	_, err := r.Resolve(context.Background(), JobTypePodcast, "http://ex.com/p")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "find podcast by url")
}

func TestShouldScrape(t *testing.T) {
	t.Parallel()

	withImage := &Record{Images: map[string]string{ImageKindOG: "http://ex.com/old.jpg"}}
	without := &Record{Images: map[string]string{"thumb": "http://ex.com/t.jpg"}}

	assert.False(t, ShouldScrape(nil, false))
	assert.False(t, ShouldScrape(nil, true))
	assert.False(t, ShouldScrape(withImage, false))
	assert.True(t, ShouldScrape(withImage, true))
	assert.True(t, ShouldScrape(without, false))
	assert.True(t, ShouldScrape(&Record{}, false))
}

func TestApplyImagePreservesOtherKinds(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	rec := &Record{ID: "a1", Kind: KindArticle, Images: map[string]string{
		"thumb":   "http://ex.com/t.jpg",
		"favicon": "http://ex.com/f.ico",
	}}
	original := rec.Images

	require.NoError(t, NewResolver(store).ApplyImage(context.Background(), rec, "http://cdn.ex.com/img.jpg"))

	require.Len(t, store.writes, 1)
	assert.Equal(t, map[string]string{
		"thumb":   "http://ex.com/t.jpg",
		"favicon": "http://ex.com/f.ico",
		"og":      "http://cdn.ex.com/img.jpg",
	}, store.writes[0])
	assert.Equal(t, store.writes[0], rec.Images)
	assert.NotContains(t, original, ImageKindOG, "caller's map must not be mutated")
}

func TestApplyImageNilImages(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	rec := &Record{ID: "p1", Kind: KindPodcast}
	require.NoError(t, NewResolver(store).ApplyImage(context.Background(), rec, "http://ex.com/i.png"))
	assert.Equal(t, map[string]string{"og": "http://ex.com/i.png"}, rec.Images)
}

func TestApplyImageLeavesRecordOnFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("write failed")
	rec := &Record{ID: "a1", Kind: KindArticle, Images: map[string]string{"thumb": "t"}}
	err := NewResolver(&fakeStore{writeErr: boom}).ApplyImage(context.Background(), rec, "http://ex.com/i.png")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, map[string]string{"thumb": "t"}, rec.Images)
}
