package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/og-worker/internal/og"
)

var _ og.RecordStore = (*RecordStore)(nil)

func TestRecordStoreFindOne(t *testing.T) {
	t.Parallel()

	s := NewRecordStore()
	require.NoError(t, s.Put(og.Record{ID: "a1", Kind: og.KindArticle, Lookup: "http://ex.com/a"}))
	require.NoError(t, s.Put(og.Record{ID: "e1", Kind: og.KindEpisode, Lookup: "http://ex.com/a"}))

	rec, err := s.FindOne(context.Background(), og.KindEpisode, "http://ex.com/a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "e1", rec.ID)

	rec, err = s.FindOne(context.Background(), og.KindPodcast, "http://ex.com/a")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecordStoreRejectsDuplicateLookup(t *testing.T) {
	t.Parallel()

	s := NewRecordStore()
	require.NoError(t, s.Put(og.Record{ID: "a1", Kind: og.KindArticle, Lookup: "http://ex.com/a"}))
	require.Error(t, s.Put(og.Record{ID: "a2", Kind: og.KindArticle, Lookup: "http://ex.com/a"}))
	require.Error(t, s.Put(og.Record{Kind: og.KindArticle, Lookup: "http://ex.com/b"}))
}

func TestRecordStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	s := NewRecordStore()
	images := map[string]string{"thumb": "http://ex.com/t.png"}
	require.NoError(t, s.Put(og.Record{ID: "a1", Kind: og.KindArticle, Lookup: "u", Images: images}))
	images["thumb"] = "mutated"

	rec, err := s.FindOne(context.Background(), og.KindArticle, "u")
	require.NoError(t, err)
	rec.Images["og"] = "mutated"

	stored, ok := s.Get("a1")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"thumb": "http://ex.com/t.png"}, stored.Images)
}

func TestRecordStoreUpdateImages(t *testing.T) {
	t.Parallel()

	s := NewRecordStore()
	require.NoError(t, s.Put(og.Record{ID: "p1", Kind: og.KindPodcast, Lookup: "u"}))

	err := s.UpdateImages(context.Background(), og.KindPodcast, "p1", map[string]string{"og": "http://cdn/x.png"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Writes())

	stored, _ := s.Get("p1")
	assert.Equal(t, "http://cdn/x.png", stored.Images["og"])

	err = s.UpdateImages(context.Background(), og.KindArticle, "p1", nil)
	require.ErrorIs(t, err, og.ErrRecordNotFound)
	err = s.UpdateImages(context.Background(), og.KindPodcast, "missing", nil)
	require.ErrorIs(t, err, og.ErrRecordNotFound)
	assert.Equal(t, 1, s.Writes())
}
