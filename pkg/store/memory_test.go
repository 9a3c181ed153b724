package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/shopmate/internal/models"
	"github.com/xhad/shopmate/pkg/store"
)

func embedded(text string, offset int, vec ...float32) models.EmbeddedChunk {
	return models.EmbeddedChunk{
		Chunk:  models.Chunk{Text: text, SourceOffset: offset},
		Vector: vec,
	}
}

func TestMemoryStoreSearch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	require.NoError(t, s.Replace(ctx, []models.EmbeddedChunk{
		embedded("boots", 0, 1, 0),
		embedded("jackets", 10, 0, 1),
		embedded("rain jackets", 20, 0.2, 1),
	}))

	results, err := s.Search(ctx, []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "jackets", results[0].Text)
	assert.Equal(t, "rain jackets", results[1].Text)
	assert.Equal(t, 20, results[1].SourceOffset)
}

func TestMemoryStoreTiesKeepChunkOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	require.NoError(t, s.Replace(ctx, []models.EmbeddedChunk{
		embedded("first", 0, 1, 1),
		embedded("other", 5, -1, 0),
		embedded("second", 10, 1, 1),
		embedded("third", 20, 1, 1),
	}))

	results, err := s.Search(ctx, []float32{1, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []models.Chunk{
		{Text: "first", SourceOffset: 0},
		{Text: "second", SourceOffset: 10},
		{Text: "third", SourceOffset: 20},
	}, results)
}

func TestMemoryStoreKLargerThanIndex(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Replace(ctx, []models.EmbeddedChunk{embedded("only", 0, 1)}))

	results, err := s.Search(ctx, []float32{1}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = s.Search(ctx, []float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStoreEmpty(t *testing.T) {
	s := store.NewMemoryStore()

	results, err := s.Search(context.Background(), []float32{1, 2}, 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStoreDimensionChecks(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	err := s.Replace(ctx, []models.EmbeddedChunk{
		embedded("a", 0, 1, 0),
		embedded("b", 1, 1),
	})
	assert.Error(t, err)

	err = s.Replace(ctx, []models.EmbeddedChunk{embedded("a", 0)})
	assert.Error(t, err)

	require.NoError(t, s.Replace(ctx, []models.EmbeddedChunk{embedded("a", 0, 1, 0)}))
	_, err = s.Search(ctx, []float32{1, 0, 0}, 1)
	assert.Error(t, err)
}

func TestMemoryStoreReplaceSwapsContents(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	require.NoError(t, s.Replace(ctx, []models.EmbeddedChunk{
		embedded("old", 0, 1, 0),
		embedded("old too", 3, 0, 1),
	}))
	require.NoError(t, s.Replace(ctx, []models.EmbeddedChunk{embedded("new", 0, 1, 0)}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := s.Search(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Text)
}
