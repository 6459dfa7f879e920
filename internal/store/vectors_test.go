package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestIndex opens an index in a temporary directory.
func setupTestIndex(t *testing.T, metric Metric) *Index {
	t.Helper()

	ix, err := OpenIndex(t.TempDir(), "test_collection", metric)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })

	return ix
}

func unit(v ...float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func TestOpenIndex_CreatesDirectoryAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "vector_db")

	ix, err := OpenIndex(dir, "email_embeddings", MetricL2)
	require.NoError(t, err)
	defer ix.Close()

	_, err = os.Stat(filepath.Join(dir, "email_embeddings.db"))
	assert.NoError(t, err)
	assert.Equal(t, "email_embeddings", ix.Collection())
	assert.Equal(t, MetricL2, ix.Metric())
}

func TestOpenIndex_RequiresCollection(t *testing.T) {
	_, err := OpenIndex(t.TempDir(), "", MetricL2)
	assert.Error(t, err)
}

func TestIndex_InsertAndGet(t *testing.T) {
	ix := setupTestIndex(t, MetricL2)
	ctx := context.Background()

	err := ix.Insert(ctx, Item{
		ID:       "msg-1",
		Vector:   []float32{0.5, 0.25, -1},
		Text:     "Invoice\n\nPlease pay",
		Metadata: map[string]string{MetaSubject: "Invoice", MetaSender: "billing@example.com"},
	}, "hash-trigram")
	require.NoError(t, err)

	item, err := ix.Get(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25, -1}, item.Vector)
	assert.Equal(t, "Invoice\n\nPlease pay", item.Text)
	assert.Equal(t, "billing@example.com", item.Metadata[MetaSender])
	assert.Equal(t, "hash-trigram", item.Model)
	assert.False(t, item.CreatedAt.IsZero())

	_, err = ix.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndex_InsertReplacesSameID(t *testing.T) {
	ix := setupTestIndex(t, MetricL2)
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, Item{ID: "x", Vector: []float32{1, 0}, Text: "first", Metadata: map[string]string{"a": "1"}}, "m"))
	require.NoError(t, ix.Insert(ctx, Item{ID: "x", Vector: []float32{0, 1}, Text: "second", Metadata: map[string]string{"b": "2"}}, "m"))

	assert.Equal(t, 1, ix.Count(ctx))

	item, err := ix.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "second", item.Text)
	assert.Equal(t, map[string]string{"b": "2"}, item.Metadata)
	assert.Equal(t, []float32{0, 1}, item.Vector)
}

func TestIndex_InsertRejectsInvalidItems(t *testing.T) {
	ix := setupTestIndex(t, MetricL2)
	ctx := context.Background()

	err := ix.Insert(ctx, Item{ID: "", Vector: []float32{1}}, "m")
	assert.True(t, IsIndexError(err))

	err = ix.Insert(ctx, Item{ID: "a"}, "m")
	assert.ErrorIs(t, err, ErrEmptyVector)

	require.NoError(t, ix.Insert(ctx, Item{ID: "a", Vector: []float32{1, 0, 0}}, "m"))
	err = ix.Insert(ctx, Item{ID: "b", Vector: []float32{1, 0}}, "m")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.True(t, IsIndexError(err))
}

func TestIndex_InsertReplacesOnlyItemWithNewDimension(t *testing.T) {
	ix := setupTestIndex(t, MetricL2)
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, Item{ID: "a", Vector: []float32{1, 0, 0}}, "m"))
	require.NoError(t, ix.Insert(ctx, Item{ID: "a", Vector: []float32{0, 1}}, "m"))

	item, err := ix.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, item.Vector)

	// with a second item stored, the old dimensionality is enforced again
	require.NoError(t, ix.Insert(ctx, Item{ID: "b", Vector: []float32{1, 0}}, "m"))
	err = ix.Insert(ctx, Item{ID: "a", Vector: []float32{1, 0, 0}}, "m")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestIndex_QueryOrdersNearestFirst(t *testing.T) {
	ix := setupTestIndex(t, MetricL2)
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, Item{ID: "far", Vector: unit(0, 1, 0)}, "m"))
	require.NoError(t, ix.Insert(ctx, Item{ID: "near", Vector: unit(1, 0.1, 0)}, "m"))
	require.NoError(t, ix.Insert(ctx, Item{ID: "mid", Vector: unit(1, 0.6, 0)}, "m"))

	matches, err := ix.Query(ctx, unit(1, 0, 0), 10, "")
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "near", matches[0].ID)
	assert.Equal(t, "mid", matches[1].ID)
	assert.Equal(t, "far", matches[2].ID)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
		assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
	}
	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Score, 1.0)
	}
}

func TestIndex_QueryRespectsLimit(t *testing.T) {
	ix := setupTestIndex(t, MetricL2)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, ix.Insert(ctx, Item{ID: id, Vector: []float32{1, 0}}, "m"))
	}

	matches, err := ix.Query(ctx, []float32{1, 0}, 2, "")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	// equal distances fall back to id order
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "b", matches[1].ID)

	matches, err = ix.Query(ctx, []float32{1, 0}, 0, "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestIndex_QueryExcludesSelf(t *testing.T) {
	ix := setupTestIndex(t, MetricL2)
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, Item{ID: "self", Vector: unit(1, 1)}, "m"))
	require.NoError(t, ix.Insert(ctx, Item{ID: "other", Vector: unit(1, 0.9)}, "m"))

	matches, err := ix.Query(ctx, unit(1, 1), 1, "self")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "other", matches[0].ID)

	matches, err = ix.Query(ctx, unit(1, 1), 10, "self")
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "self", m.ID)
	}
}

func TestIndex_ScoreConversion(t *testing.T) {
	ctx := context.Background()

	t.Run("l2 identical unit vectors score one", func(t *testing.T) {
		ix := setupTestIndex(t, MetricL2)
		require.NoError(t, ix.Insert(ctx, Item{ID: "a", Vector: unit(3, 4)}, "m"))

		matches, err := ix.Query(ctx, unit(3, 4), 1, "")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
		assert.InDelta(t, 0.0, matches[0].Distance, 1e-6)
	})

	t.Run("l2 orthogonal unit vectors score zero", func(t *testing.T) {
		ix := setupTestIndex(t, MetricL2)
		require.NoError(t, ix.Insert(ctx, Item{ID: "a", Vector: []float32{0, 1}}, "m"))

		matches, err := ix.Query(ctx, []float32{1, 0}, 1, "")
		require.NoError(t, err)
		assert.InDelta(t, 0.0, matches[0].Score, 1e-6)
		assert.InDelta(t, 2.0, matches[0].Distance, 1e-6)
	})

	t.Run("l2 distant unnormalised vectors clamp to zero", func(t *testing.T) {
		ix := setupTestIndex(t, MetricL2)
		require.NoError(t, ix.Insert(ctx, Item{ID: "a", Vector: []float32{10, 10}}, "m"))

		matches, err := ix.Query(ctx, []float32{-10, -10}, 1, "")
		require.NoError(t, err)
		assert.Equal(t, 0.0, matches[0].Score)
	})

	t.Run("cosine opposite vectors score zero", func(t *testing.T) {
		ix := setupTestIndex(t, MetricCosine)
		require.NoError(t, ix.Insert(ctx, Item{ID: "same", Vector: []float32{2, 2}}, "m"))
		require.NoError(t, ix.Insert(ctx, Item{ID: "opposite", Vector: []float32{-1, -1}}, "m"))

		matches, err := ix.Query(ctx, []float32{1, 1}, 2, "")
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "same", matches[0].ID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
		assert.InDelta(t, 0.0, matches[1].Score, 1e-6)
	})
}

func TestIndex_QueryEmptyAndCleared(t *testing.T) {
	ix := setupTestIndex(t, MetricL2)
	ctx := context.Background()

	matches, err := ix.Query(ctx, []float32{1, 0}, 10, "")
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, ix.Insert(ctx, Item{ID: "a", Vector: []float32{1, 0}}, "m"))
	require.NoError(t, ix.Insert(ctx, Item{ID: "b", Vector: []float32{0, 1}}, "m"))
	assert.Equal(t, 2, ix.Count(ctx))

	require.NoError(t, ix.Clear(ctx))
	assert.Equal(t, 0, ix.Count(ctx))

	matches, err = ix.Query(ctx, []float32{1, 0}, 10, "")
	require.NoError(t, err)
	assert.Empty(t, matches)

	// a cleared index accepts a new dimensionality
	require.NoError(t, ix.Insert(ctx, Item{ID: "c", Vector: []float32{1, 0, 0}}, "m"))
}

func TestIndex_QueryDimensionMismatch(t *testing.T) {
	ix := setupTestIndex(t, MetricL2)
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, Item{ID: "a", Vector: []float32{1, 0, 0}}, "m"))

	_, err := ix.Query(ctx, []float32{1, 0}, 5, "")
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ix.Query(ctx, nil, 5, "")
	assert.ErrorIs(t, err, ErrEmptyVector)
}

func TestIndex_CountAfterCloseIsZero(t *testing.T) {
	ix, err := OpenIndex(t.TempDir(), "c", MetricL2)
	require.NoError(t, err)
	require.NoError(t, ix.Insert(context.Background(), Item{ID: "a", Vector: []float32{1}}, "m"))
	require.NoError(t, ix.Close())

	assert.Equal(t, 0, ix.Count(context.Background()))

	_, err = ix.Query(context.Background(), []float32{1}, 1, "")
	assert.True(t, IsIndexError(err))
}

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	ix, err := OpenIndex(dir, "c", MetricL2)
	require.NoError(t, err)
	require.NoError(t, ix.Insert(ctx, Item{ID: "a", Vector: []float32{1, 2}, Text: "kept"}, "m"))
	require.NoError(t, ix.Close())

	ix, err = OpenIndex(dir, "c", MetricL2)
	require.NoError(t, err)
	defer ix.Close()

	assert.Equal(t, 1, ix.Count(ctx))
	item, err := ix.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "kept", item.Text)
}

func TestIndex_Stats(t *testing.T) {
	ix := setupTestIndex(t, MetricL2)
	ctx := context.Background()

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ItemCount)
	assert.Zero(t, stats.Dimension)

	require.NoError(t, ix.Insert(ctx, Item{ID: "a", Vector: []float32{1, 2, 3}}, "model-b"))
	require.NoError(t, ix.Insert(ctx, Item{ID: "b", Vector: []float32{1, 2, 3}}, "model-a"))

	stats, err = ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ItemCount)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, []string{"model-a", "model-b"}, stats.Models)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricL2, m)

	m, err = ParseMetric("cosine")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)

	_, err = ParseMetric("dot")
	assert.Error(t, err)
}

func TestBlobRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, float32(math.Pi)}
	out, err := blobToVector(vectorToBlob(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = blobToVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
