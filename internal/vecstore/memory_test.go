package vecstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarityIdentities(t *testing.T) {
	v := []float32{0.3, -0.7, 0.2, 0.9}
	neg := make([]float32, len(v))
	for i := range v {
		neg[i] = -v[i]
	}

	require.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
	require.InDelta(t, -1.0, CosineSimilarity(v, neg), 1e-9)

	a := []float32{1, 0, 2}
	b := []float32{0, 3, 1}
	require.InDelta(t, CosineSimilarity(a, b), CosineSimilarity(b, a), 1e-12)
}

func TestCosineSimilarityDegenerate(t *testing.T) {
	zero := []float32{0, 0, 0}
	v := []float32{1, 2, 3}
	require.Equal(t, 0.0, CosineSimilarity(zero, v))
	require.Equal(t, 0.0, CosineSimilarity(v, zero))
	require.Equal(t, 0.0, CosineSimilarity(v, []float32{1, 2}))
	require.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func entry(chunkID, fileID string, emb []float32) Entry {
	return Entry{ChunkID: chunkID, FileID: fileID, Document: "doc " + chunkID, Embedding: emb}
}

func TestMemoryQueryOrderingAndTruncation(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Upsert(ctx, "course-1", []Entry{
		entry("c1", "f1", []float32{1, 0}),
		entry("c2", "f1", []float32{0.9, 0.1}),
		entry("c3", "f1", []float32{0, 1}),
		entry("c4", "f2", []float32{-1, 0}),
	}))

	matches, err := store.Query(ctx, "course-1", []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	require.Equal(t, "c1", matches[0].ChunkID)
	for i := 1; i < len(matches); i++ {
		require.GreaterOrEqual(t, matches[i].Distance, matches[i-1].Distance)
	}
}

func TestMemoryQueryEmptyPartition(t *testing.T) {
	store := NewMemory()
	matches, err := store.Query(context.Background(), "nope", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestMemoryQueryRestrictedToPartition(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Upsert(ctx, "course-a", []Entry{entry("a1", "f1", []float32{1, 0})}))
	require.NoError(t, store.Upsert(ctx, "course-b", []Entry{entry("b1", "f1", []float32{1, 0})}))

	matches, err := store.Query(ctx, "course-a", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "a1", matches[0].ChunkID)
}

func TestMemoryUpsertReplacesSameID(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Upsert(ctx, "course-1", []Entry{entry("c1", "f1", []float32{1, 0})}))
	updated := entry("c1", "f1", []float32{0, 1})
	updated.Document = "replaced"
	require.NoError(t, store.Upsert(ctx, "course-1", []Entry{updated}))

	matches, err := store.Query(ctx, "course-1", []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "replaced", matches[0].Document)
	require.InDelta(t, 0.0, matches[0].Distance, 1e-9)
}

func TestMemoryDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Upsert(ctx, "course-1", []Entry{entry("c1", "f1", []float32{1, 0})}))

	require.NoError(t, store.Delete(ctx, "course-1", []string{"c1", "missing"}))
	require.NoError(t, store.Delete(ctx, "course-1", []string{"c1"}))
	require.NoError(t, store.Delete(ctx, "other-course", []string{"c1"}))

	matches, err := store.Query(ctx, "course-1", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestMemoryDeleteFile(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Upsert(ctx, "course-1", []Entry{
		entry("c1", "file-a", []float32{1, 0}),
		entry("c2", "file-a", []float32{0, 1}),
		entry("c3", "file-b", []float32{1, 1}),
	}))

	require.NoError(t, store.DeleteFile(ctx, "course-1", "file-a"))
	matches, err := store.Query(ctx, "course-1", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "c3", matches[0].ChunkID)
}

func TestMemoryDeleteCourse(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Upsert(ctx, "course-1", []Entry{entry("c1", "f1", []float32{1, 0})}))
	require.NoError(t, store.DeleteCourse(ctx, "course-1"))
	require.NoError(t, store.DeleteCourse(ctx, "course-1"))

	matches, err := store.Query(ctx, "course-1", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, matches)
}
