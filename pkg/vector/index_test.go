package vector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchReturnsNearestFirst(t *testing.T) {
	idx := NewIndex(2, 4, 20)
	idx.Upsert("origin", []float32{0, 0})
	idx.Upsert("near", []float32{1, 0})
	idx.Upsert("far", []float32{10, 10})

	results := idx.Search([]float32{0, 0}, 2)
	require.Len(t, results, 2)
	require.Equal(t, "origin", results[0].Key)
	require.Equal(t, "near", results[1].Key)
}

func TestUpsertMovesExistingPoint(t *testing.T) {
	idx := NewIndex(2, 4, 20)
	idx.Upsert("a", []float32{0, 0})
	idx.Upsert("b", []float32{5, 5})
	idx.Upsert("a", []float32{5, 5.1})

	results := idx.Search([]float32{5, 5}, 1)
	require.Len(t, results, 1)
	require.Contains(t, []string{"a", "b"}, results[0].Key)
}

func TestDeleteRemovesPointFromResults(t *testing.T) {
	idx := NewIndex(2, 4, 20)
	idx.Upsert("a", []float32{0, 0})
	idx.Upsert("b", []float32{1, 1})
	idx.Delete("a")

	require.Equal(t, 1, idx.Len())
	results := idx.Search([]float32{0, 0}, 5)
	for _, r := range results {
		require.NotEqual(t, "a", r.Key)
	}
}

func TestSnapshotRestoreRoundtrip(t *testing.T) {
	idx := NewIndex(2, 4, 20)
	idx.Upsert("a", []float32{1, 2})
	idx.Upsert("b", []float32{3, 4})

	data, err := idx.Snapshot()
	require.NoError(t, err)

	restored := NewIndex(2, 4, 20)
	require.NoError(t, restored.Restore(data))
	require.Equal(t, 2, restored.Len())

	results := restored.Search([]float32{1, 2}, 1)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].Key)
}

func TestEmptyIndexSearchReturnsNil(t *testing.T) {
	idx := NewIndex(2, 4, 20)
	require.Nil(t, idx.Search([]float32{0, 0}, 3))
}
