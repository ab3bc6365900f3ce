package doc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

func TestFullTextIndexFindsTokenPosting(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{
		Name: "articles", Type: types.CollectionDocument,
		Indexes: []types.IndexDef{{Name: "by_body", Kind: types.IndexFullText, Fields: []string{"body"}}},
	})
	d, err := c.Insert(map[string]interface{}{"body": "The quick brown fox."})
	require.NoError(t, err)

	cf := c.indexes.cfs["by_body"]
	it := cf.PrefixIterator([]byte("quick\x00"))
	defer it.Close()
	require.True(t, it.Next())
	require.Equal(t, "quick\x00"+d.Key, string(it.Key()))
}

func TestGeoIndexEntryAddedAndRemovedOnDelete(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{
		Name: "places", Type: types.CollectionDocument,
		Indexes: []types.IndexDef{{Name: "by_latlon", Kind: types.IndexGeo, Fields: []string{"lat", "lon"}}},
	})
	d, err := c.Insert(map[string]interface{}{"lat": 40.7128, "lon": -74.0060})
	require.NoError(t, err)

	cf := c.indexes.cfs["by_latlon"]
	hash, ok := geohashKey(c.indexes.defs[0], map[string]interface{}{"lat": 40.7128, "lon": -74.0060})
	require.True(t, ok)
	it := cf.PrefixIterator(hash)
	require.True(t, it.Next())
	it.Close()

	require.NoError(t, c.Delete(d.Key))
	it2 := cf.PrefixIterator(hash)
	require.False(t, it2.Next())
	it2.Close()
}

func TestTTLIndexEntryRemovedOnUpdate(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{
		Name: "sessions", Type: types.CollectionDocument,
		Indexes: []types.IndexDef{{Name: "expiry", Kind: types.IndexTTL, Fields: []string{}, TTLField: "created_at", TTLSeconds: 60}},
	})
	d, err := c.Insert(map[string]interface{}{"created_at": float64(1000)})
	require.NoError(t, err)

	cf := c.indexes.cfs["expiry"]
	before := countEntries(t, cf)
	require.Equal(t, 1, before)

	_, err = c.Update(d.Key, map[string]interface{}{"created_at": float64(2000)})
	require.NoError(t, err)

	after := countEntries(t, cf)
	require.Equal(t, 1, after)
}

func countEntries(t *testing.T, cf storage.CF) int {
	t.Helper()
	it := cf.PrefixIterator(nil)
	defer it.Close()
	n := 0
	for it.Next() {
		n++
	}
	return n
}
