package doc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

func openTestEngine(t *testing.T) storage.Engine {
	t.Helper()
	engine, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func newTestCollection(t *testing.T, meta types.CollectionMeta) *Collection {
	t.Helper()
	engine := openTestEngine(t)
	meta.Database = "db"
	c, err := Open(engine, meta, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestInsertAssignsKeyAndRev(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "items", Type: types.CollectionDocument})

	d, err := c.Insert(map[string]interface{}{"name": "widget"})
	require.NoError(t, err)
	require.NotEmpty(t, d.Key)
	require.NotEmpty(t, d.Rev)
	require.Equal(t, "items/"+d.Key, d.ID)

	got, err := c.Get(d.Key)
	require.NoError(t, err)
	require.Equal(t, "widget", got.Fields["name"])
}

func TestInsertHonorsCallerSuppliedKey(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "items", Type: types.CollectionDocument})

	d, err := c.Insert(map[string]interface{}{"_key": "fixed", "name": "widget"})
	require.NoError(t, err)
	require.Equal(t, "fixed", d.Key)
}

func TestInsertRejectsNonStringKey(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "items", Type: types.CollectionDocument})

	_, err := c.Insert(map[string]interface{}{"_key": 5})
	require.Error(t, err)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "items", Type: types.CollectionDocument})
	_, err := c.Get("nope")
	require.Error(t, err)
}

func TestUpdateChangesRevisionAndFields(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "items", Type: types.CollectionDocument})
	d, err := c.Insert(map[string]interface{}{"name": "widget", "qty": float64(1)})
	require.NoError(t, err)

	updated, err := c.Update(d.Key, map[string]interface{}{"qty": float64(2)})
	require.NoError(t, err)
	require.NotEqual(t, d.Rev, updated.Rev)
	require.Equal(t, "widget", updated.Fields["name"])
	require.Equal(t, float64(2), updated.Fields["qty"])
}

func TestUpdateWithRevConflict(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "items", Type: types.CollectionDocument})
	d, err := c.Insert(map[string]interface{}{"name": "widget"})
	require.NoError(t, err)

	_, err = c.UpdateWithRev(d.Key, "stale-rev", map[string]interface{}{"name": "gadget"})
	require.Error(t, err)

	_, err = c.UpdateWithRev(d.Key, d.Rev, map[string]interface{}{"name": "gadget"})
	require.NoError(t, err)
}

func TestUpdateRejectedOnTimeseries(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "events", Type: types.CollectionTimeseries})
	d, err := c.Insert(map[string]interface{}{"v": float64(1)})
	require.NoError(t, err)

	_, err = c.Update(d.Key, map[string]interface{}{"v": float64(2)})
	require.Error(t, err)
}

func TestDeleteRemovesDocument(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "items", Type: types.CollectionDocument})
	d, err := c.Insert(map[string]interface{}{"name": "widget"})
	require.NoError(t, err)

	require.NoError(t, c.Delete(d.Key))
	_, err = c.Get(d.Key)
	require.Error(t, err)
}

func TestEdgeCollectionRequiresFromTo(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "edges", Type: types.CollectionEdge})

	_, err := c.Insert(map[string]interface{}{"_from": "a/1"})
	require.Error(t, err)

	_, err = c.Insert(map[string]interface{}{"_from": "a/1", "_to": "a/2"})
	require.NoError(t, err)
}

func TestUniqueIndexRejectsDuplicateValue(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{
		Name: "users", Type: types.CollectionDocument,
		Indexes: []types.IndexDef{{Name: "by_email", Kind: types.IndexUnique, Fields: []string{"email"}}},
	})

	_, err := c.Insert(map[string]interface{}{"email": "a@example.com"})
	require.NoError(t, err)

	_, err = c.Insert(map[string]interface{}{"email": "a@example.com"})
	require.Error(t, err)
}

func TestScanAndTruncate(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "items", Type: types.CollectionDocument})
	for i := 0; i < 5; i++ {
		_, err := c.Insert(map[string]interface{}{"i": float64(i)})
		require.NoError(t, err)
	}

	docs, err := c.Scan(0)
	require.NoError(t, err)
	require.Len(t, docs, 5)
	require.EqualValues(t, 5, c.Count())

	n, err := c.Truncate()
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.EqualValues(t, 0, c.Count())
}

func TestDeleteBatchToleratesMissingKeys(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "items", Type: types.CollectionDocument})
	d, err := c.Insert(map[string]interface{}{"name": "widget"})
	require.NoError(t, err)

	n, err := c.DeleteBatch([]string{d.Key, "missing"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRecountDocumentsResyncsCounter(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "items", Type: types.CollectionDocument})
	for i := 0; i < 3; i++ {
		_, err := c.Insert(map[string]interface{}{"i": float64(i)})
		require.NoError(t, err)
	}
	c.bumpCount(100) // simulate counter drift
	n, err := c.RecountDocuments()
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.EqualValues(t, 3, c.Count())
}

func TestSchemaValidationRejectsNonConformantDocument(t *testing.T) {
	c := newTestCollection(t, types.CollectionMeta{Name: "items", Type: types.CollectionDocument})
	require.NoError(t, c.SetSchema(`{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`))

	_, err := c.Insert(map[string]interface{}{"qty": float64(1)})
	require.Error(t, err)

	_, err = c.Insert(map[string]interface{}{"name": "widget"})
	require.NoError(t, err)
}
