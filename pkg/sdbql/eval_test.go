package sdbql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solidb/solidb/pkg/columnar"
	"github.com/solidb/solidb/pkg/doc"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

// fakeRuntime is a minimal Runtime over in-process doc/columnar
// collections, standing in for pkg/database.Database in evaluator tests.
type fakeRuntime struct {
	engine    storage.Engine
	docs      map[string]*doc.Collection
	docMeta   map[string]types.CollectionMeta
	columnars map[string]*columnar.Collection
	colMeta   map[string]types.ColumnarMeta
}

func newFakeRuntime(t *testing.T) *fakeRuntime {
	t.Helper()
	engine, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return &fakeRuntime{
		engine:    engine,
		docs:      make(map[string]*doc.Collection),
		docMeta:   make(map[string]types.CollectionMeta),
		columnars: make(map[string]*columnar.Collection),
		colMeta:   make(map[string]types.ColumnarMeta),
	}
}

func (f *fakeRuntime) addCollection(t *testing.T, name string) *doc.Collection {
	t.Helper()
	meta := types.CollectionMeta{Database: "db", Name: name, Type: types.CollectionDocument}
	c, err := doc.Open(f.engine, meta, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	f.docs[name] = c
	f.docMeta[name] = meta
	return c
}

func (f *fakeRuntime) addColumnar(t *testing.T, name string, columns []types.ColumnDef) *columnar.Collection {
	t.Helper()
	meta := types.ColumnarMeta{Database: "db", Name: name, Columns: columns}
	c, err := columnar.Open(f.engine, meta)
	require.NoError(t, err)
	f.columnars[name] = c
	f.colMeta[name] = meta
	return c
}

func (f *fakeRuntime) Open(database, collection string) (*doc.Collection, error) {
	c, ok := f.docs[collection]
	if !ok {
		return nil, collectionNotFound(collection)
	}
	return c, nil
}

func (f *fakeRuntime) OpenColumnar(database, collection string) (*columnar.Collection, error) {
	c, ok := f.columnars[collection]
	if !ok {
		return nil, collectionNotFound(collection)
	}
	return c, nil
}

func (f *fakeRuntime) CollectionMeta(database, collection string) (types.CollectionMeta, bool) {
	m, ok := f.docMeta[collection]
	return m, ok
}

func (f *fakeRuntime) ColumnarMeta(database, collection string) (types.ColumnarMeta, bool) {
	m, ok := f.colMeta[collection]
	return m, ok
}

func TestExecuteReturnFilterSortLimit(t *testing.T) {
	rt := newFakeRuntime(t)
	col := rt.addCollection(t, "items")
	for i := 0; i < 5; i++ {
		_, err := col.Insert(map[string]interface{}{"n": float64(i), "tag": "x"})
		require.NoError(t, err)
	}

	result, err := Execute(context.Background(), rt, "db", `
		FOR i IN items
		FILTER i.n >= 2
		SORT i.n DESC
		LIMIT 2
		RETURN i.n
	`)
	require.NoError(t, err)
	rows, ok := result.([]interface{})
	require.True(t, ok)
	require.Equal(t, []interface{}{float64(4), float64(3)}, rows)
}

func TestExecuteRangeInsertThenScan(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.addCollection(t, "items")

	res, err := Execute(context.Background(), rt, "db", `
		FOR i IN 1..3
		INSERT {n: i} INTO items
	`)
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"inserted": 3}, res)

	res, err = Execute(context.Background(), rt, "db", `FOR i IN items RETURN i.n`)
	require.NoError(t, err)
	require.Len(t, res.([]interface{}), 3)
}

func TestExecuteUnknownFunction(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.addCollection(t, "items")
	_, err := Execute(context.Background(), rt, "db", `FOR i IN 1..1 INSERT {n: i} INTO items`)
	require.NoError(t, err)

	_, err = Execute(context.Background(), rt, "db", `FOR i IN items RETURN NOPE(i.n)`)
	require.Error(t, err)
	sdbErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, KindUnknownFunction, sdbErr.Kind)
}

func TestExecuteCollectionNotFound(t *testing.T) {
	rt := newFakeRuntime(t)
	_, err := Execute(context.Background(), rt, "db", `FOR i IN missing RETURN i`)
	require.Error(t, err)
	sdbErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, KindCollectionNotFound, sdbErr.Kind)
}

func TestStreamingBulkInsertFastPath(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.addCollection(t, "big")

	res, err := Execute(context.Background(), rt, "db", `
		FOR i IN 1..6000
		INSERT {n: i} INTO big
	`)
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"inserted": int64(6000)}, res)
}

func TestColumnarAggregateFastPath(t *testing.T) {
	rt := newFakeRuntime(t)
	col := rt.addColumnar(t, "metrics", []types.ColumnDef{
		{Name: "host", Type: types.ColString},
		{Name: "value", Type: types.ColFloat64},
	})
	_, err := col.InsertRows([]map[string]interface{}{
		{"host": "h1", "value": float64(10)},
		{"host": "h1", "value": float64(20)},
		{"host": "h2", "value": float64(5)},
	})
	require.NoError(t, err)

	result, err := Execute(context.Background(), rt, "db", `
		FOR x IN metrics
		COLLECT host = x.host
		AGGREGATE total = SUM(x.value)
		RETURN {host: host, total: total}
	`)
	require.NoError(t, err)
	rows, ok := result.([]interface{})
	require.True(t, ok)
	require.Len(t, rows, 2)
	for _, row := range rows {
		m, ok := row.(map[string]interface{})
		require.True(t, ok)
		require.Contains(t, m, "host")
		require.Contains(t, m, "total")
	}

	bare, err := Execute(context.Background(), rt, "db", `
		FOR x IN metrics
		COLLECT host = x.host
		AGGREGATE total = SUM(x.value)
		RETURN total
	`)
	require.NoError(t, err)
	bareRows, ok := bare.([]interface{})
	require.True(t, ok)
	require.Len(t, bareRows, 2)
	var totals []float64
	for _, v := range bareRows {
		f, ok := v.(float64)
		require.True(t, ok, "expected RETURN total to project a bare number, got %#v", v)
		totals = append(totals, f)
	}
	require.ElementsMatch(t, []float64{30, 5}, totals)
}

func TestGeneralCollectAggregate(t *testing.T) {
	rt := newFakeRuntime(t)
	col := rt.addCollection(t, "orders")
	for _, v := range []float64{1, 2, 3, 4} {
		_, err := col.Insert(map[string]interface{}{"amount": v, "region": "east"})
		require.NoError(t, err)
	}

	result, err := Execute(context.Background(), rt, "db", `
		FOR o IN orders
		COLLECT region = o.region
		AGGREGATE total = SUM(o.amount), n = COUNT()
		RETURN {region: region, total: total, n: n}
	`)
	require.NoError(t, err)
	rows := result.([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	require.Equal(t, float64(10), row["total"])
	require.Equal(t, float64(4), row["n"])
}

func TestUpsert(t *testing.T) {
	rt := newFakeRuntime(t)
	col := rt.addCollection(t, "items")
	d, err := col.Insert(map[string]interface{}{"_key": "k1", "name": "old"})
	require.NoError(t, err)
	require.Equal(t, "k1", d.Key)

	_, err = Execute(context.Background(), rt, "db", `
		FOR i IN 0..0
		UPSERT {_key: "k1"}
		INSERT {name: "new-insert"}
		UPDATE {name: "new-update"}
		IN items
	`)
	require.NoError(t, err)

	got, err := col.Get("k1")
	require.NoError(t, err)
	require.Equal(t, "new-update", got.Fields["name"])
}

func TestPhoneticBuiltin(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.addCollection(t, "names")

	result, err := Execute(context.Background(), rt, "db", `FOR i IN 0..0 RETURN SOUNDEX("Robert")`)
	require.NoError(t, err)
	rows := result.([]interface{})
	require.Equal(t, "R163", rows[0])
}
