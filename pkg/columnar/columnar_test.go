package columnar

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

func newTestCollection(t *testing.T) *Collection {
	t.Helper()
	engine, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	meta := types.ColumnarMeta{
		Database: "db",
		Name:     "metrics",
		Columns: []types.ColumnDef{
			{Name: "host", Type: types.ColString},
			{Name: "value", Type: types.ColFloat64},
			{Name: "ts", Type: types.ColTimestamp},
		},
	}
	c, err := Open(engine, meta)
	require.NoError(t, err)
	return c
}

func TestInsertRowsAndReadColumns(t *testing.T) {
	c := newTestCollection(t)
	ids, err := c.InsertRows([]map[string]interface{}{
		{"host": "h1", "value": float64(10), "ts": "2024-01-15T10:00:00Z"},
		{"host": "h2", "value": float64(20), "ts": "2024-01-15T10:01:00Z"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	rows, err := c.ReadColumns(nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.EqualValues(t, 2, c.Stats().RowCount)
}

func TestInsertRowWithIDIsIdempotent(t *testing.T) {
	c := newTestCollection(t)
	require.NoError(t, c.InsertRowWithID("fixed", map[string]interface{}{"host": "h1", "value": float64(1)}))
	require.NoError(t, c.InsertRowWithID("fixed", map[string]interface{}{"host": "h1", "value": float64(1)}))

	rows, err := c.ReadColumns(nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDeleteRowTombstones(t *testing.T) {
	c := newTestCollection(t)
	ids, err := c.InsertRows([]map[string]interface{}{{"host": "h1", "value": float64(1)}})
	require.NoError(t, err)

	require.NoError(t, c.DeleteRow(ids[0]))
	rows, err := c.ReadColumns(nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 0)
}

func TestScanFilteredPushesDownPredicate(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.InsertRows([]map[string]interface{}{
		{"host": "h1", "value": float64(10)},
		{"host": "h2", "value": float64(20)},
		{"host": "h1", "value": float64(30)},
	})
	require.NoError(t, err)

	rows, err := c.ScanFiltered(ColumnFilter{Column: "host", Op: FilterEq, Value: "h1"}, []string{"value"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestAggregateSumAndAvg(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.InsertRows([]map[string]interface{}{
		{"host": "h1", "value": float64(10)},
		{"host": "h1", "value": float64(20)},
		{"host": "h2", "value": float64(5)},
	})
	require.NoError(t, err)

	sum, err := c.Aggregate("value", AggSum)
	require.NoError(t, err)
	require.Equal(t, float64(35), sum)

	avg, err := c.Aggregate("value", AggAvg)
	require.NoError(t, err)
	require.InDelta(t, 11.666, avg, 0.01)
}

func TestGroupByHost(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.InsertRows([]map[string]interface{}{
		{"host": "h1", "value": float64(10)},
		{"host": "h1", "value": float64(20)},
		{"host": "h2", "value": float64(5)},
	})
	require.NoError(t, err)

	results, err := c.GroupBy([]GroupKey{{Column: "host"}}, "value", AggAvg)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byHost := make(map[string]float64)
	for _, r := range results {
		byHost[r.Keys["host"].(string)] = r.Aggregate
	}
	require.Equal(t, float64(15), byHost["h1"])
	require.Equal(t, float64(5), byHost["h2"])
}
