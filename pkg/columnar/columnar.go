package columnar

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/solidb/solidb/pkg/dberr"
	"github.com/solidb/solidb/pkg/storage"
	"github.com/solidb/solidb/pkg/types"
)

func cfName(database, name string) string { return fmt.Sprintf("columnar:%s:%s", database, name) }

const (
	keyNextGroup    = "meta:next_group"
	rowGroupPrefix  = "rg:"
	rowIndexPrefix  = "rowindex:"
	tombstonePrefix = "tomb:"
)

func rowGroupIDsKey(groupID uint64) []byte {
	return []byte(fmt.Sprintf("%sids:%020d", rowGroupPrefix, groupID))
}

func rowGroupColKey(groupID uint64, column string) []byte {
	return []byte(fmt.Sprintf("%scol:%020d:%s", rowGroupPrefix, groupID, column))
}

func rowIndexKey(rowID string) []byte { return []byte(rowIndexPrefix + rowID) }

func tombstoneKey(rowID string) []byte { return []byte(tombstonePrefix + rowID) }

// rowLocation is the (group, offset) address stored in the row index so a
// point delete or idempotent re-insert can find a row without scanning.
type rowLocation struct {
	Group  uint64 `json:"group"`
	Offset int    `json:"offset"`
}

// Collection is a columnar collection: columns defined up front, rows
// appended in immutable, independently-compressed groups.
type Collection struct {
	cf storage.CF

	mu         sync.RWMutex
	meta       types.ColumnarMeta
	columns    map[string]types.ColumnDef
	nextGroup  uint64
	groupCount int
}

// Open opens (or initializes) a columnar collection backed by engine.
func Open(engine storage.Engine, meta types.ColumnarMeta) (*Collection, error) {
	cf, err := engine.ColumnFamily(cfName(meta.Database, meta.Name))
	if err != nil {
		return nil, dberr.Internal("open columnar column family", err)
	}
	c := &Collection{cf: cf, meta: meta, columns: make(map[string]types.ColumnDef, len(meta.Columns))}
	for _, col := range meta.Columns {
		c.columns[col.Name] = col
	}
	raw, err := cf.Get([]byte(keyNextGroup))
	if err == nil {
		c.nextGroup = binary.BigEndian.Uint64(raw)
	}
	return c, nil
}

func (c *Collection) Metadata() types.ColumnarMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta
}

// Stats summarizes the collection's physical shape.
type Stats struct {
	RowCount   int64 `json:"row_count"`
	GroupCount int   `json:"group_count"`
	ColumnCount int  `json:"column_count"`
}

func (c *Collection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{RowCount: c.meta.RowCount, GroupCount: c.groupCount, ColumnCount: len(c.columns)}
}

// InsertRows appends values as one new row group, minting a UUIDv7 row id
// per row. Returns the assigned ids in input order.
func (c *Collection) InsertRows(rows []map[string]interface{}) ([]string, error) {
	ids := make([]string, len(rows))
	for i := range rows {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, dberr.Internal("generate row id", err)
		}
		ids[i] = id.String()
	}
	if err := c.writeGroup(ids, rows); err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertRowWithID inserts a single row under a caller-supplied id,
// idempotently: if the id already has a live (non-tombstoned) row, the
// call is a no-op. This is the path the replication worker uses to apply
// a remote insert without risking a duplicate on retry.
func (c *Collection) InsertRowWithID(id string, row map[string]interface{}) error {
	c.mu.RLock()
	_, exists := c.locate(id)
	c.mu.RUnlock()
	if exists {
		return nil
	}
	return c.writeGroup([]string{id}, []map[string]interface{}{row})
}

func (c *Collection) writeGroup(ids []string, rows []map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	groupID := c.nextGroup
	idsRaw, err := json.Marshal(ids)
	if err != nil {
		return dberr.Internal("marshal row group ids", err)
	}
	if err := c.cf.Put(rowGroupIDsKey(groupID), idsRaw); err != nil {
		return dberr.Internal("write row group ids", err)
	}

	for name := range c.columns {
		values := make([]interface{}, len(rows))
		for i, row := range rows {
			values[i] = row[name]
		}
		packed, err := compressValues(values)
		if err != nil {
			return dberr.Internal("compress column "+name, err)
		}
		if err := c.cf.Put(rowGroupColKey(groupID, name), packed); err != nil {
			return dberr.Internal("write column "+name, err)
		}
	}

	for offset, id := range ids {
		loc := rowLocation{Group: groupID, Offset: offset}
		locRaw, err := json.Marshal(loc)
		if err != nil {
			return dberr.Internal("marshal row location", err)
		}
		if err := c.cf.Put(rowIndexKey(id), locRaw); err != nil {
			return dberr.Internal("write row index", err)
		}
	}

	c.nextGroup++
	nextRaw := make([]byte, 8)
	binary.BigEndian.PutUint64(nextRaw, c.nextGroup)
	if err := c.cf.Put([]byte(keyNextGroup), nextRaw); err != nil {
		return dberr.Internal("advance group counter", err)
	}

	c.groupCount++
	c.meta.RowCount += int64(len(rows))
	return nil
}

// DeleteRow tombstones a row so scans and aggregates skip it. The row's
// data remains in its group until a future compaction pass (not yet
// implemented) rewrites the group without it.
func (c *Collection) DeleteRow(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	loc, ok := c.locate(id)
	if !ok {
		return dberr.NotFound("row " + id + " not found")
	}
	_ = loc
	if err := c.cf.Put(tombstoneKey(id), []byte{1}); err != nil {
		return dberr.Internal("write tombstone", err)
	}
	c.meta.RowCount--
	return nil
}

func (c *Collection) locate(id string) (rowLocation, bool) {
	raw, err := c.cf.Get(rowIndexKey(id))
	if err != nil {
		return rowLocation{}, false
	}
	if _, terr := c.cf.Get(tombstoneKey(id)); terr == nil {
		return rowLocation{}, false
	}
	var loc rowLocation
	if err := json.Unmarshal(raw, &loc); err != nil {
		return rowLocation{}, false
	}
	return loc, true
}

// row is a fully materialized row with its id, used by scans and
// aggregation once columns have been decompressed.
type row struct {
	ID     string
	Values map[string]interface{}
}

// allRows decompresses every live row group into memory, applying
// projection if non-empty. Acceptable for the row-group scale this
// facade targets (analytics/time-series collections, not the primary
// document store); a future iteration could stream group-by-group.
func (c *Collection) allRows(projection []string) ([]row, error) {
	c.mu.RLock()
	groupCount := c.nextGroup
	columns := c.columns
	c.mu.RUnlock()

	want := columns
	if len(projection) > 0 {
		want = make(map[string]types.ColumnDef, len(projection))
		for _, p := range projection {
			if def, ok := columns[p]; ok {
				want[p] = def
			}
		}
	}

	var out []row
	for g := uint64(0); g < groupCount; g++ {
		idsRaw, err := c.cf.Get(rowGroupIDsKey(g))
		if err != nil {
			continue
		}
		var ids []string
		if err := json.Unmarshal(idsRaw, &ids); err != nil {
			return nil, dberr.Internal("decode row group ids", err)
		}

		colValues := make(map[string][]interface{}, len(want))
		for name := range want {
			packed, err := c.cf.Get(rowGroupColKey(g, name))
			if err != nil {
				continue
			}
			values, err := decompressValues(packed)
			if err != nil {
				return nil, dberr.Internal("decompress column "+name, err)
			}
			colValues[name] = values
		}

		for offset, id := range ids {
			if _, err := c.cf.Get(tombstoneKey(id)); err == nil {
				continue // tombstoned
			}
			fields := make(map[string]interface{}, len(colValues))
			for name, values := range colValues {
				if offset < len(values) {
					fields[name] = values[offset]
				}
			}
			out = append(out, row{ID: id, Values: fields})
		}
	}
	return out, nil
}

// ReadColumns returns up to limit live rows (0 = unbounded), each
// restricted to projection (nil/empty = all columns).
func (c *Collection) ReadColumns(projection []string, limit int) ([]map[string]interface{}, error) {
	rows, err := c.allRows(projection)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]map[string]interface{}, len(rows))
	for i, r := range rows {
		m := make(map[string]interface{}, len(r.Values)+1)
		for k, v := range r.Values {
			m[k] = v
		}
		m["_key"] = r.ID
		out[i] = m
	}
	return out, nil
}

// ScanFiltered evaluates filter against every live row before applying
// projection, matching spec.md §4.C's predicate-pushdown contract.
func (c *Collection) ScanFiltered(filter ColumnFilter, projection []string) ([]map[string]interface{}, error) {
	rows, err := c.allRows(nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]interface{}
	for _, r := range rows {
		if !filter.Matches(r.Values[filter.Column]) {
			continue
		}
		m := make(map[string]interface{})
		if len(projection) == 0 {
			for k, v := range r.Values {
				m[k] = v
			}
		} else {
			for _, p := range projection {
				m[p] = r.Values[p]
			}
		}
		m["_key"] = r.ID
		out = append(out, m)
	}
	return out, nil
}
