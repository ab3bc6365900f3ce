package replication

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/solidb/solidb/pkg/doc"
	"github.com/solidb/solidb/pkg/types"
)

// Collections opens the local collection a pulled entry targets, for
// inserting/updating/deleting its documents. The database orchestrator
// (pkg/database) implements this over its collection registry.
type Collections interface {
	Open(database, collection string) (*doc.Collection, error)
}

// SchemaOps applies the non-document operations the log can carry
// (collection/database lifecycle). With a nil SchemaOps these entries
// are skipped without being applied, and no log line is written.
type SchemaOps interface {
	ApplyCreateDatabase(database string) error
	ApplyDeleteDatabase(database string) error
	ApplyCreateCollection(database string, meta types.CollectionMeta) error
	ApplyDeleteCollection(database, collection string) error
}

// isPhysicalShardCollection reports whether name is a shard-local
// physical collection (the "<coll>_s<digits>" suffix pkg/doc.PhysicalName
// produces) rather than a logical collection name. Entries aimed at
// these are never replayed through this path — the Shard Coordinator
// places them directly during its own fan-out (spec.md §4.K).
func isPhysicalShardCollection(name string) bool {
	i := strings.LastIndex(name, "_s")
	if i < 0 || i+2 >= len(name) {
		return false
	}
	suffix := name[i+2:]
	if _, err := strconv.ParseUint(suffix, 10, 16); err != nil {
		return false
	}
	return true
}

// group is a maximal run of consecutive entries sharing the same
// (database, collection, op), batched into one apply call.
type group struct {
	database   string
	collection string
	op         types.OpKind
	entries    []types.LogEntry
}

// groupEntries partitions entries into consecutive-run groups, per
// spec.md §4.K step 4 — schema ops never group with anything, even a
// same-named run of other schema ops, since each carries its own
// distinct payload (collection metadata, etc.) that must be applied one
// at a time.
func groupEntries(entries []types.LogEntry) []group {
	var groups []group
	for _, e := range entries {
		if isSchemaOp(e.Op) {
			groups = append(groups, group{database: e.Database, collection: e.Collection, op: e.Op, entries: []types.LogEntry{e}})
			continue
		}
		if n := len(groups); n > 0 {
			last := &groups[n-1]
			if last.database == e.Database && last.collection == e.Collection && last.op == e.Op {
				last.entries = append(last.entries, e)
				continue
			}
		}
		groups = append(groups, group{database: e.Database, collection: e.Collection, op: e.Op, entries: []types.LogEntry{e}})
	}
	return groups
}

func isSchemaOp(op types.OpKind) bool {
	switch op {
	case types.OpCreateDatabase, types.OpDeleteDatabase, types.OpCreateCollection, types.OpDeleteCollection:
		return true
	default:
		return false
	}
}

// applier applies groups of pulled entries, deduplicating by
// (origin_node, origin_seq) via the watermark the caller maintains, and
// skipping physical shard collections.
type applier struct {
	collections Collections
	schema      SchemaOps
}

func (a *applier) applyGroup(g group) error {
	if isPhysicalShardCollection(g.collection) {
		return nil
	}

	switch g.op {
	case types.OpInsert, types.OpUpdate:
		return a.applyUpsertBatch(g)
	case types.OpDelete:
		return a.applyDeleteBatch(g)
	case types.OpCreateDatabase, types.OpDeleteDatabase, types.OpCreateCollection, types.OpDeleteCollection:
		return a.applySchemaOp(g.entries[0])
	default:
		return nil // columnar/blob ops replicate through their own collections' own paths once wired
	}
}

func (a *applier) applyUpsertBatch(g group) error {
	col, err := a.collections.Open(g.database, g.collection)
	if err != nil {
		return err
	}
	items := make([]struct {
		Key  string
		Data map[string]interface{}
	}, 0, len(g.entries))
	for _, e := range g.entries {
		var fields map[string]interface{}
		if len(e.Data) > 0 {
			if err := json.Unmarshal(e.Data, &fields); err != nil {
				continue
			}
		}
		items = append(items, struct {
			Key  string
			Data map[string]interface{}
		}{Key: e.Key, Data: fields})
	}
	_, err = col.UpsertBatch(items)
	return err
}

func (a *applier) applyDeleteBatch(g group) error {
	col, err := a.collections.Open(g.database, g.collection)
	if err != nil {
		return err
	}
	keys := make([]string, len(g.entries))
	for i, e := range g.entries {
		keys[i] = e.Key
	}
	_, err = col.DeleteBatch(keys)
	return err
}

func (a *applier) applySchemaOp(e types.LogEntry) error {
	if a.schema == nil {
		return nil
	}
	switch e.Op {
	case types.OpCreateDatabase:
		return a.schema.ApplyCreateDatabase(e.Database)
	case types.OpDeleteDatabase:
		return a.schema.ApplyDeleteDatabase(e.Database)
	case types.OpCreateCollection:
		var meta types.CollectionMeta
		if len(e.Data) > 0 {
			if err := json.Unmarshal(e.Data, &meta); err != nil {
				return err
			}
		}
		return a.schema.ApplyCreateCollection(e.Database, meta)
	case types.OpDeleteCollection:
		return a.schema.ApplyDeleteCollection(e.Database, e.Collection)
	default:
		return nil
	}
}
